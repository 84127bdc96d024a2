package fallback

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"sheetdoc/internal/document"
	"sheetdoc/pkg/contract"
)

func TestRenderRow(t *testing.T) {
	th := contract.DefaultTheme()
	sink := document.New()
	h := contract.Header{"Name", "Age"}
	New(th).RenderRow(sink, h, contract.Row{Index: 5, Cells: []string{"Fay", "29"}})

	want := contract.Document{
		{Kind: contract.BlockHeading, Text: "Row 6", Style: th.FallbackHeading},
		{Kind: contract.BlockBullet, Text: "Name: Fay", Style: th.BulletAt(0)},
		{Kind: contract.BlockBullet, Text: "Age: 29", Style: th.BulletAt(1)},
	}
	if diff := cmp.Diff(want, sink.Document()); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

// 每一行恰好一个回退段落，顺序与批内一致。
func TestRenderBatchOnePerRow(t *testing.T) {
	h := contract.Header{"Name", "Age", "City"}
	b := contract.Batch{Header: h, Rows: []contract.Row{
		{Index: 0, Cells: []string{"a", "1", "x"}},
		{Index: 1, Cells: []string{"b"}},
		{Index: 2, Cells: []string{"c", "3", "z"}},
	}}
	sink := document.New()
	secs := New(contract.DefaultTheme()).RenderBatch(sink, b)

	doc := sink.Document()
	assert.Equal(t, 3, doc.Count(contract.BlockHeading))
	assert.Equal(t, 9, doc.Count(contract.BlockBullet))
	assert.Equal(t, []string{"Row 1", "Row 2", "Row 3"}, []string{secs[0].Title, secs[1].Title, secs[2].Title})
	assert.Equal(t, []string{"Name: b", "Age: ", "City: "}, secs[1].Details)
}

// 同样输入产生同样输出。
func TestDeterministic(t *testing.T) {
	h := contract.Header{"k"}
	r := contract.Row{Index: 0, Cells: []string{"v"}}
	a, b := document.New(), document.New()
	New(contract.DefaultTheme()).RenderRow(a, h, r)
	New(contract.DefaultTheme()).RenderRow(b, h, r)
	assert.Equal(t, a.Document(), b.Document())
}
