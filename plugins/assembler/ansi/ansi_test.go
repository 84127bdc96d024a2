package ansi

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetdoc/pkg/contract"
)

func sample() contract.Document {
	th := contract.DefaultTheme()
	return contract.Document{
		{Kind: contract.BlockTitle, Text: "People", Style: th.Title},
		{Kind: contract.BlockSeparator},
		{Kind: contract.BlockHeading, Text: "Ann", Style: th.Heading},
		{Kind: contract.BlockBullet, Text: "Age 31", Style: th.BulletAt(0)},
		{Kind: contract.BlockSpacer},
	}
}

func read(t *testing.T, a *Assembler, doc contract.Document) string {
	t.Helper()
	r, err := a.Assemble(context.Background(), doc)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestPlain(t *testing.T) {
	got := read(t, New(&Options{Plain: true, Width: 5}), sample())
	want := "People\n─────\nAnn\n• Age 31\n\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("plain mismatch (-want +got):\n%s", diff)
	}
}

func TestStyledKeepsText(t *testing.T) {
	got := read(t, New(nil), sample())
	for _, s := range []string{"People", "Ann", "• Age 31", strings.Repeat("─", 72)} {
		assert.Contains(t, got, s)
	}
	// 标题带圆角边框
	assert.Contains(t, got, "╭")
	assert.Equal(t, ".txt", New(nil).Ext())
}
