package csv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetdoc/pkg/contract"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// TestReadFile 读取文件：BOM 去除、引号内换行、可变行宽。
func TestReadFile(t *testing.T) {
	p := writeFile(t, "people.csv", "\xEF\xBB\xBFName,Age,Note\nAnn,31,\"multi\nline\"\nBob,40\n")
	r, err := New(nil)
	require.NoError(t, err)
	tb, err := r.Read(context.Background(), p)
	require.NoError(t, err)
	want := [][]string{{"Name", "Age", "Note"}, {"Ann", "31", "multi\nline"}, {"Bob", "40"}}
	if diff := cmp.Diff(want, tb.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, contract.Header{"Name", "Age", "Note"}, tb.Header())
	assert.Len(t, tb.DataRows(), 2)
}

// TestOptions 分隔符/注释/去空白。
func TestOptions(t *testing.T) {
	p := writeFile(t, "t.tsv", "# exported\nName\t Age \nAnn\t31\n")
	r, err := New(&Options{Delimiter: `\t`, Comment: "#", TrimSpace: true})
	require.NoError(t, err)
	tb, err := r.Read(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Name", "Age"}, {"Ann", "31"}}, tb.Rows)
}

func TestStdin(t *testing.T) {
	r, _ := New(nil)
	r.stdin = strings.NewReader("A\n1\n")
	tb, err := r.Read(context.Background(), "-")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A"}, {"1"}}, tb.Rows)
}

// TestHeaderOnly 仅表头：读取成功，行数校验交给编排层。
func TestHeaderOnly(t *testing.T) {
	p := writeFile(t, "h.csv", "Name,Age\n")
	r, _ := New(nil)
	tb, err := r.Read(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, tb.Rows, 1)
	assert.Nil(t, tb.DataRows())
}

func TestErrors(t *testing.T) {
	_, err := New(&Options{Delimiter: ";;"})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = New(&Options{Comment: ",", Delimiter: ","})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	r, _ := New(nil)
	_, err = r.Read(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	p := writeFile(t, "bad.csv", "a,b\"c\n")
	_, err = r.Read(context.Background(), p)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
}
