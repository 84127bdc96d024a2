package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetdoc/pkg/contract"
)

func batch() contract.Batch {
	return contract.Batch{
		Header: contract.Header{"Name", "Age"},
		Rows: []contract.Row{
			{Index: 0, Cells: []string{"Ann", "31"}},
			{Index: 1, Cells: []string{"", "40"}},
		},
	}
}

// TestSections 默认模式：每行一节，空行分隔。
func TestSections(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	raw, err := c.Invoke(context.Background(), batch(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Ann\nName: Ann\nAge: 31\n\nRow 2\nName: \nAge: 40", raw.Text)
}

// TestMarkdown 带标记模式。
func TestMarkdown(t *testing.T) {
	c, err := New(&Options{ResponseMode: "markdown", Prefix: "* "})
	require.NoError(t, err)
	raw, err := c.Invoke(context.Background(), batch(), nil)
	require.NoError(t, err)
	assert.Contains(t, raw.Text, "## * Ann\n- Name: Ann\n- Age: 31")
}

// TestEcho 回显 user 消息。
func TestEcho(t *testing.T) {
	c, err := New(&Options{ResponseMode: "echo"})
	require.NoError(t, err)
	p := contract.ChatPrompt{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}}
	raw, err := c.Invoke(context.Background(), batch(), p)
	require.NoError(t, err)
	assert.Equal(t, "u", raw.Text)
}

func TestUnknownMode(t *testing.T) {
	_, err := New(&Options{ResponseMode: "json"})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _ := New(nil)
	_, err := c.Invoke(ctx, batch(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
