package stdout

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf).Write(context.Background(), "ignored", strings.NewReader("# doc\n")))
	assert.Equal(t, "# doc\n", buf.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, New(&buf).Write(ctx, "", strings.NewReader("x")), context.Canceled)
}
