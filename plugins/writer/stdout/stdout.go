package stdout

import (
	"context"
	"io"
	"os"

	"sheetdoc/pkg/contract"
)

// Writer 将工件写到标准输出（或注入的 io.Writer）；忽略 id。
type Writer struct {
	out io.Writer
}

func New(out io.Writer) *Writer {
	if out == nil {
		out = os.Stdout
	}
	return &Writer{out: out}
}

func (w *Writer) Write(ctx context.Context, _ contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := io.Copy(w.out, r)
	return err
}

var _ contract.Writer = (*Writer)(nil)
