package console

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"sheetdoc/pkg/contract"
)

func TestAlertPlain(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, &Options{Plain: true})
	c.Alert(contract.AlertError, "Input\ntoo small", "need a header row\nand one data row")
	assert.Equal(t, "[error] Input too small\n  need a header row\n  and one data row\n", buf.String())
}

func TestQuietSuppressesInfo(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, &Options{Quiet: true, Plain: true})
	c.Alert(contract.AlertInfo, "done", "")
	assert.Empty(t, buf.String())
	c.Alert(contract.AlertWarn, "fallback", "")
	assert.Equal(t, "[warn] fallback\n", buf.String())
}

type failWriter struct{ n int }

func (f *failWriter) Write(p []byte) (int, error) { f.n++; return 0, errors.New("closed") }

func TestWriteFailureDisables(t *testing.T) {
	fw := &failWriter{}
	c := New(fw, nil)
	c.Alert(contract.AlertInfo, "a", "")
	c.Alert(contract.AlertInfo, "b", "")
	assert.Equal(t, 1, fw.n)

	var nilConsole *Console
	assert.NotPanics(t, func() { nilConsole.Alert(contract.AlertInfo, "x", "") })
}
