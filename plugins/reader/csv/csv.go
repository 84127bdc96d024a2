package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"sheetdoc/pkg/contract"
)

// Options 为 CSV Reader 的可选配置（最小必要）。
type Options struct {
	// Delimiter 为单个字符，默认 ","；"\t" 表示制表符。
	Delimiter string `yaml:"delimiter"`
	// Comment 为注释行前缀字符（可选）。
	Comment string `yaml:"comment"`
	// TrimSpace: 去除每个单元格首尾空白。
	TrimSpace bool `yaml:"trim_space"`
	// LazyQuotes: 容忍不规范引号。
	LazyQuotes bool `yaml:"lazy_quotes"`
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `yaml:"buf_size"`
}

// Reader 实现基于文件与 STDIN 的 CSV 表格读取。
type Reader struct {
	comma   rune
	comment rune
	trim    bool
	lazy    bool
	bufSize int
	stdin   io.Reader
}

// New 创建 CSV Reader。
func New(opts *Options) (*Reader, error) {
	const defaultBuf = 64 * 1024
	var o Options
	if opts != nil {
		o = *opts
	}
	r := &Reader{comma: ',', trim: o.TrimSpace, lazy: o.LazyQuotes, bufSize: defaultBuf, stdin: os.Stdin}
	if o.BufSize > 0 {
		r.bufSize = o.BufSize
	}
	if o.Delimiter != "" {
		d := o.Delimiter
		if d == `\t` {
			d = "\t"
		}
		c, n := utf8.DecodeRuneInString(d)
		if n != len(d) || c == utf8.RuneError || c == '"' || c == '\r' || c == '\n' {
			return nil, fmt.Errorf("csv: %w: invalid delimiter %q", contract.ErrInvalidInput, o.Delimiter)
		}
		r.comma = c
	}
	if o.Comment != "" {
		c, n := utf8.DecodeRuneInString(o.Comment)
		if n != len(o.Comment) || c == r.comma {
			return nil, fmt.Errorf("csv: %w: invalid comment %q", contract.ErrInvalidInput, o.Comment)
		}
		r.comment = c
	}
	return r, nil
}

// Read 读取整张表；source 为 "-" 或空时读取 STDIN。
func (r *Reader) Read(ctx context.Context, source string) (contract.Table, error) {
	if err := ctx.Err(); err != nil {
		return contract.Table{}, err
	}
	var src io.Reader
	if source == "" || source == "-" {
		src = r.stdin
	} else {
		f, err := os.Open(source)
		if err != nil {
			return contract.Table{}, fmt.Errorf("csv open: %w", err)
		}
		defer f.Close()
		src = f
	}
	br := bufio.NewReaderSize(src, r.bufSize)
	skipBOM(br)

	cr := csv.NewReader(br)
	cr.Comma = r.comma
	cr.Comment = r.comment
	cr.LazyQuotes = r.lazy
	cr.FieldsPerRecord = -1 // 行宽可变；与表头按位置配对
	cr.ReuseRecord = false

	var t contract.Table
	for {
		if err := ctx.Err(); err != nil {
			return contract.Table{}, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return contract.Table{}, fmt.Errorf("csv parse: %v: %w", err, contract.ErrInvalidInput)
		}
		if r.trim {
			for i := range rec {
				rec[i] = strings.TrimSpace(rec[i])
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// skipBOM 丢弃 UTF-8 BOM（表格软件导出常见）。
func skipBOM(br *bufio.Reader) {
	b, err := br.Peek(3)
	if err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
}

var _ contract.TableReader = (*Reader)(nil)
