package xlsx

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"sheetdoc/pkg/contract"
)

// Options 为 XLSX Reader 的可选配置。
type Options struct {
	// Sheet: 工作表名；为空时读取活动工作表。
	Sheet string `yaml:"sheet"`
	// Raw: 读取未格式化的原始单元格值（默认按单元格数字格式渲染）。
	Raw bool `yaml:"raw"`
	// Password: 受保护工作簿的打开密码（可选）。
	Password string `yaml:"password"`
}

// Reader 基于 excelize 读取工作簿的单张工作表。
type Reader struct {
	sheet string
	opts  excelize.Options
	stdin io.Reader
}

func New(opts *Options) *Reader {
	var o Options
	if opts != nil {
		o = *opts
	}
	return &Reader{
		sheet: strings.TrimSpace(o.Sheet),
		opts:  excelize.Options{RawCellValue: o.Raw, Password: o.Password},
		stdin: os.Stdin,
	}
}

// Read 读取整张工作表；source 为 "-" 时从 STDIN 读取工作簿。
func (r *Reader) Read(ctx context.Context, source string) (contract.Table, error) {
	if err := ctx.Err(); err != nil {
		return contract.Table{}, err
	}
	var (
		f   *excelize.File
		err error
	)
	if source == "" || source == "-" {
		f, err = excelize.OpenReader(r.stdin, r.opts)
	} else {
		f, err = excelize.OpenFile(source, r.opts)
	}
	if err != nil {
		return contract.Table{}, fmt.Errorf("xlsx open: %w", err)
	}
	defer f.Close()

	sheet, err := r.pickSheet(f)
	if err != nil {
		return contract.Table{}, err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return contract.Table{}, fmt.Errorf("xlsx rows %q: %v: %w", sheet, err, contract.ErrInvalidInput)
	}
	return contract.Table{Rows: rows}, nil
}

func (r *Reader) pickSheet(f *excelize.File) (string, error) {
	names := f.GetSheetList()
	if r.sheet != "" {
		if !slices.Contains(names, r.sheet) {
			return "", fmt.Errorf("xlsx: %w: sheet %q not found (have %s)", contract.ErrInvalidInput, r.sheet, strings.Join(names, ", "))
		}
		return r.sheet, nil
	}
	if name := f.GetSheetName(f.GetActiveSheetIndex()); name != "" {
		return name, nil
	}
	if len(names) == 0 {
		return "", fmt.Errorf("xlsx: %w: workbook has no sheets", contract.ErrInvalidInput)
	}
	return names[0], nil
}

var _ contract.TableReader = (*Reader)(nil)
