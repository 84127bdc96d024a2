package contract

import "context"

// TableReader: 输入表格来源（CSV/XLSX/STDIN）。
// 约束：一次性读入整张表；不做业务校验（行数校验由编排层负责）。
type TableReader interface {
	Read(ctx context.Context, source string) (Table, error)
}
