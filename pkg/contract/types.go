package contract

// Header: 表头标签序列（源表第 0 行）。
type Header []string

// Row: 单条数据行。
// 约束：
// - Index 为数据行序号（0..n-1，不含表头行），仅表示位置，无其他身份；
// - Cells 与 Header 按位置配对；读入后不可变。
type Row struct {
	Index int
	Cells []string
}

// Pair: 表头与单元格值的一组配对。
type Pair struct {
	Label string
	Value string
}

// Pairs 将行按位置与表头配对。
// 缺失的单元格以空串补齐；超出表头长度的单元格忽略。
func (r Row) Pairs(h Header) []Pair {
	out := make([]Pair, 0, len(h))
	for i, label := range h {
		v := ""
		if i < len(r.Cells) {
			v = r.Cells[i]
		}
		out = append(out, Pair{Label: label, Value: v})
	}
	return out
}

// Table: 二维表格，Rows[0] 为表头，Rows[1..] 为数据。
type Table struct {
	Rows [][]string
}

// Header 返回表头（空表返回 nil）。
func (t Table) Header() Header {
	if len(t.Rows) == 0 {
		return nil
	}
	return Header(cloneStrings(t.Rows[0]))
}

// DataRows 返回数据行（不含表头），Index 自 0 递增。
func (t Table) DataRows() []Row {
	if len(t.Rows) < 2 {
		return nil
	}
	out := make([]Row, 0, len(t.Rows)-1)
	for i, cells := range t.Rows[1:] {
		out = append(out, Row{Index: i, Cells: cloneStrings(cells)})
	}
	return out
}

// Batch: 一次上游调用处理的有界行组。
// 约束：Rows 保持源顺序且连续；BatchIndex 自 0 严格递增。
type Batch struct {
	BatchIndex int
	Header     Header
	Rows       []Row
}

// From/To 返回批内首尾行的数据序号（闭区间）；空批返回 -1,-1。
func (b Batch) From() int {
	if len(b.Rows) == 0 {
		return -1
	}
	return b.Rows[0].Index
}

func (b Batch) To() int {
	if len(b.Rows) == 0 {
		return -1
	}
	return b.Rows[len(b.Rows)-1].Index
}

// Section: 标题行 + 有序明细行。
type Section struct {
	Title   string   `json:"title"`
	Details []string `json:"details"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
