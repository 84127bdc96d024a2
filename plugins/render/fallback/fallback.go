// Package fallback 在上游格式化失败时按行确定性地渲染原始数据。
package fallback

import (
	"strconv"

	"sheetdoc/pkg/contract"
)

// Renderer 不依赖模型状态，输出只由行、表头与主题决定。
type Renderer struct {
	theme contract.Theme
}

// New 创建回退渲染器；theme 以值拷贝持有。
func New(theme contract.Theme) *Renderer {
	return &Renderer{theme: theme.Merge(contract.Theme{})}
}

// Heading 返回行标题 "Row N"（N = 数据行序号 + 1）。
func Heading(r contract.Row) string { return "Row " + strconv.Itoa(r.Index+1) }

// Section 将单行合成为段落："<表头>: <值>" 每配对一条。
func Section(h contract.Header, r contract.Row) contract.Section {
	pairs := r.Pairs(h)
	s := contract.Section{Title: Heading(r), Details: make([]string, 0, len(pairs))}
	for _, p := range pairs {
		s.Details = append(s.Details, p.Label+": "+p.Value)
	}
	return s
}

// RenderRow 渲染单行：一个标题 + 每个配对一条按位置交替底色的条目。
func (f *Renderer) RenderRow(sink contract.DocumentSink, h contract.Header, r contract.Row) contract.Section {
	s := Section(h, r)
	sink.AppendHeading(s.Title, f.theme.FallbackHeading)
	for i, d := range s.Details {
		sink.AppendBullet(d, f.theme.BulletAt(i))
	}
	return s
}

// RenderBatch 对批内每一行各渲染一个段落，保证无遗漏。
func (f *Renderer) RenderBatch(sink contract.DocumentSink, b contract.Batch) []contract.Section {
	out := make([]contract.Section, 0, len(b.Rows))
	for _, r := range b.Rows {
		out = append(out, f.RenderRow(sink, b.Header, r))
	}
	return out
}
