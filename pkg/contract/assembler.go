package contract

import (
	"context"
	"io"
)

// Assembler: 将文档块序列编码为最终字节流（Markdown/HTML/终端文本）。
// 约束：按块顺序线性输出；不改写块文本语义（仅做目标格式所需的转义）。
type Assembler interface {
	Assemble(ctx context.Context, doc Document) (io.Reader, error)
	// Ext 返回工件的默认扩展名（含点号），如 ".md"。
	Ext() string
}
