// Package document 提供内存中的文档构建器（contract.DocumentSink 实现）。
package document

import "sheetdoc/pkg/contract"

// Builder 按追加顺序收集文档块；非并发安全（编排层单线程使用）。
type Builder struct {
	blocks contract.Document
}

// New 创建空文档构建器。
func New() *Builder { return &Builder{} }

var _ contract.DocumentSink = (*Builder)(nil)

func (b *Builder) AppendTitle(text string, st contract.Style) {
	b.add(contract.BlockTitle, text, st)
}

func (b *Builder) AppendParagraph(text string, st contract.Style) {
	b.add(contract.BlockParagraph, text, st)
}

func (b *Builder) AppendHeading(text string, st contract.Style) {
	b.add(contract.BlockHeading, text, st)
}

func (b *Builder) AppendBullet(text string, st contract.Style) {
	b.add(contract.BlockBullet, text, st)
}

func (b *Builder) AppendSeparator() { b.add(contract.BlockSeparator, "", contract.Style{}) }

func (b *Builder) AppendSpacer() { b.add(contract.BlockSpacer, "", contract.Style{}) }

func (b *Builder) add(k contract.BlockKind, text string, st contract.Style) {
	b.blocks = append(b.blocks, contract.Block{Kind: k, Text: text, Style: st})
}

// Document 返回完整文档快照（拷贝，调用方可自由修改）。
func (b *Builder) Document() contract.Document {
	if len(b.blocks) == 0 {
		return nil
	}
	out := make(contract.Document, len(b.blocks))
	copy(out, b.blocks)
	return out
}
