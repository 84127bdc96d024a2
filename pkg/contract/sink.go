package contract

// BlockKind: 文档块类别。
type BlockKind string

const (
	BlockTitle     BlockKind = "title"
	BlockParagraph BlockKind = "paragraph"
	BlockSeparator BlockKind = "separator"
	BlockHeading   BlockKind = "heading"
	BlockBullet    BlockKind = "bullet"
	BlockSpacer    BlockKind = "spacer"
)

// Block: 一个带样式的文档元素。Separator/Spacer 无文本。
type Block struct {
	Kind  BlockKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Style Style     `json:"style"`
}

// Document: 线性块序列（只追加）。
type Document []Block

// Count 返回指定类别的块数量。
func (d Document) Count(k BlockKind) int {
	n := 0
	for _, b := range d {
		if b.Kind == k {
			n++
		}
	}
	return n
}

// DocumentSink: 文档构建能力的最小集合。
// 渲染器只依赖此接口，不感知具体宿主或输出格式。
type DocumentSink interface {
	AppendTitle(text string, st Style)
	AppendParagraph(text string, st Style)
	AppendHeading(text string, st Style)
	AppendBullet(text string, st Style)
	AppendSeparator()
	AppendSpacer()
}

// AlertLevel: 提示级别。
type AlertLevel string

const (
	AlertInfo  AlertLevel = "info"
	AlertWarn  AlertLevel = "warn"
	AlertError AlertLevel = "error"
)

// AlertSink: 面向用户的提示能力（原宿主中的模态弹窗）。
type AlertSink interface {
	Alert(level AlertLevel, title, msg string)
}
