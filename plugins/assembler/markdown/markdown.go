package markdown

import (
	"context"
	"io"
	"strings"

	"sheetdoc/pkg/contract"
)

// Options: Markdown 装配选项。
type Options struct {
	// NoEscape: 关闭行内 Markdown 元字符转义（默认转义）。
	NoEscape bool `yaml:"no_escape"`
}

// Assembler 将文档块线性编码为 CommonMark 文本。
// 样式仅保留粗体/斜体语义；颜色与底色在 Markdown 中无对应表示。
type Assembler struct {
	escape bool
}

func New(opts *Options) *Assembler {
	a := &Assembler{escape: true}
	if opts != nil && opts.NoEscape {
		a.escape = false
	}
	return a
}

func (a *Assembler) Ext() string { return ".md" }

// Assemble 按块顺序输出；相邻条目合并为同一列表，其余块之间空一行。
func (a *Assembler) Assemble(ctx context.Context, doc contract.Document) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sb strings.Builder
	var prev contract.BlockKind
	for i, b := range doc {
		if i > 0 && !tight(prev, b.Kind) {
			sb.WriteByte('\n')
		}
		switch b.Kind {
		case contract.BlockTitle:
			sb.WriteString("# " + a.text(b.Text) + "\n")
		case contract.BlockHeading:
			sb.WriteString("## " + a.text(b.Text) + "\n")
		case contract.BlockParagraph:
			sb.WriteString(emphasis(a.text(b.Text), b.Style) + "\n")
		case contract.BlockBullet:
			sb.WriteString("- " + emphasis(a.text(b.Text), b.Style) + "\n")
		case contract.BlockSeparator:
			sb.WriteString("---\n")
		case contract.BlockSpacer:
			// 空行已由块间距提供
		}
		prev = b.Kind
	}
	return strings.NewReader(sb.String()), nil
}

// tight: 标题后紧跟条目、条目之间不插空行。
func tight(prev, cur contract.BlockKind) bool {
	if cur != contract.BlockBullet {
		return prev == contract.BlockSpacer
	}
	return prev == contract.BlockHeading || prev == contract.BlockBullet
}

func emphasis(s string, st contract.Style) string {
	if s == "" {
		return s
	}
	switch {
	case st.Bold && st.Italic:
		return "***" + s + "***"
	case st.Bold:
		return "**" + s + "**"
	case st.Italic:
		return "_" + s + "_"
	}
	return s
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`,
	"[", `\[`, "]", `\]`, "#", `\#`, "<", `\<`, "|", `\|`,
)

func (a *Assembler) text(s string) string {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " ")), " ")
	if !a.escape {
		return s
	}
	return mdEscaper.Replace(s)
}

var _ contract.Assembler = (*Assembler)(nil)
