package ansi

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sheetdoc/pkg/contract"
)

// Options: 终端文本装配选项。
type Options struct {
	// Width: 分隔线与条目底色带宽度（列），默认 72。
	Width int `yaml:"width"`
	// Plain: 不输出任何转义序列（仅保留版式）。
	Plain bool `yaml:"plain"`
}

// Assembler 以 lipgloss 将块样式映射为终端前景/背景色。
type Assembler struct {
	width int
	plain bool
	r     *lipgloss.Renderer
}

func New(opts *Options) *Assembler {
	a := &Assembler{width: 72, r: lipgloss.DefaultRenderer()}
	if opts != nil {
		if opts.Width > 0 {
			a.width = opts.Width
		}
		a.plain = opts.Plain
	}
	return a
}

func (a *Assembler) Ext() string { return ".txt" }

func (a *Assembler) style(st contract.Style) lipgloss.Style {
	s := a.r.NewStyle()
	if st.Foreground != "" {
		s = s.Foreground(lipgloss.Color(st.Foreground))
	}
	if st.Background != "" {
		s = s.Background(lipgloss.Color(st.Background))
	}
	return s.Bold(st.Bold).Italic(st.Italic)
}

func (a *Assembler) Assemble(ctx context.Context, doc contract.Document) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sb strings.Builder
	rule := strings.Repeat("─", a.width)
	for _, b := range doc {
		switch b.Kind {
		case contract.BlockTitle:
			sb.WriteString(a.render(b.Text, b.Style, func(s lipgloss.Style) lipgloss.Style {
				return s.Border(lipgloss.RoundedBorder()).Padding(0, 1)
			}))
		case contract.BlockParagraph:
			sb.WriteString(a.render(b.Text, b.Style, nil))
		case contract.BlockSeparator:
			if a.plain {
				sb.WriteString(rule)
			} else {
				sb.WriteString(a.r.NewStyle().Faint(true).Render(rule))
			}
		case contract.BlockHeading:
			sb.WriteString(a.render(b.Text, b.Style, func(s lipgloss.Style) lipgloss.Style {
				return s.Underline(true)
			}))
		case contract.BlockBullet:
			sb.WriteString(a.render("• "+b.Text, b.Style, func(s lipgloss.Style) lipgloss.Style {
				return s.Width(a.width)
			}))
		case contract.BlockSpacer:
		}
		sb.WriteByte('\n')
	}
	return strings.NewReader(sb.String()), nil
}

func (a *Assembler) render(text string, st contract.Style, decorate func(lipgloss.Style) lipgloss.Style) string {
	if a.plain {
		return text
	}
	s := a.style(st)
	if decorate != nil {
		s = decorate(s)
	}
	return s.Render(text)
}

var _ contract.Assembler = (*Assembler)(nil)
