package html

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"sheetdoc/pkg/contract"
)

// Options: HTML 装配选项。
type Options struct {
	// Lang: <html lang> 属性，默认 "en"。
	Lang string `yaml:"lang"`
	// MaxWidth: 正文最大宽度（px），默认 760；<=0 使用默认。
	MaxWidth int `yaml:"max_width"`
}

// Assembler 输出单文件 HTML；样式全部内联，块文本经 bluemonday 严格策略净化。
type Assembler struct {
	lang     string
	maxWidth int
}

func New(opts *Options) *Assembler {
	a := &Assembler{lang: "en", maxWidth: 760}
	if opts != nil {
		if l := strings.TrimSpace(opts.Lang); l != "" {
			a.lang = l
		}
		if opts.MaxWidth > 0 {
			a.maxWidth = opts.MaxWidth
		}
	}
	return a
}

func (a *Assembler) Ext() string { return ".html" }

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// sanitizeText 去除全部标签并转义，结果可直接嵌入元素内容。
func sanitizeText(s string) string {
	textPolicyOnce.Do(func() { textPolicy = bluemonday.StrictPolicy() })
	return textPolicy.Sanitize(s)
}

var hexColor = regexp.MustCompile(`^#(?:[0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)

// css 将块样式编码为内联 style 值；非法颜色被忽略。
func css(st contract.Style) string {
	var parts []string
	if hexColor.MatchString(st.Foreground) {
		parts = append(parts, "color:"+st.Foreground)
	}
	if hexColor.MatchString(st.Background) {
		parts = append(parts, "background-color:"+st.Background)
	}
	if st.Bold {
		parts = append(parts, "font-weight:bold")
	}
	if st.Italic {
		parts = append(parts, "font-style:italic")
	}
	if st.FontSize > 0 {
		parts = append(parts, fmt.Sprintf("font-size:%dpt", st.FontSize))
	}
	return strings.Join(parts, ";")
}

func styleAttr(st contract.Style) string {
	if c := css(st); c != "" {
		return ` style="` + c + `"`
	}
	return ""
}

func (a *Assembler) Assemble(ctx context.Context, doc contract.Document) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title := "Document"
	for _, b := range doc {
		if b.Kind == contract.BlockTitle && strings.TrimSpace(b.Text) != "" {
			title = b.Text
			break
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<!DOCTYPE html>\n<html lang=\"%s\">\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n",
		sanitizeText(a.lang), sanitizeText(title))
	fmt.Fprintf(&sb, "<body style=\"font-family:Arial,Helvetica,sans-serif;max-width:%dpx;margin:2em auto\">\n", a.maxWidth)

	inList := false
	for _, b := range doc {
		if b.Kind != contract.BlockBullet && inList {
			sb.WriteString("</ul>\n")
			inList = false
		}
		txt := sanitizeText(b.Text)
		switch b.Kind {
		case contract.BlockTitle:
			fmt.Fprintf(&sb, "<h1%s>%s</h1>\n", styleAttr(b.Style), txt)
		case contract.BlockParagraph:
			fmt.Fprintf(&sb, "<p%s>%s</p>\n", styleAttr(b.Style), txt)
		case contract.BlockSeparator:
			sb.WriteString("<hr>\n")
		case contract.BlockHeading:
			fmt.Fprintf(&sb, "<h2%s>%s</h2>\n", styleAttr(b.Style), txt)
		case contract.BlockBullet:
			if !inList {
				sb.WriteString("<ul style=\"list-style:disc;padding-left:1.5em\">\n")
				inList = true
			}
			fmt.Fprintf(&sb, "<li%s>%s</li>\n", styleAttr(b.Style), txt)
		case contract.BlockSpacer:
			sb.WriteString("<div style=\"height:1em\"></div>\n")
		}
	}
	if inList {
		sb.WriteString("</ul>\n")
	}
	sb.WriteString("</body>\n</html>\n")
	return strings.NewReader(sb.String()), nil
}

var _ contract.Assembler = (*Assembler)(nil)
