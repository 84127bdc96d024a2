package rowformat

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"

	"sheetdoc/pkg/contract"
)

// Options 为“表格行格式化”PromptBuilder 的最小配置。
// - InlineSystemTemplate / SystemTemplatePath: system 提示模板（二选一，均为空时使用内置默认模板）。
// - InlineGuidelines / GuidelinesPath: 额外的格式要求（可选），以 <guidelines> 包裹追加到 system 尾部。
type Options struct {
	InlineSystemTemplate string `yaml:"inline_system_template"`
	SystemTemplatePath   string `yaml:"system_template_path"`
	InlineGuidelines     string `yaml:"inline_guidelines"`
	GuidelinesPath       string `yaml:"guidelines_path"`
}

// Builder: 以 Batch 构造 ChatPrompt（system+user）。
// 运行期不做 I/O；模板与附加要求在构造期加载。
type Builder struct {
	sysT  *template.Template
	guide string
}

// systemData 为 system 模板的渲染数据。
type systemData struct {
	Headers []string
	Count   int
}

// New 创建 PromptBuilder。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	src := defaultSystemTemplate
	if o.InlineSystemTemplate != "" {
		src = o.InlineSystemTemplate
	} else if o.SystemTemplatePath != "" {
		b, err := os.ReadFile(o.SystemTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("system template read: %w", err)
		}
		src = string(b)
	}
	tpl, err := template.New("system").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("system template parse: %w", err)
	}
	var guide string
	if o.InlineGuidelines != "" {
		guide = o.InlineGuidelines
	} else if o.GuidelinesPath != "" {
		b, err := os.ReadFile(o.GuidelinesPath)
		if err != nil {
			return nil, fmt.Errorf("guidelines read: %w", err)
		}
		guide = string(b)
	}
	return &Builder{sysT: tpl, guide: guide}, nil
}

// Build: 基于 Batch 构造 ChatPrompt，user 消息包含批内每一行的全部表头/值配对。
func (b *Builder) Build(ctx context.Context, batch contract.Batch) (contract.ChatPrompt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if len(batch.Rows) == 0 {
		return nil, fmt.Errorf("prompt: %w: empty batch", contract.ErrInvalidInput)
	}
	if len(batch.Header) == 0 {
		return nil, fmt.Errorf("prompt: %w: empty header", contract.ErrInvalidInput)
	}

	var sysBuf bytes.Buffer
	if err := b.sysT.Execute(&sysBuf, systemData{Headers: batch.Header, Count: len(batch.Rows)}); err != nil {
		return nil, fmt.Errorf("system render: %v: %w", err, contract.ErrInvalidInput)
	}
	sys := strings.TrimSpace(sysBuf.String())
	if b.guide != "" {
		var sb strings.Builder
		sb.Grow(len(sys) + len(b.guide) + 32)
		sb.WriteString(sys)
		sb.WriteString("\n\n<guidelines>\n")
		sb.WriteString(b.guide)
		if !strings.HasSuffix(b.guide, "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString("</guidelines>")
		sys = sb.String()
	}

	var uw strings.Builder
	uw.Grow(256 * len(batch.Rows))
	uw.WriteString("Format the following ")
	uw.WriteString(strconv.Itoa(len(batch.Rows)))
	if len(batch.Rows) == 1 {
		uw.WriteString(" record")
	} else {
		uw.WriteString(" records")
	}
	uw.WriteString(" into readable entries.\n")
	for _, r := range batch.Rows {
		uw.WriteString("\nRecord ")
		uw.WriteString(strconv.Itoa(r.Index + 1))
		uw.WriteString(":\n")
		for _, p := range r.Pairs(batch.Header) {
			uw.WriteString(oneLine(p.Label))
			uw.WriteString(": ")
			uw.WriteString(oneLine(p.Value))
			uw.WriteByte('\n')
		}
	}

	return contract.ChatPrompt{
		{Role: "system", Content: sys},
		{Role: "user", Content: uw.String()},
	}, nil
}

// oneLine: 单元格内的换行折叠为空格，避免破坏“每行一个字段”的结构。
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

var _ contract.PromptBuilder = (*Builder)(nil)

// 默认 system 模板。
const defaultSystemTemplate = `
You are a data formatting assistant. You turn spreadsheet records into short, readable entries for a report.

Columns: {{range $i, $h := .Headers}}{{if $i}}, {{end}}{{$h}}{{end}}

Rules:
1) Write exactly one entry per record, in the order given ({{.Count}} in total).
2) The first line of an entry is a concise title for the record.
3) Each following line states one detail in natural language.
4) Separate entries with exactly one blank line.
5) Plain text only. Do not use markdown or the characters # * - _ [ ].
`
