package mock

import (
	"context"
	"fmt"
	"strings"

	"sheetdoc/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	// ResponseMode: 可选的响应模式（用于集成测试与无网络联调）。
	//  - ""/"sections": 每行一节：首格为标题，其余为 "表头: 值"，节之间空行分隔。
	//  - "markdown": 同 sections，但带 Markdown 标记（# 与 -），用于联调标记剥离。
	//  - "echo": 原样回显 user 消息。
	ResponseMode string `yaml:"response_mode"`
	// Prefix: 标题前缀（可选）。
	Prefix string `yaml:"prefix"`
}

type Client struct {
	prefix string
	mode   string
}

func New(opts *Options) (*Client, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	mode := strings.TrimSpace(o.ResponseMode)
	switch mode {
	case "":
		mode = "sections"
	case "sections", "markdown", "echo":
	default:
		return nil, fmt.Errorf("mock: %w: unknown response_mode %q", contract.ErrInvalidInput, mode)
	}
	return &Client{prefix: o.Prefix, mode: mode}, nil
}

// Invoke 不访问网络，也不需要凭据。
func (c *Client) Invoke(ctx context.Context, b contract.Batch, p contract.ChatPrompt) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	if c.mode == "echo" {
		return contract.Raw{Text: p.User()}, nil
	}
	return contract.Raw{Text: Format(b, c.prefix, c.mode == "markdown")}, nil
}

// Format 产出与 richtext 渲染器对应的确定性文本。
func Format(b contract.Batch, prefix string, markup bool) string {
	var sb strings.Builder
	for i, r := range b.Rows {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		title := ""
		if len(r.Cells) > 0 {
			title = r.Cells[0]
		}
		if strings.TrimSpace(title) == "" {
			title = fmt.Sprintf("Row %d", r.Index+1)
		}
		if markup {
			sb.WriteString("## ")
		}
		sb.WriteString(prefix)
		sb.WriteString(title)
		for _, pr := range r.Pairs(b.Header) {
			sb.WriteByte('\n')
			if markup {
				sb.WriteString("- ")
			}
			sb.WriteString(pr.Label)
			sb.WriteString(": ")
			sb.WriteString(pr.Value)
		}
	}
	return sb.String()
}

var _ contract.LLMClient = (*Client)(nil)
