package contract

import "context"

// Message: 最小会话消息形状。
type Message struct {
	Role    string
	Content string
}

// ChatPrompt: 会话型提示词载荷（system + user）。
type ChatPrompt []Message

// System 返回首条 system 消息内容（无则为空）。
func (p ChatPrompt) System() string {
	for _, m := range p {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

// User 返回 user 消息内容（多条时以换行拼接）。
func (p ChatPrompt) User() string {
	s := ""
	for _, m := range p {
		if m.Role != "user" {
			continue
		}
		if s != "" {
			s += "\n"
		}
		s += m.Content
	}
	return s
}

// PromptBuilder: 基于 Batch 构造确定性的 ChatPrompt。
// 约束：纯计算、不做 I/O；必须包含批内每一行的全部表头/值配对。
type PromptBuilder interface {
	Build(ctx context.Context, b Batch) (ChatPrompt, error)
}
