package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"sheetdoc/pkg/contract"
)

// Options: 控制台提示选项。
type Options struct {
	// Quiet: 不输出 info 级提示。
	Quiet bool `yaml:"quiet"`
	// Plain: 不输出转义序列。
	Plain bool `yaml:"plain"`
}

// Console 以带样式的单段文本替代宿主中的模态弹窗。
// 并发安全；写失败后静默。
type Console struct {
	w     io.Writer
	quiet bool
	plain bool

	mu     sync.Mutex
	broken bool
}

func New(w io.Writer, opts *Options) *Console {
	if w == nil {
		w = os.Stderr
	}
	c := &Console{w: w}
	if opts != nil {
		c.quiet = opts.Quiet
		c.plain = opts.Plain
	}
	return c
}

var levelColor = map[contract.AlertLevel]lipgloss.Color{
	contract.AlertInfo:  lipgloss.Color("#1A73E8"),
	contract.AlertWarn:  lipgloss.Color("#B06000"),
	contract.AlertError: lipgloss.Color("#D93025"),
}

func (c *Console) Alert(level contract.AlertLevel, title, msg string) {
	if c == nil || (c.quiet && level == contract.AlertInfo) {
		return
	}
	head := fmt.Sprintf("[%s] %s", level, oneLine(title))
	body := strings.TrimSpace(msg)
	if !c.plain {
		head = lipgloss.NewStyle().Bold(true).Foreground(levelColor[level]).Render(head)
	}
	line := head
	if body != "" {
		line += "\n  " + strings.ReplaceAll(body, "\n", "\n  ")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return
	}
	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		c.broken = true
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var _ contract.AlertSink = (*Console)(nil)
