package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	xterm "golang.org/x/term"
)

// Terminal: 终端进度提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 单行 \r 覆盖并着色；非 TTY: 关键节点分行打印，无转义序列。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	// 运行期最小状态
	source       string
	llm          string
	runStart     time.Time
	rows         int
	batchesTotal int
	batchesDone  int
	fallback     int

	// 输出控制
	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

var (
	tagOK   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#188038"))
	tagFail = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D93025"))
	tagInfo = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1A73E8"))
	tagWarn = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#B06000"))
)

// NewTerminal 构造终端提示器。enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	return &Terminal{w: w, enabled: enabled, isTTY: IsTTY(w)}
}

// IsTTY 报告 w 是否为交互终端；CI 环境恒为 false。
func IsTTY(w io.Writer) bool {
	if os.Getenv("CI") != "" {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	return ok && xterm.IsTerminal(int(f.Fd()))
}

// RunStart: 记录运行上下文（来源、LLM）。
func (t *Terminal) RunStart(source, llm string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.source = shortenBase(source, 48)
	t.llm = llm
	t.runStart = time.Now()
	t.println(fmt.Sprintf("%s %s | llm=%s", t.tag(tagInfo, "run"), t.source, safe(llm)))
}

// Plan: 标记数据行数与计划批次。
func (t *Terminal) Plan(rows, batches int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.rows = rows
	t.batchesTotal = batches
	t.batchesDone = 0
	t.fallback = 0
	if !t.isTTY {
		t.println(fmt.Sprintf("%s rows=%d | batches=%d", t.tag(tagInfo, "plan"), rows, batches))
	}
}

// BatchDone: 一批完成（fallback=true 表示该批走了回退渲染）。
// TTY 下单行覆盖（≥100ms 节流，最后一批不节流）；非 TTY 仅打印回退批次。
func (t *Terminal) BatchDone(index int, fallback bool, reason string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.batchesDone++
	if fallback {
		t.fallback++
	}
	if !t.isTTY {
		if fallback {
			t.println(fmt.Sprintf("%s batch %d fallback | %s", t.tag(tagWarn, "warn"), index+1, safe(reason)))
		}
		return
	}
	now := time.Now()
	if t.batchesDone < t.batchesTotal && now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	line := fmt.Sprintf("[batch] %s | progress %d/%d | fallback %d | elapsed %s",
		t.source, t.batchesDone, t.batchesTotal, t.fallback, formatSince(t.runStart))
	t.printInline(line)
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, artifact string, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	// 先清掉可能的行尾
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	tag := t.tag(tagOK, "ok")
	if !ok {
		tag = t.tag(tagFail, "fail")
	}
	line := fmt.Sprintf("%s batches %d | fallback %d | total %s", tag, t.batchesDone, t.fallback, formatDur(dur))
	if artifact != "" {
		line += " | " + safe(artifact)
	}
	t.println(line)
}

func (t *Terminal) tag(st lipgloss.Style, s string) string {
	s = "[" + s + "]"
	if !t.isTTY {
		return s
	}
	return st.Render(s)
}

// 内部输出工具
func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 清尾：若新行比旧短，填充空格覆盖
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return "stdin"
	}
	base := filepath.Base(s)
	if visLen(base) <= max {
		return base
	}
	// 预留 1 列给省略号
	cut := max - 1
	if cut < 1 {
		cut = 1
	}
	rs := []rune(base)
	for len(rs) > 1 && visLen(string(rs)) > cut {
		rs = rs[:len(rs)-1]
	}
	return string(rs) + "…"
}

// visLen: 终端显示宽度（忽略 ANSI 转义，宽字符计 2 列）。
func visLen(s string) int { return lipgloss.Width(s) }

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms <= 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	// 秒，保留 1 位小数
	s := float64(d.Milliseconds()) / 1000.0
	return fmt.Sprintf("%.1fs", s)
}
