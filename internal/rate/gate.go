package rate

import (
	"context"
	"sync"
	"time"

	"sheetdoc/pkg/contract"
)

// Gate: 每分钟请求数（RPM）令牌桶闸门（并发安全）。
// nil *Gate 表示不限额：Wait 立即返回、Try 恒为 true。
type Gate struct {
	mu    sync.Mutex
	clk   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	req   bucket
}

// NewGate: rpm<=0 返回 nil（不限额）；clk 为空则使用 time.Now。
func NewGate(rpm int, clk func() time.Time) *Gate {
	if rpm <= 0 {
		return nil
	}
	if clk == nil {
		clk = time.Now
	}
	return &Gate{clk: clk, sleep: sleepCtx, req: newBucket(rpm, clk())}
}

type bucket struct {
	cap   int
	level float64
	rate  float64
	last  time.Time
}

func newBucket(capacity int, now time.Time) bucket {
	if capacity <= 0 {
		return bucket{}
	}
	return bucket{cap: capacity, level: float64(capacity), rate: float64(capacity) / 60.0, last: now}
}

func (b *bucket) refill(now time.Time) {
	if now.Before(b.last) {
		// 单调性保护：若时钟回拨，视为无时间流逝
		return
	}
	dt := now.Sub(b.last).Seconds()
	if dt <= 0 {
		return
	}
	b.level += dt * b.rate
	if b.level > float64(b.cap) {
		b.level = float64(b.cap)
	}
	b.last = now
}

// waitFor 返回攒够 1 个请求额度还需等待的时长（向下近似）。
func (b *bucket) waitFor() time.Duration {
	deficit := 1 - b.level
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / b.rate * float64(time.Second))
}

// Try: 非阻塞尝试；不足时返回 false。
func (g *Gate) Try() bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.req.refill(g.clk())
	if g.req.level >= 1 {
		g.req.level--
		return true
	}
	return false
}

// Wait: 阻塞直到额度可用或 ctx 取消。
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	// 最小睡眠粒度，避免忙等
	const minSleep = 10 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g.Try() {
			return nil
		}
		g.mu.Lock()
		d := g.req.waitFor() + minSleep
		g.mu.Unlock()
		if err := g.sleep(ctx, d); err != nil {
			return err
		}
	}
}

// Available: 当前可用请求额度的向下取整估值（仅诊断）。
func (g *Gate) Available() int {
	if g == nil {
		return -1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.req.refill(g.clk())
	return int(g.req.level)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	// 若 d 很长，分片为最多 200ms 的步长，及时响应取消
	const step = 200 * time.Millisecond
	for d > 0 {
		s := min(d, step)
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}

// ValidateRPM 供配置层做静态检查。
func ValidateRPM(rpm int) error {
	if rpm < 0 {
		return contract.ErrInvalidInput
	}
	return nil
}
