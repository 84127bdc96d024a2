package rate

import (
	"context"
	"time"
)

// Pacer: 每批之后的固定停顿（不区分成功或回退）。
// 零值/nil 不停顿。
type Pacer struct {
	delay time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer 构造固定停顿器；d<=0 表示不停顿。
func NewPacer(d time.Duration) *Pacer {
	return &Pacer{delay: d, sleep: sleepCtx}
}

// Delay 返回配置的停顿时长。
func (p *Pacer) Delay() time.Duration {
	if p == nil {
		return 0
	}
	return p.delay
}

// Pause 阻塞固定时长；ctx 取消时提前返回其错误。
func (p *Pacer) Pause(ctx context.Context) error {
	if p == nil || p.delay <= 0 {
		return ctx.Err()
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, p.delay)
}

// WithSleep 替换睡眠实现（测试与演练使用），返回自身。
func (p *Pacer) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Pacer {
	if p != nil && fn != nil {
		p.sleep = fn
	}
	return p
}
