package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 超过 RPM：首个请求通过，第二个被拒绝；一秒后（rpm=60）恢复。
func TestGateTryLimit(t *testing.T) {
	now := time.Unix(0, 0)
	g := NewGate(60, func() time.Time { return now })
	for i := 0; i < 60; i++ {
		require.True(t, g.Try(), "request %d", i)
	}
	assert.False(t, g.Try())
	now = now.Add(time.Second)
	assert.True(t, g.Try())
}

// Wait 按缺口时长睡眠，睡眠期间推进虚拟时钟。
func TestGateWaitSleepsForDeficit(t *testing.T) {
	now := time.Unix(0, 0)
	g := NewGate(1, func() time.Time { return now })
	var slept []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}
	require.NoError(t, g.Wait(context.Background()))
	assert.Empty(t, slept)
	require.NoError(t, g.Wait(context.Background()))
	require.Len(t, slept, 1)
	assert.InDelta(t, 60*time.Second, slept[0], float64(20*time.Millisecond))
}

// 取消上下文
func TestGateWaitCancel(t *testing.T) {
	now := time.Unix(0, 0)
	g := NewGate(1, func() time.Time { return now })
	require.True(t, g.Try())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}

func TestNilGateUnlimited(t *testing.T) {
	g := NewGate(0, nil)
	assert.Nil(t, g)
	assert.True(t, g.Try())
	assert.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, -1, g.Available())
	assert.Error(t, ValidateRPM(-1))
}

// 时钟回拨不应凭空增加额度。
func TestGateClockSkew(t *testing.T) {
	now := time.Unix(100, 0)
	g := NewGate(2, func() time.Time { return now })
	require.True(t, g.Try())
	require.True(t, g.Try())
	now = now.Add(-time.Hour)
	assert.False(t, g.Try())
	assert.Equal(t, 0, g.Available())
}

func TestPacerPause(t *testing.T) {
	var got []time.Duration
	p := NewPacer(1500 * time.Millisecond).WithSleep(func(_ context.Context, d time.Duration) error {
		got = append(got, d)
		return nil
	})
	require.NoError(t, p.Pause(context.Background()))
	require.NoError(t, p.Pause(context.Background()))
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, got)
	assert.Equal(t, 1500*time.Millisecond, p.Delay())
}

func TestPacerZeroAndCancel(t *testing.T) {
	var nilPacer *Pacer
	assert.NoError(t, nilPacer.Pause(context.Background()))
	assert.NoError(t, NewPacer(0).Pause(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, NewPacer(time.Hour).Pause(ctx), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
