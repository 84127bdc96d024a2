package diag

import (
	"maps"
	"sync"
)

// 进程内最小指标（计数器）：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计）

var metrics = struct {
	mu     sync.Mutex
	ops    map[string]int64
	errs   map[string]int64
	durSum map[string]int64
}{ops: map[string]int64{}, errs: map[string]int64{}, durSum: map[string]int64{}}

// IncOp 累加操作计数（result=success|fallback|error）。
func IncOp(comp, stage, result string) {
	metrics.mu.Lock()
	metrics.ops[comp+"/"+stage+"/"+result]++
	metrics.mu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metrics.mu.Lock()
	metrics.errs[comp+"/"+code]++
	metrics.mu.Unlock()
}

// ObserveDuration 累加阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	metrics.mu.Lock()
	metrics.durSum[comp+"/"+stage] += durMS
	metrics.mu.Unlock()
}

// Metrics 是计数器快照；键形如 "comp/stage/result"、"comp/code"、"comp/stage"。
type Metrics struct {
	Ops        map[string]int64 `json:"ops"`
	Errors     map[string]int64 `json:"errors"`
	DurationMS map[string]int64 `json:"duration_ms"`
}

// Snapshot 返回当前计数器的拷贝。
func Snapshot() Metrics {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	return Metrics{Ops: maps.Clone(metrics.ops), Errors: maps.Clone(metrics.errs), DurationMS: maps.Clone(metrics.durSum)}
}

// ResetMetrics 清零全部计数器（每次运行开始时调用）。
func ResetMetrics() {
	metrics.mu.Lock()
	clear(metrics.ops)
	clear(metrics.errs)
	clear(metrics.durSum)
	metrics.mu.Unlock()
}
