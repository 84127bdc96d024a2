package prompt

import "sheetdoc/pkg/contract"

// MessageOverhead: 每条消息的角色/分隔开销（近似 token）。
const MessageOverhead = 4

// Estimator 近似估算文本 token 数。
type Estimator func(s string) int

// MakeEstimator 返回一个近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// 当 bytesPerToken<=0 时采用默认 4。
func MakeEstimator(bytesPerToken int) Estimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// Estimate 估算整段会话提示词的 token 数（含每条消息的固定开销）。
// est 为 nil 时使用默认估算器。
func Estimate(p contract.ChatPrompt, est Estimator) int {
	if est == nil {
		est = MakeEstimator(0)
	}
	total := 0
	for _, m := range p {
		total += MessageOverhead + est(m.Content)
	}
	return total
}
