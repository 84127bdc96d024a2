package diag

import (
	"context"
	"errors"
	"io/fs"

	"sheetdoc/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeInput      Code = "input"
	CodeCredential Code = "credential"
	CodeUpstream   Code = "upstream"
	CodeProtocol   Code = "protocol"
	CodeCancel     Code = "cancel"
	CodeIO         Code = "io"
	CodeConfig     Code = "config"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrMissingCredential) {
		return CodeCredential
	}
	if errors.Is(err, contract.ErrConfigInvalid) {
		return CodeConfig
	}
	// 畸形响应先于一般上游错误（二者同时匹配 ErrUpstream）
	if errors.Is(err, contract.ErrResponseInvalid) {
		return CodeProtocol
	}
	if errors.Is(err, contract.ErrUpstream) {
		return CodeUpstream
	}
	if errors.Is(err, contract.ErrInputTooSmall) || errors.Is(err, contract.ErrInvalidInput) {
		return CodeInput
	}
	if errors.Is(err, contract.ErrPathInvalid) {
		return CodeIO
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
