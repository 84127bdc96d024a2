package contract

import (
	"errors"
	"fmt"
)

// UpstreamError 承载上游调用失败的最小诊断信息。
// Status 为 HTTP 状态码（传输层失败时为 0）；Err 为分类哨兵或底层原因。
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s upstream %d: %s", e.Provider, e.Status, msg)
	}
	return fmt.Sprintf("%s upstream: %s", e.Provider, msg)
}

func (e *UpstreamError) Unwrap() error {
	if e.Err == nil {
		return ErrUpstream
	}
	return e.Err
}

// Is 使所有 UpstreamError 同时匹配 ErrUpstream（即便 Err 为其他原因）。
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// UpstreamStatus/UpstreamMessage 供日志结构化字段使用。
func (e *UpstreamError) UpstreamStatus() int     { return e.Status }
func (e *UpstreamError) UpstreamMessage() string { return e.Message }

// Malformed 报告错误是否为“响应形状无效”。
func Malformed(err error) bool { return errors.Is(err, ErrResponseInvalid) }
