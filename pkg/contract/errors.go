package contract

import "errors"

// 错误分类（用于编排层策略判定与日志分类）。
var (
	// ErrInputTooSmall: 源表不足 2 行（表头 + 至少一条数据）。
	ErrInputTooSmall = errors.New("input too small")
	// ErrMissingCredential: 需要凭据的上游未解析到凭据。
	ErrMissingCredential = errors.New("missing credential")
	// ErrUpstream: 上游返回非成功状态或错误对象。
	ErrUpstream = errors.New("upstream error")
	// ErrResponseInvalid: 上游响应形状不符合预期（无法解码/缺少补全文本）。
	ErrResponseInvalid = errors.New("response invalid")
	// ErrInvalidInput: 组件输入或配置非法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 工件标识映射为无效/越界路径。
	ErrPathInvalid = errors.New("path invalid")
	// ErrConfigInvalid: 配置静态校验或装配失败。
	ErrConfigInvalid = errors.New("config invalid")
)
