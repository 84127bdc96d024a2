package contract

import "context"

// Credential: 不透明凭据。仅 LLM 客户端通过 Reveal 取用明文；
// String/GoString 永远脱敏，避免误入日志。
type Credential struct {
	v string
}

// NewCredential 包装明文凭据。
func NewCredential(s string) Credential { return Credential{v: s} }

// Empty 表示未解析到凭据。
func (c Credential) Empty() bool { return c.v == "" }

// Reveal 返回明文。
func (c Credential) Reveal() string { return c.v }

func (c Credential) String() string {
	if c.v == "" {
		return "<empty>"
	}
	return "<redacted>"
}

func (c Credential) GoString() string { return c.String() }

// CredentialSource: 凭据解析协作者（环境变量/文件等）。
// 未找到时返回空 Credential 与 nil 错误；读取失败才返回错误。
type CredentialSource interface {
	Resolve(ctx context.Context) (Credential, error)
}
