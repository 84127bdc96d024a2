package contract

import "context"

// Raw: 模型返回的原始补全文本，原样返回。
type Raw struct {
	Text string
}

// LLMClient: 以 Batch+Prompt 为单位与大模型交互，返回单条补全文本。
// 单次调用、同步返回、不做重试；应尊重 ctx 取消。
// 凭据缺失时必须在任何网络调用之前返回 ErrMissingCredential。
type LLMClient interface {
	Invoke(ctx context.Context, b Batch, p ChatPrompt) (Raw, error)
}
