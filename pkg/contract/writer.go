package contract

import (
	"context"
	"io"
)

// ArtifactID: 输出工件标识（通常为输出文件名）。
type ArtifactID string

// Writer: 将装配结果以流式方式持久化到目标介质。
// 约束：
//  1. 按字节透传，不读取/修改业务内容；
//  2. ctx 取消需尽快返回；
//  3. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
