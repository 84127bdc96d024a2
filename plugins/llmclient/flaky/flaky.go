package flaky

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync/atomic"

	"sheetdoc/pkg/contract"
	"sheetdoc/plugins/llmclient/mock"
)

// Options 定义可选项。
type Options struct {
	// FailBatches: 这些批次返回 503 上游错误。
	FailBatches []int `yaml:"fail_batches"`
	// MalformedBatches: 这些批次返回畸形响应错误。
	MalformedBatches []int `yaml:"malformed_batches"`
	// FailFirst: 前 N 次调用失败（不论批次号）。
	FailFirst int `yaml:"fail_first"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `yaml:"log_path"`
}

// Client 是带状态的演练实现：按配置让指定批次失败，其余与 mock 相同。
type Client struct {
	fail      []int
	malformed []int
	failFirst int32
	logPath   string
	count     atomic.Int32
}

// New 构造 Client。
func New(opts *Options) (*Client, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.FailFirst < 0 {
		return nil, fmt.Errorf("flaky: %w: fail_first must be >= 0", contract.ErrInvalidInput)
	}
	return &Client{
		fail:      slices.Clone(o.FailBatches),
		malformed: slices.Clone(o.MalformedBatches),
		failFirst: int32(o.FailFirst),
		logPath:   o.LogPath,
	}, nil
}

// Calls 返回累计调用次数。
func (c *Client) Calls() int { return int(c.count.Load()) }

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Invoke 实现 contract.LLMClient。
func (c *Client) Invoke(ctx context.Context, b contract.Batch, p contract.ChatPrompt) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	n := c.count.Add(1)
	switch {
	case n <= c.failFirst || slices.Contains(c.fail, b.BatchIndex):
		c.log(fmt.Sprintf("batch=%d unavailable", b.BatchIndex))
		return contract.Raw{}, &contract.UpstreamError{Provider: "flaky", Status: http.StatusServiceUnavailable, Message: "service unavailable"}
	case slices.Contains(c.malformed, b.BatchIndex):
		c.log(fmt.Sprintf("batch=%d malformed", b.BatchIndex))
		return contract.Raw{}, &contract.UpstreamError{Provider: "flaky", Status: http.StatusOK, Message: "no completion text", Err: contract.ErrResponseInvalid}
	default:
		c.log(fmt.Sprintf("batch=%d ok", b.BatchIndex))
		return contract.Raw{Text: mock.Format(b, "", false)}, nil
	}
}

var _ contract.LLMClient = (*Client)(nil)
