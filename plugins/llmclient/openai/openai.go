package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sheetdoc/pkg/contract"
)

// 固定采样参数默认值：有界输出长度、低随机性。
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.3
)

// Options: 最小必需配置。凭据不在此处出现，由装配层解析后注入。
type Options struct {
	BaseURL        string   `yaml:"base_url"`        // 例如 https://api.openai.com/v1
	Model          string   `yaml:"model"`           // 为空则使用默认
	MaxTokens      int      `yaml:"max_tokens"`      // <=0 使用默认 1000
	Temperature    *float64 `yaml:"temperature"`     // nil 使用默认 0.3
	TimeoutSeconds int      `yaml:"timeout_seconds"` // client 级超时（秒），<=0 使用 60
	// 第三方兼容（最小）：
	EndpointPath       string            `yaml:"endpoint_path"`        // 覆盖默认 /chat/completions；可为完整 URL
	DisableDefaultAuth bool              `yaml:"disable_default_auth"` // 关闭默认 Authorization: Bearer 注入
	ExtraHeaders       map[string]string `yaml:"extra_headers"`        // 追加/覆盖请求头（Azure/OpenRouter 等）
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature == nil {
		t := DefaultTemperature
		o.Temperature = &t
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

type Client struct {
	url         string
	cred        contract.Credential
	model       string
	maxTokens   int
	temp        float64
	extraH      map[string]string
	disableAuth bool
	do          func(*http.Request) (*http.Response, error)
}

// New 构造客户端。凭据可以为空：缺失在 Invoke 时于任何网络调用前报告。
func New(opts *Options, cred contract.Credential) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	o.defaults()
	if o.MaxTokens < 1 {
		return nil, fmt.Errorf("openai: %w: max_tokens must be > 0", contract.ErrInvalidInput)
	}
	hc := &http.Client{Timeout: time.Duration(o.TimeoutSeconds) * time.Second}
	// 允许 endpoint_path 为完整 URL
	fullURL := o.EndpointPath
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		base := strings.TrimRight(o.BaseURL, "/")
		path := strings.TrimLeft(o.EndpointPath, "/")
		fullURL = base + "/" + path
	}
	return &Client{
		url:         fullURL,
		cred:        cred,
		model:       o.Model,
		maxTokens:   o.MaxTokens,
		temp:        *o.Temperature,
		extraH:      o.ExtraHeaders,
		disableAuth: o.DisableDefaultAuth,
		do:          hc.Do,
	}, nil
}

// Model 返回生效的模型标识。
func (c *Client) Model() string { return c.model }

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaReq struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens"`
	Temperature float64     `json:"temperature"`
}

type oaError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type oaResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *oaError `json:"error"`
}

func (c *Client) encodePrompt(p contract.ChatPrompt) ([]byte, error) {
	if len(p) == 0 {
		return nil, contract.ErrInvalidInput
	}
	req := oaReq{Model: c.model, MaxTokens: c.maxTokens, Temperature: c.temp}
	req.Messages = make([]oaMessage, 0, len(p))
	for _, m := range p {
		req.Messages = append(req.Messages, oaMessage{Role: m.Role, Content: m.Content})
	}
	return json.Marshal(&req)
}

// Invoke: 单次调用，同步返回，不重试。
func (c *Client) Invoke(ctx context.Context, b contract.Batch, p contract.ChatPrompt) (contract.Raw, error) {
	// 凭据缺失：在构造请求之前快速失败
	if c.cred.Empty() && !c.disableAuth {
		return contract.Raw{}, fmt.Errorf("openai: %w", contract.ErrMissingCredential)
	}
	body, err := c.encodePrompt(p)
	if err != nil {
		return contract.Raw{}, fmt.Errorf("openai encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return contract.Raw{}, fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	if !c.disableAuth {
		req.Header.Set("Authorization", "Bearer "+c.cred.Reveal())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return contract.Raw{}, ctx.Err()
			}
		}
		return contract.Raw{}, &contract.UpstreamError{Provider: "openai", Err: err}
	}
	defer resp.Body.Close()

	// 读取有界响应体：成功体用于解码，失败体用于诊断
	slurp, rerr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if rerr != nil {
		return contract.Raw{}, &contract.UpstreamError{Provider: "openai", Status: resp.StatusCode, Err: rerr}
	}
	var or oaResp
	decErr := json.Unmarshal(slurp, &or)

	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(slurp))
		if decErr == nil && or.Error != nil && or.Error.Message != "" {
			msg = or.Error.Message
		}
		return contract.Raw{}, &contract.UpstreamError{Provider: "openai", Status: resp.StatusCode, Message: truncate(msg, 512)}
	}
	if decErr != nil {
		return contract.Raw{}, &contract.UpstreamError{Provider: "openai", Status: resp.StatusCode, Message: "decode: " + decErr.Error(), Err: contract.ErrResponseInvalid}
	}
	// 部分兼容服务以 200 + error 对象报告失败
	if or.Error != nil {
		return contract.Raw{}, &contract.UpstreamError{Provider: "openai", Status: resp.StatusCode, Message: truncate(or.Error.Message, 512)}
	}
	if len(or.Choices) == 0 || strings.TrimSpace(or.Choices[0].Message.Content) == "" {
		return contract.Raw{}, &contract.UpstreamError{Provider: "openai", Status: resp.StatusCode, Message: "no completion text", Err: contract.ErrResponseInvalid}
	}
	return contract.Raw{Text: or.Choices[0].Message.Content}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ contract.LLMClient = (*Client)(nil)
