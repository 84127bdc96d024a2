package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"sheetdoc/pkg/contract"
)

// 与 openai 客户端保持同一组采样默认值。
const (
	DefaultModel       = "gemini-2.5-flash"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.3
)

// Options: Gemini（Google GenAI SDK）最小配置。凭据由装配层注入。
type Options struct {
	BaseURL        string   `yaml:"base_url"` // 为空使用 SDK 默认
	Model          string   `yaml:"model"`
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    *float64 `yaml:"temperature"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

func (o *Options) defaults() {
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
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

type Client struct {
	opts Options
	cred contract.Credential

	once   sync.Once
	sdk    *genai.Client
	sdkErr error
	newSDK func(ctx context.Context) (*genai.Client, error)
}

// New 构造客户端；SDK 客户端延迟到首次 Invoke（凭据检查之后）创建。
func New(opts *Options, cred contract.Credential) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	o.defaults()
	c := &Client{opts: o, cred: cred}
	c.newSDK = c.dial
	return c, nil
}

// Model 返回生效的模型标识。
func (c *Client) Model() string { return c.opts.Model }

func (c *Client) dial(ctx context.Context) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:     c.cred.Reveal(),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: time.Duration(c.opts.TimeoutSeconds) * time.Second},
	}
	if c.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.opts.BaseURL}
	}
	return genai.NewClient(ctx, cfg)
}

// Invoke: system 消息进入 SystemInstruction，其余按 user 内容发送。
func (c *Client) Invoke(ctx context.Context, b contract.Batch, p contract.ChatPrompt) (contract.Raw, error) {
	if c.cred.Empty() {
		return contract.Raw{}, fmt.Errorf("gemini: %w", contract.ErrMissingCredential)
	}
	if len(p) == 0 {
		return contract.Raw{}, fmt.Errorf("gemini encode: %w", contract.ErrInvalidInput)
	}
	c.once.Do(func() { c.sdk, c.sdkErr = c.newSDK(ctx) })
	if c.sdkErr != nil {
		return contract.Raw{}, &contract.UpstreamError{Provider: "gemini", Err: c.sdkErr}
	}

	temp := float32(*c.opts.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(c.opts.MaxTokens),
	}
	if sys := p.System(); sys != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(p.User(), genai.RoleUser)}

	resp, err := c.sdk.Models.GenerateContent(ctx, c.opts.Model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Raw{}, ctx.Err()
		}
		return contract.Raw{}, mapError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return contract.Raw{}, &contract.UpstreamError{Provider: "gemini", Status: http.StatusOK, Message: "no candidates", Err: contract.ErrResponseInvalid}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return contract.Raw{}, &contract.UpstreamError{Provider: "gemini", Status: http.StatusOK, Message: "no completion text", Err: contract.ErrResponseInvalid}
	}
	return contract.Raw{Text: text}, nil
}

// mapError 将 SDK 错误映射为 UpstreamError（保留 HTTP 状态与消息）。
func mapError(err error) error {
	var ae genai.APIError
	if errors.As(err, &ae) {
		return &contract.UpstreamError{Provider: "gemini", Status: ae.Code, Message: ae.Message}
	}
	var pae *genai.APIError
	if errors.As(err, &pae) && pae != nil {
		return &contract.UpstreamError{Provider: "gemini", Status: pae.Code, Message: pae.Message}
	}
	return &contract.UpstreamError{Provider: "gemini", Err: err}
}

var _ contract.LLMClient = (*Client)(nil)
