package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"sheetdoc/pkg/contract"
)

var prompt = contract.ChatPrompt{{Role: "system", Content: "sys"}, {Role: "user", Content: "Name: Ann"}}

// 凭据缺失：不创建 SDK 客户端，也不发起任何请求。
func TestMissingCredentialNoDial(t *testing.T) {
	c, err := New(nil, contract.Credential{})
	require.NoError(t, err)
	dialed := false
	c.newSDK = func(context.Context) (*genai.Client, error) {
		dialed = true
		return nil, errors.New("unexpected dial")
	}
	_, err = c.Invoke(context.Background(), contract.Batch{}, prompt)
	require.ErrorIs(t, err, contract.ErrMissingCredential)
	assert.False(t, dialed)
}

func TestDefaults(t *testing.T) {
	c, err := New(nil, contract.NewCredential("k"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultMaxTokens, c.opts.MaxTokens)
	assert.InDelta(t, DefaultTemperature, *c.opts.Temperature, 1e-9)
	assert.Equal(t, 60, c.opts.TimeoutSeconds)
}

// SDK 初始化失败视为上游错误（可回退）。
func TestDialFailureIsUpstream(t *testing.T) {
	c, _ := New(nil, contract.NewCredential("k"))
	c.newSDK = func(context.Context) (*genai.Client, error) { return nil, errors.New("no route") }
	_, err := c.Invoke(context.Background(), contract.Batch{}, prompt)
	assert.ErrorIs(t, err, contract.ErrUpstream)
	assert.False(t, contract.Malformed(err))
}

func TestMapError(t *testing.T) {
	err := mapError(genai.APIError{Code: 429, Message: "quota"})
	var ue *contract.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 429, ue.Status)
	assert.Equal(t, "quota", ue.Message)

	err = mapError(errors.New("reset"))
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 0, ue.Status)
}

func TestEmptyPrompt(t *testing.T) {
	c, _ := New(nil, contract.NewCredential("k"))
	_, err := c.Invoke(context.Background(), contract.Batch{}, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
