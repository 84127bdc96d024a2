// Package secret 在启动时解析唯一的不透明 API 凭据。
package secret

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"sheetdoc/pkg/contract"
)

// Env 从环境变量读取凭据；变量未设置或为空白时返回空凭据。
type Env struct {
	Name   string
	lookup func(string) (string, bool)
}

// NewEnv 构造环境变量来源。
func NewEnv(name string) Env { return Env{Name: name, lookup: os.LookupEnv} }

func (e Env) Resolve(ctx context.Context) (contract.Credential, error) {
	if err := ctx.Err(); err != nil {
		return contract.Credential{}, err
	}
	if strings.TrimSpace(e.Name) == "" {
		return contract.Credential{}, nil
	}
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, _ := lookup(e.Name)
	return contract.NewCredential(strings.TrimSpace(v)), nil
}

// File 从文件读取凭据（首尾空白去除）；文件不存在视为未找到。
type File struct {
	Path string
}

func (f File) Resolve(ctx context.Context) (contract.Credential, error) {
	if err := ctx.Err(); err != nil {
		return contract.Credential{}, err
	}
	if strings.TrimSpace(f.Path) == "" {
		return contract.Credential{}, nil
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return contract.Credential{}, nil
		}
		return contract.Credential{}, fmt.Errorf("read credential file: %w", err)
	}
	return contract.NewCredential(strings.TrimSpace(string(b))), nil
}

// Chain 依次尝试各来源，返回首个非空凭据。
type Chain []contract.CredentialSource

func (c Chain) Resolve(ctx context.Context) (contract.Credential, error) {
	for _, s := range c {
		if s == nil {
			continue
		}
		cred, err := s.Resolve(ctx)
		if err != nil {
			return contract.Credential{}, err
		}
		if !cred.Empty() {
			return cred, nil
		}
	}
	return contract.Credential{}, nil
}

// Require 解析凭据，未找到时返回 ErrMissingCredential。
func Require(ctx context.Context, src contract.CredentialSource, what string) (contract.Credential, error) {
	if src == nil {
		return contract.Credential{}, fmt.Errorf("%s: %w", what, contract.ErrMissingCredential)
	}
	cred, err := src.Resolve(ctx)
	if err != nil {
		return contract.Credential{}, err
	}
	if cred.Empty() {
		return contract.Credential{}, fmt.Errorf("%s: %w", what, contract.ErrMissingCredential)
	}
	return cred, nil
}

var (
	_ contract.CredentialSource = Env{}
	_ contract.CredentialSource = File{}
	_ contract.CredentialSource = Chain(nil)
)
