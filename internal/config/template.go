package config

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 使用 mock LLM（本地/离线调试友好），并给出 openai/gemini 定义；
// - 默认输入为 STDIN（"-"），Markdown 输出到 ./out；
// - 选项给出安全中性默认值，包含全部可用键。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Input = "-"
	cfg.LLM = "mock"
	cfg.Provider = map[string]Provider{
		"mock": {
			Client:  "mock",
			Options: mustNode("response_mode: sections\nprefix: \"\"\n"),
		},
		"flaky": {
			Client:  "flaky",
			Options: mustNode("fail_batches: []\nmalformed_batches: []\nfail_first: 0\nlog_path: \"\"\n"),
		},
		"openai": {
			Client:     "openai",
			Credential: Credential{Env: "OPENAI_API_KEY"},
			Limits:     Limits{RPM: 60},
			Options: mustNode(`base_url: https://api.openai.com/v1
model: gpt-4o-mini
max_tokens: 1000
temperature: 0.3
timeout_seconds: 60
endpoint_path: ""
disable_default_auth: false
extra_headers: {}
`),
		},
		"gemini": {
			Client:     "gemini",
			Credential: Credential{Env: "GEMINI_API_KEY"},
			Limits:     Limits{RPM: 15},
			Options: mustNode(`base_url: ""
model: gemini-2.5-flash
max_tokens: 1000
temperature: 0.3
timeout_seconds: 60
`),
		},
	}
	cfg.Options.Reader = mustNode("delimiter: \",\"\ncomment: \"\"\ntrim_space: false\nlazy_quotes: false\nbuf_size: 65536\n")
	cfg.Options.PromptBuilder = mustNode(`inline_system_template: ""
system_template_path: ""
inline_guidelines: ""
guidelines_path: ""
`)
	cfg.Options.Assembler = mustNode("no_escape: false\n")
	cfg.Options.Writer = mustNode(`output_dir: out
atomic: true
flat: true
no_clobber: false
perm_file: 0
perm_dir: 0
buf_size: 65536
`)
	return cfg
}

// TemplateYAML 以 YAML 编码默认模板。
func TemplateYAML() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# sheetdoc 配置模板（由 init-config 生成）\n# 优先级：CLI > ENV(.env) > 本文件 > 内置默认\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(DefaultTemplateConfig()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EnvTemplate 返回 .env 模板：包含支持的覆盖项与常见 Provider 密钥。
func EnvTemplate() string {
	var b strings.Builder
	b.WriteString("# sheetdoc .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > sheetdoc.yaml\n")
	b.WriteString("# 空值表示未设置；.env 不覆盖已存在的环境变量。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString(EnvPrefix + "CONFIG_FILE=\n")
	b.WriteString(EnvPrefix + "CONFIG_YAML=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUT", "SHEET", "OUTPUT", "BATCH_SIZE", "PAUSE_MS", "ABORT_ON_MALFORMED", "SIDECAR", "LLM", "LOG_LEVEL", "LOG_DIR"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择\n")
	for _, k := range []string{"READER", "BATCHER", "PROMPT_BUILDER", "ASSEMBLER", "WRITER"} {
		b.WriteString(EnvPrefix + "COMPONENTS_" + k + "=\n")
	}
	b.WriteString("\n# 文档文案\n")
	for _, k := range []string{"TITLE", "FOOTER", "TIMESTAMP_LAYOUT"} {
		b.WriteString(EnvPrefix + "DOCUMENT_" + k + "=\n")
	}
	for _, p := range []string{"openai", "gemini"} {
		b.WriteString("\n# Provider 覆盖（" + p + "）\n")
		for _, f := range []string{"CLIENT", "CREDENTIAL_ENV", "CREDENTIAL_FILE", "LIMITS_RPM", "OPTIONS_YAML"} {
			b.WriteString(EnvPrefix + "PROVIDER__" + p + "__" + f + "=\n")
		}
	}
	b.WriteString("\n# 常见供应商 API Key（由凭据来源读取，不经 " + EnvPrefix + " 前缀）\n")
	b.WriteString("OPENAI_API_KEY=\n")
	b.WriteString("GEMINI_API_KEY=\n")
	return b.String()
}

func mustNode(src string) *Raw {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		panic(err)
	}
	return NewRaw(doc.Content[0])
}
