package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"sheetdoc/internal/pipeline"
	"sheetdoc/pkg/contract"
)

// 环境变量前缀。
const EnvPrefix = "SHEETDOC_"

// 默认值。
const (
	DefaultPauseMS  = 1000
	DefaultLogLevel = "info"
	DefaultLogDir   = "logs"
	// DefaultFile: 工作目录下自动读取的配置文件名。
	DefaultFile = "sheetdoc.yaml"
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：LLM 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	pause := DefaultPauseMS
	return Config{
		BatchSize: contract.DefaultBatchSize,
		PauseMS:   &pause,
		Logging:   Logging{Level: DefaultLogLevel, Dir: DefaultLogDir},
		Components: Components{
			Reader:        "auto",
			Batcher:       "fixed",
			PromptBuilder: "rowformat",
			Assembler:     "markdown",
			Writer:        "filesystem",
		},
		Document: Document{
			Title:           pipeline.DefaultTitle,
			Footer:          pipeline.DefaultFooter,
			TimestampLayout: pipeline.DefaultTimestampLayout,
		},
		Theme: contract.DefaultTheme(),
	}
}

// Load 从文件路径或原始 YAML/JSON 解析 Config（严格拒绝未知字段）。
// raw 优先于 path；空文档返回零值。
func Load(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%w: %v", contract.ErrConfigInvalid, err)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 标量/字符串/原样 Options 为“替换”；Provider 按字段合并；Theme 按样式字段合并。
func Merge(base, over Config) Config {
	out := base
	if s := strings.TrimSpace(over.Input); s != "" {
		out.Input = s
	}
	if s := strings.TrimSpace(over.Sheet); s != "" {
		out.Sheet = s
	}
	if s := strings.TrimSpace(over.Output); s != "" {
		out.Output = s
	}
	if over.BatchSize != 0 {
		out.BatchSize = over.BatchSize
	}
	// 指针字段：非 nil 即“存在”，可显式覆盖为 0/false。
	if over.PauseMS != nil {
		v := *over.PauseMS
		out.PauseMS = &v
	}
	if over.AbortOnMalformed != nil {
		v := *over.AbortOnMalformed
		out.AbortOnMalformed = &v
	}
	if over.Sidecar != nil {
		v := *over.Sidecar
		out.Sidecar = &v
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}

	// 组件名（空不覆盖）
	out.Components.Reader = pick(out.Components.Reader, over.Components.Reader)
	out.Components.Batcher = pick(out.Components.Batcher, over.Components.Batcher)
	out.Components.PromptBuilder = pick(out.Components.PromptBuilder, over.Components.PromptBuilder)
	out.Components.Assembler = pick(out.Components.Assembler, over.Components.Assembler)
	out.Components.Writer = pick(out.Components.Writer, over.Components.Writer)

	// Options（完整替换对应键）
	if over.Options.Reader != nil {
		out.Options.Reader = over.Options.Reader
	}
	if over.Options.PromptBuilder != nil {
		out.Options.PromptBuilder = over.Options.PromptBuilder
	}
	if over.Options.Assembler != nil {
		out.Options.Assembler = over.Options.Assembler
	}
	if over.Options.Writer != nil {
		out.Options.Writer = over.Options.Writer
	}

	out.Document.Title = pick(out.Document.Title, over.Document.Title)
	out.Document.Footer = pick(out.Document.Footer, over.Document.Footer)
	out.Document.TimestampLayout = pick(out.Document.TimestampLayout, over.Document.TimestampLayout)
	out.Theme = out.Theme.Merge(over.Theme)

	// Provider（按字段合并，避免局部 ENV 覆盖清空文件中的定义）
	if len(over.Provider) > 0 {
		merged := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			merged[k] = v
		}
		for k, v := range over.Provider {
			merged[k] = mergeProvider(merged[k], v)
		}
		out.Provider = merged
	}

	if s := strings.TrimSpace(over.LLM); s != "" {
		out.LLM = s
	}
	return out
}

func mergeProvider(base, over Provider) Provider {
	out := base
	out.Client = pick(out.Client, over.Client)
	out.Credential.Env = pick(out.Credential.Env, over.Credential.Env)
	out.Credential.File = pick(out.Credential.File, over.Credential.File)
	if over.Limits.RPM != 0 {
		out.Limits.RPM = over.Limits.RPM
	}
	if over.Options != nil {
		out.Options = over.Options
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 SHEETDOC_；集合之外的键忽略；数值/布尔解析失败返回 ErrConfigInvalid。
// 支持：INPUT, SHEET, OUTPUT, BATCH_SIZE, PAUSE_MS, ABORT_ON_MALFORMED, SIDECAR, LLM,
// LOG_LEVEL, LOG_DIR, COMPONENTS_*, DOCUMENT_{TITLE,FOOTER,TIMESTAMP_LAYOUT}
// 以及 PROVIDER__<name>__{CLIENT,CREDENTIAL_ENV,CREDENTIAL_FILE,LIMITS_RPM,OPTIONS_YAML}。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[len(EnvPrefix):eq]
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			// 空值视为未设置，避免清空现有配置
			continue
		}
		var err error
		switch key {
		case "INPUT":
			over.Input = val
		case "SHEET":
			over.Sheet = val
		case "OUTPUT":
			over.Output = val
		case "BATCH_SIZE":
			over.BatchSize, err = atoi(key, val)
		case "PAUSE_MS":
			var v int
			if v, err = atoi(key, val); err == nil {
				over.PauseMS = &v
			}
		case "ABORT_ON_MALFORMED":
			var v bool
			if v, err = parseBool(key, val); err == nil {
				over.AbortOnMalformed = &v
			}
		case "SIDECAR":
			var v bool
			if v, err = parseBool(key, val); err == nil {
				over.Sidecar = &v
			}
		case "LLM":
			over.LLM = val
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_BATCHER":
			over.Components.Batcher = val
		case "COMPONENTS_PROMPT_BUILDER":
			over.Components.PromptBuilder = val
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "DOCUMENT_TITLE":
			over.Document.Title = val
		case "DOCUMENT_FOOTER":
			over.Document.Footer = val
		case "DOCUMENT_TIMESTAMP_LAYOUT":
			over.Document.TimestampLayout = val
		default:
			// provider.* 路径：PROVIDER__name__FIELD
			if !strings.HasPrefix(key, "PROVIDER__") {
				continue
			}
			parts := strings.SplitN(key, "__", 3)
			if len(parts) != 3 || strings.TrimSpace(parts[1]) == "" {
				continue
			}
			name := strings.TrimSpace(parts[1])
			p := prov[name]
			switch parts[2] {
			case "CLIENT":
				p.Client = val
			case "CREDENTIAL_ENV":
				p.Credential.Env = val
			case "CREDENTIAL_FILE":
				p.Credential.File = val
			case "LIMITS_RPM":
				p.Limits.RPM, err = atoi(key, val)
			case "OPTIONS_YAML":
				p.Options, err = parseNode(key, val)
			default:
				continue
			}
			prov[name] = p
		}
		if err != nil {
			return Config{}, err
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

// parseNode 将原样 YAML/JSON 文本解析为子树（取文档根）。
func parseNode(key, src string) (*Raw, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("%w: %s%s: %v", contract.ErrConfigInvalid, EnvPrefix, key, err)
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		return NewRaw(doc.Content[0]), nil
	}
	return NewRaw(&doc), nil
}

func pick(cur, over string) string {
	if s := strings.TrimSpace(over); s != "" {
		return s
	}
	return cur
}

func atoi(key, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s: not an integer: %q", contract.ErrConfigInvalid, EnvPrefix, key, s)
	}
	return n, nil
}

func parseBool(key, s string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("%w: %s%s: not a boolean: %q", contract.ErrConfigInvalid, EnvPrefix, key, s)
	}
	return b, nil
}
