package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sheetdoc/internal/diag"
	"sheetdoc/internal/pipeline"
	"sheetdoc/internal/rate"
	"sheetdoc/internal/secret"
	"sheetdoc/pkg/contract"
	"sheetdoc/pkg/registry"
	"sheetdoc/plugins/render/fallback"
	"sheetdoc/plugins/render/richtext"
)

// 各 client 的默认凭据环境变量。
var defaultCredentialEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"gemini": "GEMINI_API_KEY",
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("config: %w: "+format, append([]any{contract.ErrConfigInvalid}, a...)...)
}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Input) == "" {
		return invalid("input empty")
	}
	if cfg.BatchSize < 1 {
		return invalid("batch_size must be >= 1")
	}
	if cfg.PauseMS != nil && *cfg.PauseMS < 0 {
		return invalid("pause_ms must be >= 0")
	}
	if lv := cfg.Logging.Level; lv != "" && !diag.ValidLevel(lv) {
		return invalid("logging.level %q (want debug|info|warn|error)", lv)
	}
	if cfg.LLM == "" {
		return invalid("llm not set")
	}
	prov, ok := cfg.Provider[cfg.LLM]
	if !ok {
		return invalid("provider %q not found", cfg.LLM)
	}
	if prov.Client == "" {
		return invalid("provider %q missing client", cfg.LLM)
	}
	if _, ok := registry.LLMClient[prov.Client]; !ok {
		return invalid("llm client %q not registered (have %v)", prov.Client, registry.Names(registry.LLMClient))
	}
	if err := rate.ValidateRPM(prov.Limits.RPM); err != nil {
		return invalid("provider %q limits.rpm must be >= 0", cfg.LLM)
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); name != "auto" && registry.Reader[name] == nil {
		return invalid("reader %q not registered", name)
	}
	if name := effName(cfg.Components.Batcher, d.Batcher); registry.Batcher[name] == nil {
		return invalid("batcher %q not registered", name)
	}
	if name := effName(cfg.Components.PromptBuilder, d.PromptBuilder); registry.PromptBuilder[name] == nil {
		return invalid("prompt_builder %q not registered", name)
	}
	if name := effName(cfg.Components.Assembler, d.Assembler); registry.Assembler[name] == nil {
		return invalid("assembler %q not registered (have %v)", name, registry.Names(registry.Assembler))
	}
	wn := effName(cfg.Components.Writer, d.Writer)
	if registry.Writer[wn] == nil {
		return invalid("writer %q not registered", wn)
	}
	if wn == "stdout" && cfg.Sidecar != nil && *cfg.Sidecar {
		return invalid("sidecar requires a file writer")
	}
	if wn == "stdout" && strings.TrimSpace(cfg.Output) != "" {
		return invalid("output path is not used by the stdout writer")
	}
	return nil
}

// ReaderFor 解析生效的 reader 名称："auto" 按扩展名选择，.xlsx/.xlsm 为 xlsx，其余为 csv。
func ReaderFor(name, input string) string {
	if name != "" && name != "auto" {
		return name
	}
	switch strings.ToLower(filepath.Ext(input)) {
	case ".xlsx", ".xlsm":
		return "xlsx"
	}
	return "csv"
}

// ArtifactFor 计算工件 id 与写出目录。
// output 为空：<输入基名去扩展>-doc<ext>（STDIN 为 document<ext>），dir 为空表示沿用 writer 选项。
func ArtifactFor(input, output, ext string) (id contract.ArtifactID, dir string) {
	if o := strings.TrimSpace(output); o != "" {
		if d := filepath.Dir(o); d != "." {
			dir = d
		}
		return contract.ArtifactID(filepath.Base(o)), dir
	}
	in := strings.TrimSpace(input)
	if in == "" || in == "-" {
		return contract.ArtifactID("document" + ext), ""
	}
	base := filepath.Base(in)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return contract.ArtifactID(stem + "-doc" + ext), ""
}

// CredentialSource 构造 provider 的凭据来源链：环境变量 → 文件。
func CredentialSource(p Provider) contract.CredentialSource {
	env := p.Credential.Env
	if env == "" {
		env = defaultCredentialEnv[p.Client]
	}
	return secret.Chain{secret.NewEnv(env), secret.File{Path: p.Credential.File}}
}

// Assemble 构造 Components 与 Settings，并在启动阶段解析凭据。
// 严格 Options 解析在 registry（工厂）层进行；此处只传原样 YAML 子树。
func Assemble(ctx context.Context, cfg Config) (pipeline.Components, pipeline.Settings, error) {
	var (
		comp pipeline.Components
		set  pipeline.Settings
	)
	if err := Validate(cfg); err != nil {
		return comp, set, err
	}

	// 有效名称
	d := Defaults().Components
	rn := ReaderFor(cfg.Components.Reader, cfg.Input)
	bn := effName(cfg.Components.Batcher, d.Batcher)
	pn := effName(cfg.Components.PromptBuilder, d.PromptBuilder)
	an := effName(cfg.Components.Assembler, d.Assembler)
	wn := effName(cfg.Components.Writer, d.Writer)

	newReader, ok := registry.Reader[rn]
	if !ok {
		return comp, set, invalid("reader %q not registered", rn)
	}
	rnode := cfg.Options.Reader.YAML()
	if rn == "xlsx" && cfg.Sheet != "" {
		rnode = withScalar(rnode, "sheet", "!!str", cfg.Sheet)
	}
	r, err := newReader(rnode)
	if err != nil {
		return comp, set, fmt.Errorf("reader %s: %w", rn, err)
	}
	b, err := registry.Batcher[bn](withScalar(nil, "size", "!!int", strconv.Itoa(cfg.BatchSize)))
	if err != nil {
		return comp, set, fmt.Errorf("batcher %s: %w", bn, err)
	}
	pb, err := registry.PromptBuilder[pn](cfg.Options.PromptBuilder.YAML())
	if err != nil {
		return comp, set, fmt.Errorf("prompt_builder %s: %w", pn, err)
	}
	asm, err := registry.Assembler[an](cfg.Options.Assembler.YAML())
	if err != nil {
		return comp, set, fmt.Errorf("assembler %s: %w", an, err)
	}
	artifact, outDir := ArtifactFor(cfg.Input, cfg.Output, asm.Ext())
	wnode := cfg.Options.Writer.YAML()
	if wn == "filesystem" && outDir != "" {
		wnode = withScalar(wnode, "output_dir", "!!str", outDir)
	}
	w, err := registry.Writer[wn](wnode)
	if err != nil {
		return comp, set, fmt.Errorf("writer %s: %w", wn, err)
	}

	// LLM 客户端与凭据
	prov := cfg.Provider[cfg.LLM]
	f := registry.LLMClient[prov.Client]
	src := CredentialSource(prov)
	need, err := f.RequiresCredential(prov.Options.YAML())
	if err != nil {
		return comp, set, fmt.Errorf("llm %s: %w", cfg.LLM, err)
	}
	var cred contract.Credential
	if need {
		cred, err = secret.Require(ctx, src, "provider "+cfg.LLM)
	} else {
		cred, err = src.Resolve(ctx)
	}
	if err != nil {
		return comp, set, err
	}
	llm, err := f.New(prov.Options.YAML(), cred)
	if err != nil {
		return comp, set, fmt.Errorf("llm %s: %w", cfg.LLM, err)
	}

	theme := contract.DefaultTheme().Merge(cfg.Theme)
	comp = pipeline.Components{
		Reader:        r,
		Batcher:       b,
		PromptBuilder: pb,
		LLM:           llm,
		Render:        richtext.New(theme),
		Fallback:      fallback.New(theme),
		Assembler:     asm,
		Writer:        w,
	}

	pause := DefaultPauseMS
	if cfg.PauseMS != nil {
		pause = *cfg.PauseMS
	}
	set = pipeline.Settings{
		Input:            cfg.Input,
		Artifact:         artifact,
		LLMName:          cfg.LLM,
		Title:            cfg.Document.Title,
		Footer:           cfg.Document.Footer,
		TimestampLayout:  cfg.Document.TimestampLayout,
		Theme:            theme,
		AbortOnMalformed: cfg.AbortOnMalformed != nil && *cfg.AbortOnMalformed,
		Sidecar:          cfg.Sidecar != nil && *cfg.Sidecar,
		Gate:             rate.NewGate(prov.Limits.RPM, nil),
		Pacer:            rate.NewPacer(time.Duration(pause) * time.Millisecond),
	}
	return comp, set, nil
}

// withScalar 返回 n 的浅拷贝映射节点，并设置（或追加）key: value（tag 如 "!!str"、"!!int"）。
// n 为 nil 或非映射时从空映射开始。
func withScalar(n *yaml.Node, key, tag, value string) *yaml.Node {
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if n != nil && n.Kind == yaml.MappingNode {
		out.Content = append(out.Content, n.Content...)
	}
	val := &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
	for i := 0; i+1 < len(out.Content); i += 2 {
		if out.Content[i].Value == key {
			out.Content = append([]*yaml.Node(nil), out.Content...)
			out.Content[i+1] = val
			return out
		}
	}
	out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
	return out
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
