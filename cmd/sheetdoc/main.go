package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "sheetdoc/internal/config"
	"sheetdoc/internal/diag"
	"sheetdoc/internal/pipeline"
	"sheetdoc/pkg/contract"
	"sheetdoc/plugins/alert/console"
)

var pipelineRun = pipeline.Run

// 退出码。
const (
	exitOK       = 0
	exitRun      = 1
	exitTooSmall = 2
	exitConfig   = 3
)

// exitError 携带退出码的错误。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV），然后执行命令树。
func run(args []string, stdout, stderr io.Writer) int {
	_ = loadDotEnv(".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return exitCode(root.ExecuteContext(ctx))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// cobra 自身的参数/旗标错误
	return exitConfig
}

// runFlags: 命令行覆盖（仅 Changed 的旗标参与合并）。
type runFlags struct {
	config    string
	output    string
	format    string
	writer    string
	llm       string
	sheet     string
	logLevel  string
	batchSize int
	pause     time.Duration
	sidecar   bool
	abortBad  bool
	status    bool
	quiet     bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var rf runFlags
	root := &cobra.Command{
		Use:   "sheetdoc [input]",
		Short: "将表格数据分批交给对话模型格式化，生成带样式的文档",
		Long: `sheetdoc 读取 CSV/XLSX（首行为表头），按固定容量分批调用对话模型，
把结果渲染为标题 + 交替底色条目的文档；某批调用失败时逐行回退渲染。
每批之后固定停顿。不带子命令时等价于 run。`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, &rf, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	addRunFlags(root, &rf)

	var rr runFlags
	runCmd := &cobra.Command{
		Use:   "run [input]",
		Short: "执行一次完整流程（input 为 \"-\" 时读取 STDIN）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, &rr, stdout, stderr)
		},
	}
	addRunFlags(runCmd, &rr)

	initCmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在目录中生成 sheetdoc.yaml 与 .env 模板（已存在则不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			return withCode(exitConfig, initConfig(dir, stderr))
		},
	}

	var width int
	previewCmd := &cobra.Command{
		Use:   "preview <file.md>",
		Short: "在终端渲染 Markdown 文档",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCode(exitRun, preview(args[0], width, stdout))
		},
	}
	previewCmd.Flags().IntVar(&width, "width", 80, "折行宽度")

	root.AddCommand(runCmd, initCmd, previewCmd)
	return root
}

func addRunFlags(cmd *cobra.Command, rf *runFlags) {
	f := cmd.Flags()
	f.StringVar(&rf.config, "config", "", "配置文件路径（YAML/JSON）；缺省读取 ./"+cfgpkg.DefaultFile+"（若存在）")
	f.StringVarP(&rf.output, "output", "o", "", "工件路径（覆盖配置）")
	f.StringVarP(&rf.format, "format", "f", "", "输出格式：markdown|html|ansi（覆盖 components.assembler）")
	f.StringVar(&rf.writer, "writer", "", "写出位置：filesystem|stdout（覆盖 components.writer）")
	f.StringVar(&rf.llm, "llm", "", "provider 名称（覆盖配置）")
	f.StringVar(&rf.sheet, "sheet", "", "XLSX 工作表名")
	f.StringVar(&rf.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	f.IntVar(&rf.batchSize, "batch-size", 0, "每批行数（覆盖配置）")
	f.DurationVar(&rf.pause, "pause", 0, "每批之后的固定停顿，例如 1s；0 表示不停顿")
	f.BoolVar(&rf.sidecar, "sidecar", false, "额外写出 <artifact>.jsonl")
	f.BoolVar(&rf.abortBad, "abort-on-malformed", false, "响应形状无效时终止运行（默认回退）")
	f.BoolVar(&rf.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	f.BoolVarP(&rf.quiet, "quiet", "q", false, "不输出 info 级提示")
}

// cliOverlay 仅收集显式设置的旗标。
func cliOverlay(cmd *cobra.Command, args []string, rf *runFlags) cfgpkg.Config {
	var over cfgpkg.Config
	ch := cmd.Flags().Changed
	if len(args) == 1 {
		over.Input = args[0]
	}
	over.Output = rf.output
	over.Components.Assembler = rf.format
	over.Components.Writer = rf.writer
	over.LLM = rf.llm
	over.Sheet = rf.sheet
	over.Logging.Level = rf.logLevel
	if ch("batch-size") {
		over.BatchSize = rf.batchSize
	}
	if ch("pause") {
		ms := int(rf.pause / time.Millisecond)
		over.PauseMS = &ms
	}
	if ch("sidecar") {
		v := rf.sidecar
		over.Sidecar = &v
	}
	if ch("abort-on-malformed") {
		v := rf.abortBad
		over.AbortOnMalformed = &v
	}
	return over
}

// resolveConfig: defaults < 文件 < ENV < CLI。
func resolveConfig(cmd *cobra.Command, args []string, rf *runFlags) (cfgpkg.Config, error) {
	path := rf.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	// 默认读取工作目录下 sheetdoc.yaml（若存在）
	if path == "" {
		if _, err := os.Stat(cfgpkg.DefaultFile); err == nil {
			path = cfgpkg.DefaultFile
		}
	}
	var raw []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_YAML"); s != "" {
		raw = []byte(s)
	}

	cfg := cfgpkg.Defaults()
	if path != "" || len(raw) > 0 {
		base, err := cfgpkg.Load(path, raw)
		if err != nil {
			return cfg, fmt.Errorf("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, fmt.Errorf("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)
	cfg = cfgpkg.Merge(cfg, cliOverlay(cmd, args, rf))
	return cfg, nil
}

func runPipeline(cmd *cobra.Command, args []string, rf *runFlags, stdout, stderr io.Writer) error {
	start := time.Now()
	ctx := cmd.Context()

	cfg, err := resolveConfig(cmd, args, rf)
	if err != nil {
		fprintf(stderr, "%v\n", err)
		return withCode(exitConfig, err)
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(stderr, "配置校验失败: %v\n", err)
		// 提示打印有效配置，便于诊断
		_ = dumpConfig(stderr, cfg)
		return withCode(exitConfig, err)
	}

	corrID := uuid.NewString()
	logger := diag.NewLogger(corrID, cfg.Logging.Level, cfg.Logging.Dir)
	defer logger.Close()
	diag.ResetMetrics()

	comp, set, err := cfgpkg.Assemble(ctx, cfg)
	if err != nil {
		fprintf(stderr, "装配失败: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return withCode(exitConfig, err)
	}
	comp.Alert = console.New(stderr, &console.Options{Quiet: rf.quiet, Plain: !diag.IsTTY(stderr)})

	// 终端信息提示（非日志）
	term := diag.NewTerminal(stderr, rf.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	logger.DebugStart("config", "effective", "", effectiveKV(cfg, set))

	t := logger.Start("pipeline", "run")
	rep, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		if !errors.Is(err, context.Canceled) {
			fprintf(stderr, "运行失败: %v\n", err)
		}
		if errors.Is(err, contract.ErrInputTooSmall) {
			return withCode(exitTooSmall, err)
		}
		return withCode(exitRun, err)
	}
	t.Finish("run", int64(rep.Batches))
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	if cfg.Logging.Level == "debug" {
		m := diag.Snapshot()
		kv := make(map[string]string, len(m.Ops))
		for k, v := range m.Ops {
			kv[k] = strconv.FormatInt(v, 10)
		}
		logger.DebugStart("metrics", "snapshot", "", kv)
	}
	return nil
}

// effectiveKV: 运行时配置摘要（不含密钥）。
func effectiveKV(cfg cfgpkg.Config, set pipeline.Settings) map[string]string {
	kv := map[string]string{
		"input":          cfg.Input,
		"artifact":       string(set.Artifact),
		"batch_size":     strconv.Itoa(cfg.BatchSize),
		"pause":          set.Pacer.Delay().String(),
		"llm":            cfg.LLM,
		"reader":         cfgpkg.ReaderFor(cfg.Components.Reader, cfg.Input),
		"prompt_builder": cfg.Components.PromptBuilder,
		"assembler":      cfg.Components.Assembler,
		"writer":         cfg.Components.Writer,
	}
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		// 解析常见无敏感项
		var s struct {
			BaseURL string `yaml:"base_url"`
			Model   string `yaml:"model"`
		}
		if p.Options != nil {
			_ = p.Options.Decode(&s)
		}
		if s.BaseURL != "" {
			kv["base_url"] = s.BaseURL
		}
		if s.Model != "" {
			kv["model"] = s.Model
		}
	}
	return kv
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "有效配置:\n"+string(b))
	return err
}

// initConfig 生成 sheetdoc.yaml（已存在则报错）与 .env（已存在则跳过）。
func initConfig(dir string, stderr io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fprintf(stderr, "生成默认配置失败: %v\n", err)
		return err
	}
	b, err := cfgpkg.TemplateYAML()
	if err != nil {
		return err
	}
	if err := writeNew(filepath.Join(dir, cfgpkg.DefaultFile), b); err != nil {
		fprintf(stderr, "生成默认配置失败: %v\n", err)
		return err
	}
	if err := writeNew(filepath.Join(dir, ".env"), []byte(cfgpkg.EnvTemplate())); err != nil && !errors.Is(err, os.ErrExist) {
		fprintf(stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

// writeNew 仅创建新文件；不覆盖。
func writeNew(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// preview 用 glamour 渲染 Markdown 到终端。
func preview(path string, width int, w io.Writer) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	style := glamour.WithStandardStyle("notty")
	if diag.IsTTY(w) {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return err
	}
	out, err := r.Render(string(b))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// loadDotEnv 将 .env 注入进程环境；文件不存在时忽略，已存在的环境变量不被覆盖。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}
