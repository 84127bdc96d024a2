package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sheetdoc/internal/diag"
	"sheetdoc/internal/document"
	"sheetdoc/internal/prompt"
	"sheetdoc/internal/rate"
	"sheetdoc/pkg/contract"
)

// - 单线程顺序：批按 BatchIndex 依次处理，文档只追加。
// - 批级隔离：上游失败仅影响当前批，改走逐行回退渲染。
// - 致命错误：凭据缺失、ctx 取消、(可选)响应形状无效；直接终止且不写出工件。
// - 固定停顿：每批之后调用 Pacer，与成功/回退无关。

// 默认文案。
const (
	DefaultTitle           = "Formatted Report"
	DefaultFooter          = "End of report"
	DefaultTimestampLayout = "2006-01-02 15:04:05"
)

// FormattedRenderer 将模型输出渲染为标题 + 条目。
type FormattedRenderer interface {
	Render(sink contract.DocumentSink, text string) []contract.Section
}

// RowRenderer 对失败批逐行做确定性渲染。
type RowRenderer interface {
	RenderBatch(sink contract.DocumentSink, b contract.Batch) []contract.Section
}

// Components 聚合运行所需的组件。
type Components struct {
	Reader        contract.TableReader
	Batcher       contract.Batcher
	PromptBuilder contract.PromptBuilder
	LLM           contract.LLMClient
	Render        FormattedRenderer
	Fallback      RowRenderer
	Assembler     contract.Assembler
	Writer        contract.Writer
	// Alert 可为 nil（静默）。
	Alert contract.AlertSink
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Input    string
	Artifact contract.ArtifactID
	// LLMName 仅用于终端与日志展示。
	LLMName string

	Title           string
	Footer          string
	TimestampLayout string
	Theme           contract.Theme

	// AbortOnMalformed: 响应形状无效时终止运行（默认回退）。
	AbortOnMalformed bool
	// Sidecar: 额外写出 <artifact>.jsonl（每批一行）。
	Sidecar bool

	// 限流闸门与固定停顿（均可为 nil）。
	Gate  *rate.Gate
	Pacer *rate.Pacer

	// Now 为空则使用 time.Now。
	Now func() time.Time
}

// Report 运行摘要。
type Report struct {
	Rows      int
	Batches   int
	Formatted int
	Fallback  int
	Artifact  contract.ArtifactID
	// Sidecar 为空表示未写出。
	Sidecar  contract.ArtifactID
	Document contract.Document
}

// 批处理模式（sidecar 中的 mode 字段）。
const (
	modeFormatted = "formatted"
	modeFallback  = "fallback"
)

type sidecarLine struct {
	Batch    int                `json:"batch"`
	From     int                `json:"from"`
	To       int                `json:"to"`
	Mode     string             `json:"mode"`
	Error    string             `json:"error,omitempty"`
	Sections []contract.Section `json:"sections"`
}

// Run 执行完整流程：Reader → Batcher → Prompt → (Gate) → LLM → 渲染/回退 → Pacer → Assembler → Writer。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Report, error) {
	if err := sanity(comp, set); err != nil {
		return Report{}, fmt.Errorf("sanity: %w", err)
	}
	set = set.withDefaults()

	var rep Report
	runStart := time.Now()
	ok := false
	term := diag.GetTerminal()
	term.RunStart(set.Input, set.LLMName)
	defer func() { term.RunFinish(ok, string(rep.Artifact), time.Since(runStart)) }()

	// 读表
	rt := logger.Start("reader", "read")
	tbl, err := comp.Reader.Read(ctx, set.Input)
	if err != nil {
		logFail(logger, "reader", "read failed", "", rt.Start(), err)
		alert(comp.Alert, contract.AlertError, "Read failed", err.Error())
		return rep, fmt.Errorf("reader read: %w", err)
	}
	rt.Finish("read", int64(len(tbl.Rows)))
	diag.IncOp("reader", "finish", "success")

	if len(tbl.Rows) < 2 {
		err := fmt.Errorf("%d row(s): %w", len(tbl.Rows), contract.ErrInputTooSmall)
		logFail(logger, "pipeline", "input too small", "", rt.Start(), err)
		alert(comp.Alert, contract.AlertError, "InputTooSmall",
			"The source needs a header row and at least one data row.")
		return rep, err
	}
	header, rows := tbl.Header(), tbl.DataRows()
	rep.Rows = len(rows)
	term.Plan(rep.Rows, comp.Batcher.Count(rep.Rows))

	doc := document.New()
	doc.AppendTitle(set.Title, set.Theme.Title)
	doc.AppendParagraph("Generated: "+set.Now().Format(set.TimestampLayout), set.Theme.Timestamp)
	doc.AppendSeparator()

	var side []sidecarLine
	for b := range comp.Batcher.Batches(header, rows) {
		if err := ctx.Err(); err != nil {
			logFail(logger, "pipeline", "canceled", strconv.Itoa(b.BatchIndex), runStart, err)
			return rep, fmt.Errorf("batch %d: %w", b.BatchIndex, err)
		}
		line, err := runBatch(ctx, comp, set, doc, b, logger)
		if err != nil {
			alert(comp.Alert, contract.AlertError, "Run failed", err.Error())
			return rep, err
		}
		rep.Batches++
		if line.Mode == modeFallback {
			rep.Fallback++
		} else {
			rep.Formatted++
		}
		side = append(side, line)
		term.BatchDone(b.BatchIndex, line.Mode == modeFallback, line.Error)

		pt0 := time.Now()
		if err := set.Pacer.Pause(ctx); err != nil {
			logFail(logger, "pacer", "pause interrupted", strconv.Itoa(b.BatchIndex), pt0, err)
			return rep, fmt.Errorf("pause after batch %d: %w", b.BatchIndex, err)
		}
		diag.ObserveDuration("pacer", "pause", time.Since(pt0).Milliseconds())
	}

	doc.AppendSeparator()
	doc.AppendParagraph(set.Footer, set.Theme.Footer)
	rep.Document = doc.Document()

	// 装配
	at := logger.Start("assembler", "assemble")
	r, err := comp.Assembler.Assemble(ctx, rep.Document)
	if err != nil {
		logFail(logger, "assembler", "assemble failed", "", at.Start(), err)
		return rep, fmt.Errorf("assembler assemble: %w", err)
	}
	at.Finish("assemble", int64(len(rep.Document)))
	diag.IncOp("assembler", "finish", "success")

	// 写出
	wt := logger.StartWith("writer", "write", string(set.Artifact))
	if err := comp.Writer.Write(ctx, set.Artifact, r); err != nil {
		logFail(logger, "writer", "write failed", string(set.Artifact), wt.Start(), err)
		alert(comp.Alert, contract.AlertError, "Write failed", err.Error())
		return rep, fmt.Errorf("writer write: %w", err)
	}
	wt.Finish("write", 1)
	diag.IncOp("writer", "finish", "success")
	rep.Artifact = set.Artifact

	if set.Sidecar {
		id, err := writeSidecar(ctx, comp.Writer, set.Artifact, side)
		if err != nil {
			logFail(logger, "writer", "write failed", string(id), runStart, err)
			return rep, fmt.Errorf("writer write(jsonl): %w", err)
		}
		rep.Sidecar = id
	}

	logger.InfoFinish("pipeline", "run", runStart, int64(rep.Batches))
	alert(comp.Alert, contract.AlertInfo, "Document created",
		fmt.Sprintf("%s: %d rows in %d batches, %d fallback", rep.Artifact, rep.Rows, rep.Batches, rep.Fallback))
	ok = true
	return rep, nil
}

// runBatch 处理单批：成功走富文本渲染，可恢复失败走逐行回退；仅致命错误返回 error。
func runBatch(ctx context.Context, comp Components, set Settings, sink contract.DocumentSink, b contract.Batch, logger *diag.Logger) (sidecarLine, error) {
	bid := strconv.Itoa(b.BatchIndex)
	line := sidecarLine{Batch: b.BatchIndex, From: b.From(), To: b.To()}

	if err := set.Gate.Wait(ctx); err != nil {
		logFail(logger, "gate", "wait interrupted", bid, time.Now(), err)
		return line, fmt.Errorf("gate wait batch %d: %w", b.BatchIndex, err)
	}
	if set.Gate != nil {
		logger.DebugStart("gate", "acquired", bid, map[string]string{"available": strconv.Itoa(set.Gate.Available())})
	}

	pt := logger.StartWith("prompt_builder", "build", bid)
	logger.DebugStart("prompt_builder", "build_req", bid, map[string]string{
		"from": strconv.Itoa(line.From),
		"to":   strconv.Itoa(line.To),
		"rows": strconv.Itoa(len(b.Rows)),
	})
	p, err := comp.PromptBuilder.Build(ctx, b)
	if err != nil {
		logFail(logger, "prompt_builder", "build failed", bid, pt.Start(), err)
		return line, fmt.Errorf("prompt build batch %d: %w", b.BatchIndex, err)
	}
	pt.Finish("build", int64(len(b.Rows)))
	logger.DebugStart("prompt_builder", "estimate", bid, map[string]string{
		"prompt_tokens": strconv.Itoa(prompt.Estimate(p, nil)),
	})
	diag.IncOp("prompt_builder", "finish", "success")

	lt := logger.StartWith("llm", "invoke", bid)
	raw, err := comp.LLM.Invoke(ctx, b, p)
	diag.ObserveDuration("llm", "invoke", time.Since(lt.Start()).Milliseconds())
	if err != nil {
		if fatal(ctx, err, set.AbortOnMalformed) {
			logFail(logger, "llm", "invoke failed", bid, lt.Start(), err)
			return line, fmt.Errorf("llm invoke batch %d: %w", b.BatchIndex, err)
		}
		t0 := lt.Start()
		code := diag.Classify(err)
		logger.WarnWithKV("llm", string(code), "invoke failed; fallback", &t0, bid, upstreamKV(err))
		diag.IncOp("llm", "error", "fallback")
		diag.IncError("llm", string(code))
		line.Mode = modeFallback
		line.Error = err.Error()
		line.Sections = comp.Fallback.RenderBatch(sink, b)
		alert(comp.Alert, contract.AlertWarn, "Batch fallback",
			fmt.Sprintf("Rows %d-%d rendered without formatting: %v", line.From+1, line.To+1, err))
		return line, nil
	}
	lt.Finish("invoke", int64(len(raw.Text)))
	diag.IncOp("llm", "finish", "success")
	line.Mode = modeFormatted
	line.Sections = comp.Render.Render(sink, raw.Text)
	return line, nil
}

// fatal 判定上游错误是否终止整个运行。
func fatal(ctx context.Context, err error, abortOnMalformed bool) bool {
	switch {
	case errors.Is(err, contract.ErrMissingCredential):
		return true
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return true
	case abortOnMalformed && contract.Malformed(err):
		return true
	}
	return false
}

// upstreamDetail: 携带上游状态与消息的错误（*contract.UpstreamError 实现）。
type upstreamDetail interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}

func upstreamKV(err error) map[string]string {
	var ud upstreamDetail
	if !errors.As(err, &ud) {
		return nil
	}
	kv := map[string]string{"status": strconv.Itoa(ud.UpstreamStatus())}
	var ue *contract.UpstreamError
	if errors.As(err, &ue) && ue.Provider != "" {
		kv["provider"] = ue.Provider
	}
	if msg := ud.UpstreamMessage(); msg != "" {
		if len(msg) > 200 {
			msg = msg[:200]
		}
		kv["message"] = msg
	}
	return kv
}

func writeSidecar(ctx context.Context, w contract.Writer, artifact contract.ArtifactID, lines []sidecarLine) (contract.ArtifactID, error) {
	id := contract.ArtifactID(string(artifact) + ".jsonl")
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, l := range lines {
		if l.Sections == nil {
			l.Sections = []contract.Section{}
		}
		if err := enc.Encode(l); err != nil {
			return id, err
		}
	}
	return id, w.Write(ctx, id, &buf)
}

// logFail 记录 error 事件并累加错误计数。
func logFail(logger *diag.Logger, comp, msg, batch string, since time.Time, err error) {
	code := diag.Classify(err)
	logger.ErrorWithKV(comp, string(code), msg, &since, batch, map[string]string{"err": err.Error()})
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func alert(a contract.AlertSink, level contract.AlertLevel, title, msg string) {
	if a != nil {
		a.Alert(level, title, msg)
	}
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Batcher == nil || c.PromptBuilder == nil || c.LLM == nil ||
		c.Render == nil || c.Fallback == nil || c.Assembler == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if s.Artifact == "" {
		return errors.New("pipeline: empty artifact id")
	}
	return nil
}

func (s Settings) withDefaults() Settings {
	if s.Title == "" {
		s.Title = DefaultTitle
	}
	if s.Footer == "" {
		s.Footer = DefaultFooter
	}
	if s.TimestampLayout == "" {
		s.TimestampLayout = DefaultTimestampLayout
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}
