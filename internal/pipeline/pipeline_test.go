package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"

	"sheetdoc/internal/diag"
	"sheetdoc/internal/rate"
	"sheetdoc/pkg/contract"
	amd "sheetdoc/plugins/assembler/markdown"
	"sheetdoc/plugins/batcher/fixed"
	"sheetdoc/plugins/llmclient/flaky"
	"sheetdoc/plugins/prompt/rowformat"
	"sheetdoc/plugins/render/fallback"
	"sheetdoc/plugins/render/richtext"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

// 桩件 ----------------------------------------------------

type stubReader struct {
	tbl contract.Table
	err error
}

func (s stubReader) Read(ctx context.Context, source string) (contract.Table, error) {
	return s.tbl, s.err
}

// stubLLM 对每批返回单段 "Group N"；failAt 中的批返回 err。
type stubLLM struct {
	failAt map[int]error
	calls  int
}

func (s *stubLLM) Invoke(ctx context.Context, b contract.Batch, p contract.ChatPrompt) (contract.Raw, error) {
	s.calls++
	if err, ok := s.failAt[b.BatchIndex]; ok {
		return contract.Raw{}, err
	}
	return contract.Raw{Text: fmt.Sprintf("## Group %d\n- rows %d\n- first %s", b.BatchIndex+1, len(b.Rows), b.Rows[0].Cells[0])}, nil
}

type memWriter struct {
	files map[contract.ArtifactID]string
	err   error
}

func (w *memWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if w.files == nil {
		w.files = map[contract.ArtifactID]string{}
	}
	w.files[id] = string(b)
	return nil
}

type alertRec struct {
	level contract.AlertLevel
	title string
	msg   string
}

type alerts []alertRec

func (a *alerts) Alert(level contract.AlertLevel, title, msg string) {
	*a = append(*a, alertRec{level, title, msg})
}

// 固定夹具 ------------------------------------------------

var people = contract.Table{Rows: [][]string{
	{"Name", "Age"},
	{"Ann", "31"},
	{"Bob", "40"},
	{"Cid", "22"},
	{"Dee", "35"},
	{"Eve", "28"},
	{"Frank", "60"},
}}

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }

type harness struct {
	comp   Components
	set    Settings
	llm    *stubLLM
	writer *memWriter
	alerts *alerts
	pauses int
}

func newHarness(t *testing.T, tbl contract.Table) *harness {
	t.Helper()
	pb, err := rowformat.New(nil)
	require.NoError(t, err)
	theme := contract.DefaultTheme()
	h := &harness{llm: &stubLLM{failAt: map[int]error{}}, writer: &memWriter{}, alerts: &alerts{}}
	h.comp = Components{
		Reader:        stubReader{tbl: tbl},
		Batcher:       fixed.New(nil),
		PromptBuilder: pb,
		LLM:           h.llm,
		Render:        richtext.New(theme),
		Fallback:      fallback.New(theme),
		Assembler:     amd.New(nil),
		Writer:        h.writer,
		Alert:         h.alerts,
	}
	h.set = Settings{
		Input:    "people.csv",
		Artifact: "people-doc.md",
		Title:    "People",
		Theme:    theme,
		Now:      fixedNow,
		Pacer: rate.NewPacer(time.Second).WithSleep(func(context.Context, time.Duration) error {
			h.pauses++
			return nil
		}),
	}
	return h
}

func kinds(doc contract.Document) []contract.BlockKind {
	out := make([]contract.BlockKind, 0, len(doc))
	for _, b := range doc {
		out = append(out, b.Kind)
	}
	return out
}

// 测试 ----------------------------------------------------

// 6 行、容量 5：两批全部成功 ⇒ 两组标题+条目，外加标题/时间戳/页脚。
func TestRunAllFormatted(t *testing.T) {
	h := newHarness(t, people)
	rep, err := Run(context.Background(), h.comp, h.set, nil)
	require.NoError(t, err)

	assert.Equal(t, Report{Rows: 6, Batches: 2, Formatted: 2, Artifact: "people-doc.md"},
		Report{Rows: rep.Rows, Batches: rep.Batches, Formatted: rep.Formatted, Fallback: rep.Fallback, Artifact: rep.Artifact})
	want := []contract.BlockKind{
		contract.BlockTitle, contract.BlockParagraph, contract.BlockSeparator,
		contract.BlockHeading, contract.BlockBullet, contract.BlockBullet, contract.BlockSpacer,
		contract.BlockHeading, contract.BlockBullet, contract.BlockBullet, contract.BlockSpacer,
		contract.BlockSeparator, contract.BlockParagraph,
	}
	if diff := cmp.Diff(want, kinds(rep.Document)); diff != "" {
		t.Fatalf("block kinds mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Generated: 2026-03-01 09:30:00", rep.Document[1].Text)
	assert.Equal(t, "Group 1", rep.Document[3].Text)
	assert.Equal(t, "rows 5", rep.Document[4].Text)
	assert.Equal(t, "rows 1", rep.Document[8].Text)
	assert.Equal(t, "first Frank", rep.Document[9].Text)
	assert.Equal(t, DefaultFooter, rep.Document[12].Text)
	assert.Equal(t, 2, h.llm.calls)
	assert.Equal(t, 2, h.pauses)

	md := h.writer.files["people-doc.md"]
	assert.True(t, strings.HasPrefix(md, "# People\n"), md)
	require.Len(t, *h.alerts, 1)
	assert.Equal(t, contract.AlertInfo, (*h.alerts)[0].level)
	assert.Contains(t, (*h.alerts)[0].msg, "2 batches, 0 fallback")
}

// 第二批失败 ⇒ 该批唯一一行走回退："Row 6" + "Name: …"/"Age: …"。
func TestRunSecondBatchFallback(t *testing.T) {
	h := newHarness(t, people)
	h.llm.failAt[1] = &contract.UpstreamError{Provider: "stub", Status: 500, Message: "boom"}
	rep, err := Run(context.Background(), h.comp, h.set, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Formatted)
	assert.Equal(t, 1, rep.Fallback)

	theme := contract.DefaultTheme()
	want := contract.Document{
		{Kind: contract.BlockHeading, Text: "Row 6", Style: theme.FallbackHeading},
		{Kind: contract.BlockBullet, Text: "Name: Frank", Style: theme.BulletAt(0)},
		{Kind: contract.BlockBullet, Text: "Age: 60", Style: theme.BulletAt(1)},
	}
	// title, ts, sep, 第一组(heading + 2 bullets + spacer) 之后即回退组
	if diff := cmp.Diff(want, rep.Document[7:10]); diff != "" {
		t.Fatalf("fallback group mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, contract.BlockSeparator, rep.Document[10].Kind)
	assert.Equal(t, 2, h.pauses, "pause follows every batch regardless of outcome")
	assert.Contains(t, h.writer.files["people-doc.md"], "## Row 6\n- Name: Frank\n- Age: 60")

	// 回退批发出警告，运行结束发出完成提示
	require.Len(t, *h.alerts, 2)
	assert.Equal(t, contract.AlertWarn, (*h.alerts)[0].level)
	assert.Equal(t, "Batch fallback", (*h.alerts)[0].title)
	assert.Contains(t, (*h.alerts)[0].msg, "Rows 6-6")
	assert.Equal(t, contract.AlertInfo, (*h.alerts)[1].level)
}

// 一批中每一行恰好产生一个回退段落。
func TestRunFallbackCoversEveryRow(t *testing.T) {
	h := newHarness(t, people)
	h.llm.failAt[0] = &contract.UpstreamError{Status: 429}
	rep, err := Run(context.Background(), h.comp, h.set, nil)
	require.NoError(t, err)
	var heads []string
	for _, b := range rep.Document {
		if b.Kind == contract.BlockHeading {
			heads = append(heads, b.Text)
		}
	}
	assert.Equal(t, []string{"Row 1", "Row 2", "Row 3", "Row 4", "Row 5", "Group 2"}, heads)
}

func TestRunInputTooSmall(t *testing.T) {
	for _, tbl := range []contract.Table{{}, {Rows: [][]string{{"Name", "Age"}}}} {
		h := newHarness(t, tbl)
		_, err := Run(context.Background(), h.comp, h.set, nil)
		require.ErrorIs(t, err, contract.ErrInputTooSmall)
		assert.Empty(t, h.writer.files, "no document is created")
		assert.Zero(t, h.llm.calls)
		require.Len(t, *h.alerts, 1)
		assert.Equal(t, "InputTooSmall", (*h.alerts)[0].title)
	}
}

func TestRunReaderError(t *testing.T) {
	h := newHarness(t, people)
	h.comp.Reader = stubReader{err: contract.ErrInvalidInput}
	_, err := Run(context.Background(), h.comp, h.set, nil)
	require.ErrorIs(t, err, contract.ErrInvalidInput)
	assert.Empty(t, h.writer.files)
}

// 凭据缺失为致命错误：不回退、不写出。
func TestRunMissingCredentialIsFatal(t *testing.T) {
	h := newHarness(t, people)
	h.llm.failAt[0] = fmt.Errorf("openai: %w", contract.ErrMissingCredential)
	_, err := Run(context.Background(), h.comp, h.set, nil)
	require.ErrorIs(t, err, contract.ErrMissingCredential)
	assert.Equal(t, 1, h.llm.calls)
	assert.Empty(t, h.writer.files)
	assert.Equal(t, contract.AlertError, (*h.alerts)[len(*h.alerts)-1].level)
}

func TestRunMalformedResponse(t *testing.T) {
	malformed := &contract.UpstreamError{Status: 200, Err: contract.ErrResponseInvalid}

	h := newHarness(t, people)
	h.llm.failAt[0] = malformed
	rep, err := Run(context.Background(), h.comp, h.set, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Fallback)

	h = newHarness(t, people)
	h.llm.failAt[0] = malformed
	h.set.AbortOnMalformed = true
	_, err = Run(context.Background(), h.comp, h.set, nil)
	require.ErrorIs(t, err, contract.ErrResponseInvalid)
	assert.Empty(t, h.writer.files)
}

func TestRunCanceledDuringPause(t *testing.T) {
	h := newHarness(t, people)
	ctx, cancel := context.WithCancel(context.Background())
	h.set.Pacer = rate.NewPacer(time.Second).WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})
	_, err := Run(ctx, h.comp, h.set, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, h.llm.calls)
	assert.Empty(t, h.writer.files)
}

func TestRunSidecar(t *testing.T) {
	h := newHarness(t, people)
	h.llm.failAt[1] = &contract.UpstreamError{Status: 503, Message: "unavailable"}
	h.set.Sidecar = true
	rep, err := Run(context.Background(), h.comp, h.set, nil)
	require.NoError(t, err)
	assert.Equal(t, contract.ArtifactID("people-doc.md.jsonl"), rep.Sidecar)

	lines := strings.Split(strings.TrimSpace(h.writer.files[rep.Sidecar]), "\n")
	require.Len(t, lines, 2)
	var got []sidecarLine
	for _, ln := range lines {
		var l sidecarLine
		require.NoError(t, json.Unmarshal([]byte(ln), &l))
		got = append(got, l)
	}
	assert.Equal(t, modeFormatted, got[0].Mode)
	assert.Equal(t, 0, got[0].From)
	assert.Equal(t, 4, got[0].To)
	assert.Equal(t, modeFallback, got[1].Mode)
	assert.Contains(t, got[1].Error, "unavailable")
	assert.Equal(t, []contract.Section{{Title: "Row 6", Details: []string{"Name: Frank", "Age: 60"}}}, got[1].Sections)
}

func TestRunWriteError(t *testing.T) {
	h := newHarness(t, people)
	h.writer.err = contract.ErrPathInvalid
	_, err := Run(context.Background(), h.comp, h.set, nil)
	require.ErrorIs(t, err, contract.ErrPathInvalid)
}

func TestRunSanity(t *testing.T) {
	h := newHarness(t, people)
	h.comp.LLM = nil
	_, err := Run(context.Background(), h.comp, h.set, nil)
	assert.Error(t, err)

	h = newHarness(t, people)
	h.set.Artifact = ""
	_, err = Run(context.Background(), h.comp, h.set, nil)
	assert.Error(t, err)
}

// 日志事件：回退批以 warn 级 error 阶段记录，带状态码。
func TestRunLogsFallback(t *testing.T) {
	diag.ResetMetrics()
	var buf bytes.Buffer
	logger := diag.NewLoggerTo(zapcore.AddSync(&buf), "corr-1", "info")
	h := newHarness(t, people)
	h.llm.failAt[1] = fmt.Errorf("wrapped: %w", &contract.UpstreamError{Provider: "stub", Status: 503, Message: strings.Repeat("m", 300)})
	_, err := Run(context.Background(), h.comp, h.set, logger)
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	var warn map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(ln), &ev))
		assert.Equal(t, "corr-1", ev["corr_id"])
		if ev["level"] == "warn" {
			warn = ev
		}
	}
	require.NotNil(t, warn)
	assert.Equal(t, "llm", warn["comp"])
	assert.Equal(t, "upstream", warn["code"])
	assert.Equal(t, "1", warn["batch_id"])
	kv, ok := warn["kv"].(map[string]any)
	require.True(t, ok, "upstream detail attached: %v", warn)
	assert.Equal(t, "503", kv["status"])
	assert.Equal(t, "stub", kv["provider"])
	assert.Len(t, kv["message"], 200)

	m := diag.Snapshot()
	assert.Equal(t, int64(1), m.Ops["llm/error/fallback"])
	assert.Equal(t, int64(1), m.Ops["llm/finish/success"])
}

// 端到端：真实 Batcher/Prompt/flaky 客户端/渲染器/Markdown 装配。
func TestRunEndToEndWithFlakyClient(t *testing.T) {
	c, err := flaky.New(&flaky.Options{FailBatches: []int{1}})
	require.NoError(t, err)
	h := newHarness(t, people)
	h.comp.LLM = c
	rep, err := Run(context.Background(), h.comp, h.set, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Batches)
	assert.Equal(t, 1, rep.Fallback)
	assert.Equal(t, 2, c.Calls())

	md := h.writer.files["people-doc.md"]
	assert.Contains(t, md, "## Ann\n- Name: Ann\n- Age: 31")
	assert.Contains(t, md, "## Row 6\n- Name: Frank\n- Age: 60")
	assert.True(t, strings.HasSuffix(md, "_End of report_\n"), md)
}
