package diag

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName: 日志目录下的当前日志文件名；轮转后的备份带时间戳后缀。
const LogFileName = "sheetdoc.log"

// 轮转阈值（MiB）与保留的备份数。
const (
	logMaxSizeMB  = 10
	logMaxBackups = 5
)

// Logger 为结构化事件日志器：zap JSON 编码，一行一事件。
// 事件字段：level/ts/corr_id/comp/stage(start|finish|error)/code/dur_ms/count/batch_id/msg/kv。
// nil *Logger 的所有方法均为 no-op。
type Logger struct {
	z    *zap.Logger
	sink *lumberjack.Logger
}

// NewLogger 将日志写入 dir（为空则 logs）下的 sheetdoc.log，10 MiB 轮转。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		dir = "logs"
	}
	sink := &lumberjack.Logger{
		Filename:   filepath.Join(dir, LogFileName),
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
	}
	l := NewLoggerTo(zapcore.AddSync(sink), corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写入任意 WriteSyncer（测试或 stderr）。
func NewLoggerTo(ws zapcore.WriteSyncer, corrID, level string) *Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), ws, ParseLevel(level))
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	if corrID != "" {
		z = z.With(zap.String("corr_id", corrID))
	}
	return &Logger{z: z}
}

// Nop 返回丢弃所有事件的日志器。
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcRFC3339,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}

func utcRFC3339(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

// ParseLevel 解析 debug|info|warn|error；未知值按 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ValidLevel 报告 s 是否为可识别的级别名（空串视为合法）。
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "warn", "error":
		return true
	}
	return false
}

// Close 刷盘并关闭文件 sink。
func (l *Logger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

func event(comp, stage string, fields ...zap.Field) []zap.Field {
	return append([]zap.Field{zap.String("comp", comp), zap.String("stage", stage)}, fields...)
}

func batchField(batch string) zap.Field {
	if batch == "" {
		return zap.Skip()
	}
	return zap.String("batch_id", batch)
}

func kvField(kv map[string]string) zap.Field {
	if len(kv) == 0 {
		return zap.Skip()
	}
	return zap.Any("kv", kv)
}

func durField(since *time.Time) zap.Field {
	if since == nil {
		return zap.Skip()
	}
	return zap.Int64("dur_ms", time.Since(*since).Milliseconds())
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, "", nil)
}

// StartWith 记录带 batch_id 的 start。
func (l *Logger) StartWith(comp, msg, batch string) *Timer {
	return l.StartWithKV(comp, msg, batch, nil)
}

// StartWithKV 记录带 batch_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, batch string, kv map[string]string) *Timer {
	if l != nil && l.z != nil {
		l.z.Info(msg, event(comp, "start", batchField(batch), kvField(kv))...)
	}
	return &Timer{l: l, comp: comp, batch: batch, t0: time.Now()}
}

// DebugStart 输出调试级别的 start 事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, batch string, kv map[string]string) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Debug(msg, event(comp, "start", batchField(batch), kvField(kv))...)
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, batch string, kv map[string]string) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Error(msg, event(comp, "error", zap.String("code", code), durField(durSince), batchField(batch), kvField(kv))...)
}

// WarnWithKV 记录可恢复的 error 阶段事件（例如批次回退），级别为 warn。
func (l *Logger) WarnWithKV(comp, code, msg string, durSince *time.Time, batch string, kv map[string]string) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Warn(msg, event(comp, "error", zap.String("code", code), durField(durSince), batchField(batch), kvField(kv))...)
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Info(msg, event(comp, "finish", zap.Int64("dur_ms", time.Since(start).Milliseconds()), zap.Int64("count", count))...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l     *Logger
	comp  string
	batch string
	t0    time.Time
}

// Start 返回计时起点（nil 安全）。
func (t *Timer) Start() time.Time {
	if t == nil {
		return time.Now()
	}
	return t.t0
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil || t.l.z == nil {
		return
	}
	t.l.z.Info(msg, event(t.comp, "finish",
		zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()),
		zap.Int64("count", count),
		batchField(t.batch))...)
}
