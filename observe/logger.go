package observe

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jonwraymond/apiguard/breaker"
	"github.com/jonwraymond/apiguard/classify"
)

// LogLevel represents a logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel parses a string log level.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging is best-effort and must not panic.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	WithOperation(key string) Logger
}

// structuredLogger is a JSON structured logger implementation.
type structuredLogger struct {
	level     LogLevel
	writer    io.Writer
	mu        *sync.Mutex
	baseAttrs map[string]any
}

// NewLogger creates a new structured logger with the given level.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a new structured logger with a custom writer.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	return &structuredLogger{
		level:     ParseLogLevel(level),
		writer:    w,
		mu:        &sync.Mutex{},
		baseAttrs: make(map[string]any),
	}
}

// WithOperation returns a logger with the operation key attached.
func (l *structuredLogger) WithOperation(key string) Logger {
	attrs := make(map[string]any, len(l.baseAttrs)+1)
	for k, v := range l.baseAttrs {
		attrs[k] = v
	}
	attrs["operation"] = key

	return &structuredLogger{
		level:     l.level,
		writer:    l.writer,
		mu:        l.mu,
		baseAttrs: attrs,
	}
}

func (l *structuredLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(LevelInfo, msg, fields)
}

func (l *structuredLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(LevelWarn, msg, fields)
}

func (l *structuredLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(LevelError, msg, fields)
}

func (l *structuredLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(LevelDebug, msg, fields)
}

func (l *structuredLogger) log(level LogLevel, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := make(map[string]any, len(l.baseAttrs)+len(fields)+3)
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg

	for k, v := range l.baseAttrs {
		entry[k] = v
	}
	for _, f := range fields {
		entry[f.Key] = f.Value
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return // Silently drop malformed log entries
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// NopLogger is a logger that does nothing.
type NopLogger struct{}

func (NopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (NopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (NopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (NopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (NopLogger) WithOperation(key string) Logger                        { return NopLogger{} }

// LogNotifier writes each notification through a structured Logger.
type LogNotifier struct {
	Logger Logger
}

// NewLogNotifier creates a notifier that logs through logger.
func NewLogNotifier(logger Logger) *LogNotifier {
	if logger == nil {
		logger = NopLogger{}
	}
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) OnErrorClassified(ctx context.Context, key string, ce classify.CategorizedError) {
	fields := []Field{
		{Key: "category", Value: ce.Category.String()},
		{Key: "severity", Value: ce.Severity.String()},
		{Key: "retryable", Value: ce.Retryable},
		{Key: "error", Value: ce.Err.Error()},
	}
	if ce.SuggestedAction != "" {
		fields = append(fields, Field{Key: "suggested_action", Value: ce.SuggestedAction})
	}
	if ce.Context.Attempt > 0 {
		fields = append(fields, Field{Key: "attempt", Value: ce.Context.Attempt})
	}

	log := n.Logger.WithOperation(key)
	if ce.Severity >= SeverityWarnCutoff {
		log.Warn(ctx, "upstream error classified", fields...)
	} else {
		log.Debug(ctx, "upstream error classified", fields...)
	}
}

// SeverityWarnCutoff is the lowest severity logged at warn level.
const SeverityWarnCutoff = classify.SeverityHigh

func (n *LogNotifier) OnCircuitStateChange(ctx context.Context, key string, from, to breaker.State) {
	n.Logger.WithOperation(key).Warn(ctx, "circuit state changed",
		Field{Key: "from", Value: from.String()},
		Field{Key: "to", Value: to.String()},
	)
}

func (n *LogNotifier) OnOperationFailed(ctx context.Context, f Failure) {
	n.Logger.WithOperation(f.Key).Error(ctx, "operation failed",
		Field{Key: "attempts", Value: f.Attempts},
		Field{Key: "error", Value: f.Err.Error()},
	)
}
