package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel represents different logging levels.
// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the minimal logging interface for enginebridge.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// BridgeLogger wraps slog.Logger adding contextual cloning helpers and
// step/run convenience methods. It should be cheap to copy via With* methods.
type BridgeLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	workflow  string
	runID     string
}

// LoggerConfig configures construction of a BridgeLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: true, CustomAttrs: map[string]any{}}
}

// NewLogger builds a BridgeLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *BridgeLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	ctx := make(map[string]any, len(cfg.CustomAttrs))
	for k, v := range cfg.CustomAttrs {
		ctx[k] = v
	}
	return &BridgeLogger{logger: slog.New(handler), level: cfg.Level, context: ctx, component: cfg.Component}
}

// ParseLevel converts a textual level into a LogLevel. Unknown names yield LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *BridgeLogger) clone() *BridgeLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context))
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *BridgeLogger) WithContext(key string, value any) *BridgeLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (executor, runner, gateway, etc.).
func (l *BridgeLogger) WithComponent(c string) *BridgeLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithRun attaches workflow and run identifiers.
func (l *BridgeLogger) WithRun(workflow, runID string) *BridgeLogger {
	nl := l.clone()
	nl.workflow = workflow
	nl.runID = runID
	return nl
}

func (l *BridgeLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.workflow != "" {
		attrs = append(attrs, slog.String("workflow", l.workflow))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *BridgeLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(l.buildAttrs()...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *BridgeLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *BridgeLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *BridgeLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *BridgeLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// ErrorWithStack logs an error plus a runtime stack snapshot.
func (l *BridgeLogger) ErrorWithStack(err error, msg string, args ...any) {
	if l.level > LogLevelError {
		return
	}
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)
	args = append(args, "error", err.Error(), "error_type", fmt.Sprintf("%T", err), "stack_trace", string(stack[:n]))
	l.log(slog.LevelError, true, msg, args...)
}

// LogStepExecution records the result of one step attempt.
func (l *BridgeLogger) LogStepExecution(step, engine string, attempt int, dur time.Duration, err error) {
	StepExecution(l, step, engine, attempt, dur, err)
}

// LogSessionTransfer records a session extraction or injection.
func (l *BridgeLogger) LogSessionTransfer(direction, step, engine string, err error) {
	SessionTransfer(l, direction, step, engine, err)
}

// LogRunExecution records aggregate run metrics.
func (l *BridgeLogger) LogRunExecution(workflow string, steps int, dur time.Duration, success bool, err error) {
	RunExecution(l, workflow, steps, dur, success, err)
}

// StepExecution logs the result of one step attempt on any Logger.
func StepExecution(l Logger, step, engine string, attempt int, dur time.Duration, err error) {
	args := []any{"step", step, "engine_type", engine, "attempt", attempt, "duration", dur, "success", err == nil}
	if err != nil {
		l.Error("Step attempt failed", append(args, "error", err.Error())...)
		return
	}
	l.Info("Step attempt completed", args...)
}

// SessionTransfer logs a session extraction ("extract") or injection
// ("inject") on any Logger.
func SessionTransfer(l Logger, direction, step, engine string, err error) {
	args := []any{"direction", direction, "step", step, "engine_type", engine, "success", err == nil}
	if err != nil {
		l.Warn("Session transfer failed", append(args, "error", err.Error())...)
		return
	}
	l.Debug("Session transfer completed", args...)
}

// RunExecution logs aggregate run results on any Logger.
func RunExecution(l Logger, workflow string, steps int, dur time.Duration, success bool, err error) {
	args := []any{"workflow_name", workflow, "step_count", steps, "duration", dur, "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	if !success {
		l.Error("Workflow run failed", args...)
		return
	}
	l.Info("Workflow run completed", args...)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *BridgeLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() { l.Info("Operation completed", "operation", op, "duration", time.Since(start)) }
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new BridgeLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *BridgeLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
