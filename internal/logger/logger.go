// Package logger configures the process-wide slog logger for questd: text or
// json output to the console and to a rotating file. Components receive an
// injected *slog.Logger tagged with their name through Component.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelAudit is used for quest completions and reward grants. Audit lines are
// written whatever the configured level.
const LevelAudit = slog.Level(12)

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Initialize builds the package logger from config. With neither console nor
// file enabled it falls back to text on stdout.
func Initialize(config Config) error {
	level := parseLogLevel(config.Level)

	var handlers []slog.Handler
	if config.ConsoleEnabled {
		handlers = append(handlers, newHandler(os.Stdout, config.ConsoleFormat, level))
	}
	if config.FileEnabled {
		rotating := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.FileMaxSizeMB,
			MaxBackups: config.FileMaxBackups,
			MaxAge:     config.FileMaxAgeDays,
			Compress:   config.FileCompress,
		}
		handlers = append(handlers, newHandler(rotating, config.FileFormat, level))
	}

	var l *slog.Logger
	switch len(handlers) {
	case 0:
		l = slog.New(newHandler(os.Stdout, "text", level))
	case 1:
		l = slog.New(handlers[0])
	default:
		l = slog.New(fanout(handlers))
	}

	set(l)
	return nil
}

func set(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey {
				return a
			}
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelAudit {
				a.Value = slog.StringValue("AUDIT")
			}
			return a
		},
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Default returns the configured logger, or a discard logger before Initialize.
func Default() *slog.Logger {
	if l := current(); l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Component returns Default tagged with component=name.
func Component(name string) *slog.Logger {
	return Default().With("component", name)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logAt(level slog.Level, msg string, args ...any) {
	if l := current(); l != nil {
		l.Log(context.Background(), level, msg, args...)
	}
}

func Debug(msg string, args ...any)   { logAt(slog.LevelDebug, msg, args...) }
func Info(msg string, args ...any)    { logAt(slog.LevelInfo, msg, args...) }
func Warning(msg string, args ...any) { logAt(slog.LevelWarn, msg, args...) }
func Error(msg string, args ...any)   { logAt(slog.LevelError, msg, args...) }

// Audit records a quest outcome. It bypasses level filtering.
func Audit(msg string, args ...any) { logAt(LevelAudit, msg, args...) }

// fanout sends each record to every handler enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
