// Package logger provides the leveled logger used throughout WhenFS. It
// wraps log/slog with a WhenFS-specific severity ladder (TRACE is finer
// than slog's own Debug) and can render either human-readable text or
// structured JSON, matching the two formats operators expect from a
// daemonized FUSE mount.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels, ordered finest to coarsest. TRACE and DEBUG both map
// onto slog.LevelDebug with an extra negative offset so TRACE can be
// filtered independently of DEBUG.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var severityNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

type factory struct {
	format string // "text" or "json"
	level  *slog.LevelVar
}

var (
	defaultLoggerFactory = &factory{format: "text", level: new(slog.LevelVar)}
	defaultLogger        = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.level, ""))
)

// severityReplacer renames slog's "level" attribute to "severity" and maps
// our custom levels back to their WhenFS names.
func severityReplacer(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, _ := a.Value.Any().(slog.Level)
		name, ok := severityNames[level]
		if !ok {
			name = level.String()
		}
		a.Key = "severity"
		a.Value = slog.StringValue(name)
	}
	if a.Key == slog.MessageKey {
		a.Key = "message"
	}
	if a.Key == slog.TimeKey {
		a.Key = "time"
	}
	return a
}

func (f *factory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: severityReplacer,
	}
	pw := &prefixWriter{w: w, prefix: prefix}
	if strings.EqualFold(f.format, "json") {
		return slog.NewJSONHandler(pw, opts)
	}
	return slog.NewTextHandler(pw, opts)
}

// prefixWriter writes a static prefix before each Write call without
// touching the handler's formatting. Every handler in this package is
// built with an empty prefix, so nothing is prepended.
type prefixWriter struct {
	w      io.Writer
	prefix string
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	if p.prefix != "" {
		if _, err := io.WriteString(p.w, p.prefix); err != nil {
			return 0, err
		}
	}
	n, err := p.w.Write(b)
	return n, err
}

// Config controls where and how logs are emitted.
type Config struct {
	// File to write logs to. Empty means stderr.
	File string
	// Format is "text" or "json".
	Format string
	// Severity is one of TRACE, DEBUG, INFO, WARNING, ERROR.
	Severity string
	// MaxSizeMB, MaxBackups, MaxAgeDays control lumberjack rotation. Ignored
	// when File is empty.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init reconfigures the package-level logger per cfg. It is safe to call
// at most once per process, at startup, before any mount activity begins.
func Init(cfg Config) error {
	defaultLoggerFactory.format = cfg.Format
	setLoggingLevel(cfg.Severity, defaultLoggerFactory.level)

	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 512),
			MaxBackups: orDefault(cfg.MaxBackups, 10),
			MaxAge:     orDefault(cfg.MaxAgeDays, 0),
		}
	}

	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, defaultLoggerFactory.level, ""))
	return nil
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

func setLoggingLevel(severity string, level *slog.LevelVar) {
	switch strings.ToUpper(severity) {
	case "TRACE":
		level.Set(LevelTrace)
	case "DEBUG":
		level.Set(LevelDebug)
	case "WARNING", "WARN":
		level.Set(LevelWarn)
	case "ERROR":
		level.Set(LevelError)
	default:
		level.Set(LevelInfo)
	}
}

func log(ctx context.Context, level slog.Level, format string, v ...interface{}) {
	defaultLogger.Log(ctx, level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...interface{}) { log(context.Background(), LevelTrace, format, v...) }
func Debugf(format string, v ...interface{}) { log(context.Background(), LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { log(context.Background(), LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { log(context.Background(), LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { log(context.Background(), LevelError, format, v...) }
