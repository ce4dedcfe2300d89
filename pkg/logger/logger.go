// Package logger wraps log/slog with process-wide default and audit loggers.
package logger

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string      `json:"level" yaml:"level"`
	Format      string      `json:"format" yaml:"format"`
	OutputPaths []string    `json:"output_paths" yaml:"output_paths"`
	Rotation    Rotation    `json:"rotation" yaml:"rotation"`
	Audit       AuditConfig `json:"audit" yaml:"audit"`
}

// Rotation bounds file outputs. Zero values fall back to defaults.
type Rotation struct {
	MaxSizeMB  int  `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `json:"compress" yaml:"compress"`
}

// AuditConfig controls audit log output behaviour.
type AuditConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Path     string   `json:"path" yaml:"path"`
	Rotation Rotation `json:"rotation" yaml:"rotation"`
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	closers       []io.Closer
)

// Init configures the global logger instances. Calling it again replaces the
// previous configuration and closes its file outputs.
func Init(cfg Config) error {
	level := parseLevel(cfg.Level)
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	var opened []io.Closer
	writer := buildWriter(cfg.OutputPaths, cfg.Rotation, &opened)
	base := slog.New(newHandler(cfg.Format, writer, handlerOpts))

	audit := base
	if cfg.Audit.Enabled {
		if strings.TrimSpace(cfg.Audit.Path) == "" {
			closeAll(opened)
			return errors.New("audit log path cannot be empty when enabled")
		}
		rotating := newRotatingFile(cfg.Audit.Path, cfg.Audit.Rotation)
		opened = append(opened, rotating)
		audit = slog.New(slog.NewJSONHandler(rotating, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	mu.Lock()
	previous := closers
	defaultLogger = base
	auditLogger = audit
	closers = opened
	mu.Unlock()

	slog.SetDefault(base)
	closeAll(previous)
	return nil
}

func buildWriter(outputs []string, rotation Rotation, opened *[]io.Closer) io.Writer {
	if len(outputs) == 0 {
		return os.Stdout
	}
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		switch strings.ToLower(strings.TrimSpace(out)) {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			file := newRotatingFile(out, rotation)
			*opened = append(*opened, file)
			writers = append(writers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0]
	}
	return io.MultiWriter(writers...)
}

func newRotatingFile(path string, rotation Rotation) *lumberjack.Logger {
	if rotation.MaxSizeMB <= 0 {
		rotation.MaxSizeMB = 100
	}
	if rotation.MaxBackups <= 0 {
		rotation.MaxBackups = 7
	}
	if rotation.MaxAgeDays <= 0 {
		rotation.MaxAgeDays = 30
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}
}

func newHandler(format string, writer io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts)
	}
	return slog.NewJSONHandler(writer, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func closeAll(list []io.Closer) error {
	var err error
	for _, closer := range list {
		err = errors.Join(err, closer.Close())
	}
	return err
}

// L returns the structured logger instance.
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	_ = Init(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	mu.RLock()
	l := auditLogger
	mu.RUnlock()
	if l == nil {
		return L()
	}
	return l
}

// Named returns a child logger tagged with the provided component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Trace returns a logger that stamps every record with the turn's trace id.
func Trace(traceID string) *slog.Logger {
	return L().With(slog.String("trace_id", traceID))
}

// Sync closes file outputs opened by Init.
func Sync() error {
	mu.Lock()
	list := closers
	closers = nil
	mu.Unlock()
	return closeAll(list)
}
