package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	once     sync.Once
	logger   *slog.Logger
	logFile  *os.File
	setupErr error
)

// Options configures the process logger.
type Options struct {
	// Level is DEBUG, INFO, WARN or ERROR (any case). Anything else means INFO.
	Level string
	// Format is "json" (default) or "text".
	Format string
	// File, when set, receives a copy of every line written to Output.
	File string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// Setup initializes the global logger. Only the first call has any effect.
func Setup(opts Options) error {
	once.Do(func() {
		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		if opts.File != "" {
			if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
				setupErr = fmt.Errorf("create log directory: %w", err)
				return
			}
			f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				setupErr = fmt.Errorf("open log file: %w", err)
				return
			}
			logFile = f
			out = io.MultiWriter(out, f)
		}

		logger = New(out, opts.Level, opts.Format)
		slog.SetDefault(logger)
	})
	return setupErr
}

// New builds a logger without touching the global one.
func New(w io.Writer, level, format string) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

// ParseLevel maps a level name to a slog.Level, falling back to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close releases the log file, if any.
func Close() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *slog.Logger {
	if logger == nil {
		_ = Setup(Options{Level: "INFO"})
	}
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithOperation returns a logger with the operation field set.
func WithOperation(name string) *slog.Logger {
	return Get().With(slog.String("operation", name))
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
