// Package log provides structured logging for go-meri.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Options configures the global logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string

	// JSON selects the JSON handler. Init also enables it when
	// GO_ENV=production.
	JSON bool

	// File, if set, receives a copy of every line with size-based rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

// New builds a logger writing to w and, if opts.File is set, to a
// rotating file.
func New(w io.Writer, opts Options) *slog.Logger {
	if opts.File != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// Init initializes the global logger once and makes it the slog default.
func Init(opts Options) {
	once.Do(func() {
		if os.Getenv("GO_ENV") == "production" {
			opts.JSON = true
		}
		logger = New(os.Stdout, opts)
		slog.SetDefault(logger)
	})
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init(Options{Level: "info"})
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
