// Package logger provides the process-wide structured logger used by every
// regd component. It wraps log/slog with runtime-adjustable level and
// format; file outputs rotate via lumberjack.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar)
	format  = "text"
	output  io.Writer = os.Stdout
	slogger *slog.Logger
)

func init() {
	level.Set(slog.LevelInfo)
	rebuild()
}

// rebuild recreates the slog handler from the current settings.
// Callers must hold mu.
func rebuild() {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	slogger = slog.New(h)
}

// Init configures the logger. Output may be "stdout", "stderr", or a file
// path; file outputs are size-rotated.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		output = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    100, // MiB
			MaxBackups: 5,
			Compress:   true,
		}
	}

	if cfg.Format != "" {
		f := strings.ToLower(cfg.Format)
		if f == "text" || f == "json" {
			format = f
		}
	}
	if cfg.Level != "" {
		level.Set(parseLevel(cfg.Level))
	}

	rebuild()
	return nil
}

// InitWithWriter points the logger at a custom writer. Primarily for tests.
func InitWithWriter(w io.Writer, lvl, format string) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	if format != "" {
		setFormatLocked(format)
	}
	if lvl != "" {
		level.Set(parseLevel(lvl))
	}
	rebuild()
}

func setFormatLocked(f string) {
	f = strings.ToLower(f)
	if f == "text" || f == "json" {
		format = f
	}
}

// SetLevel adjusts the minimum level at runtime (config reload path).
// Invalid levels are ignored.
func SetLevel(lvl string) {
	switch strings.ToUpper(lvl) {
	case "DEBUG", "INFO", "WARN", "ERROR":
		level.Set(parseLevel(lvl))
	}
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToUpper(lvl) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

// Debug logs at debug level with structured fields.
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at info level with structured fields.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at warn level with structured fields.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at error level with structured fields.
func Error(msg string, args ...any) { get().Error(msg, args...) }

// With returns a logger with pre-bound attributes, used by per-connection
// code to carry the session and peer address on every line.
func With(args ...any) *slog.Logger { return get().With(args...) }
