// Package logging provides structured logging for ringbuf using stdlib slog,
// and the frame sink that writes framed serial data to its destinations.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// LogConfig controls logger creation.
type LogConfig struct {
	Level  string    // "debug", "info", "warn", "error"
	Format string    // "json" (default), "text", "auto"
	Output io.Writer // defaults to os.Stdout
}

// New creates a configured *slog.Logger.
func New(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if useText(cfg.Format, out) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}

// useText reports whether the text handler should be used. "auto" picks text
// when out is a terminal.
func useText(format string, out io.Writer) bool {
	switch strings.ToLower(format) {
	case "text":
		return true
	case "auto":
		f, ok := out.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	default:
		return false
	}
}

// PreviewLimit is how many bytes Preview renders before truncating.
const PreviewLimit = 64

// Preview renders serial data for a log attribute: a Go-quoted prefix of at
// most PreviewLimit bytes, with the remainder reported as a count. The
// rendering is deferred until a handler actually emits the record.
type Preview []byte

// LogValue implements slog.LogValuer.
func (b Preview) LogValue() slog.Value {
	if len(b) <= PreviewLimit {
		return slog.StringValue(strconv.Quote(string(b)))
	}
	return slog.StringValue(fmt.Sprintf("%s+%d", strconv.Quote(string(b[:PreviewLimit])), len(b)-PreviewLimit))
}

// WithFields returns a child logger with additional context fields.
func WithFields(logger *slog.Logger, fields ...any) *slog.Logger {
	return logger.With(fields...)
}

// ValidateLevel returns an error unless s names a known level.
func ValidateLevel(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", s)
}

// DaemonLogger builds the process logger. With an empty logfile it writes to
// stderr and the returned cleanup is nil.
func DaemonLogger(level, format, logfile string) (*slog.Logger, func(), error) {
	if logfile == "" {
		return New(LogConfig{Level: level, Format: format, Output: os.Stderr}), nil, nil
	}

	f, err := os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file: %s: %w", logfile, err)
	}
	cleanup := func() { f.Close() }
	return New(LogConfig{Level: level, Format: format, Output: f}), cleanup, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
