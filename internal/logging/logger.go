package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// FileName is the name of the log file inside the log directory.
const FileName = "genpause.log"

// Well-known attribute keys. The aggregator lifts these out of the free-form
// attributes so they can be filtered on.
const (
	KeyComponent = "component"
	KeyResource  = "resource"
	KeyAttempt   = "attempt_id"
)

// Logger provides structured JSON logging with persistent attributes.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	closer io.Closer
	mu     *sync.Mutex
	attrs  []slog.Attr
}

// NewLogger creates a Logger that writes JSON lines to {dir}/genpause.log
// through a RotatingWriter. If dir is empty, logs go to stderr.
//
// The level parameter controls which messages are logged:
//   - DEBUG: All messages
//   - INFO: Info, Warn, and Error messages
//   - WARN: Warn and Error messages
//   - ERROR: Only Error messages
func NewLogger(dir string, level string, rotation RotationConfig) (*Logger, error) {
	if dir == "" {
		return NewWriterLogger(os.Stderr, level), nil
	}

	rw, err := NewRotatingWriter(filepath.Join(dir, FileName), rotation)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	l := NewWriterLogger(rw, level)
	l.closer = rw
	return l, nil
}

// NewWriterLogger creates a Logger writing JSON lines to w. The caller owns w.
func NewWriterLogger(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{
		logger: slog.New(handler),
		mu:     &sync.Mutex{},
	}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a child Logger tagged with the emitting component
// (coordinator, reclaim, monitor, ...).
func (l *Logger) WithComponent(component string) *Logger {
	return l.withAttr(slog.String(KeyComponent, component))
}

// WithResource returns a child Logger tagged with a managed resource id.
func (l *Logger) WithResource(resource string) *Logger {
	return l.withAttr(slog.String(KeyResource, resource))
}

// WithAttempt returns a child Logger tagged with a reclamation attempt id.
func (l *Logger) WithAttempt(id string) *Logger {
	return l.withAttr(slog.String(KeyAttempt, id))
}

// With returns a child Logger with arbitrary key-value attributes.
// Non-string keys are skipped.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	attrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	attrs = append(attrs, l.attrs...)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return l.derive(attrs)
}

func (l *Logger) withAttr(attr slog.Attr) *Logger {
	attrs := make([]slog.Attr, len(l.attrs), len(l.attrs)+1)
	copy(attrs, l.attrs)
	return l.derive(append(attrs, attr))
}

func (l *Logger) derive(attrs []slog.Attr) *Logger {
	return &Logger{
		logger: l.logger,
		closer: l.closer,
		mu:     l.mu,
		attrs:  attrs,
	}
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	all := make([]any, 0, len(l.attrs)+len(args))
	for _, attr := range l.attrs {
		all = append(all, attr)
	}
	all = append(all, args...)

	l.logger.Log(context.Background(), level, msg, all...)
}

// Close closes the underlying log file. Loggers writing to stderr or a
// caller-owned writer are unaffected. Child loggers share the file, so
// closing any of them closes it for all.
func (l *Logger) Close() error {
	if l.mu == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil {
		return fmt.Errorf("failed to close log: %w", err)
	}
	return nil
}

// NopLogger returns a Logger that discards all output.
func NopLogger() *Logger {
	return NewWriterLogger(io.Discard, LevelError)
}

// ParseLevel normalizes a level string, returning LevelInfo when it is not
// recognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return strings.ToUpper(level)
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
