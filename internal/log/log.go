// Package log writes leveled, category-tagged debug logs for activesave.
// Nothing is written until Init or InitWriter installs a logger, so library
// code logs unconditionally.
package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel reads a level name as written in config, case-insensitively.
// An empty name is LevelDebug.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelDebug, fmt.Errorf("unknown log level %q", name)
}

// Category groups related log messages.
type Category string

const (
	CatDB      Category = "db"      // Durable cache backends
	CatConfig  Category = "config"  // Configuration loading/saving
	CatWatcher Category = "watcher" // File watcher events
	CatForm    Category = "form"    // Form parsing and field reconciliation
	CatSubmit  Category = "submit"  // Form submission and response handling
	CatSession Category = "session" // Autosave workflows: track, push, append, persist, unload
	CatCache   Category = "cache"   // In-memory cache hits and fills
)

// Logger formats entries onto a writer.
type Logger struct {
	mu       sync.Mutex
	w        io.Writer
	enabled  bool
	minLevel Level
	now      func() time.Time
}

var current atomic.Pointer[Logger]

// Init appends to the log file at path and installs it as the logger,
// replacing any earlier one. The returned func closes the file.
func Init(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // G304: path is the user's debug log
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	l := install(f)
	return func() {
		current.CompareAndSwap(l, nil)
		_ = f.Close()
	}, nil
}

// InitWriter logs to an already open writer, such as os.Stderr, replacing
// any earlier logger.
func InitWriter(w io.Writer) {
	install(w)
}

func install(w io.Writer) *Logger {
	l := &Logger{w: w, enabled: true, minLevel: LevelDebug, now: time.Now}
	current.Store(l)
	return l
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := current.Load(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel drops entries below level.
func SetMinLevel(level Level) {
	if l := current.Load(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs at error level with err as the "error" field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err == nil {
		fields = append(fields, "error", "<nil>")
	} else {
		fields = append(fields, "error", err)
	}
	log(LevelError, cat, msg, fields...)
}

func log(level Level, cat Category, msg string, fields ...any) {
	if l := current.Load(); l != nil {
		l.write(level, cat, msg, fields)
	}
}

// write emits one line:
//
//	2026-10-19T10:45:00.123 [ERROR] [submit] submission failed form=f1 error="connection refused"
func (l *Logger) write(level Level, cat Category, msg string, fields []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || level < l.minLevel {
		return
	}

	var b strings.Builder
	b.WriteString(l.now().Format("2006-01-02T15:04:05.000"))
	fmt.Fprintf(&b, " [%s] [%s] %s", level, cat, msg)
	for i := 0; i < len(fields); i += 2 {
		b.WriteByte(' ')
		b.WriteString(fmt.Sprint(fields[i]))
		b.WriteByte('=')
		if i+1 < len(fields) {
			b.WriteString(formatValue(fields[i+1]))
		} else {
			b.WriteString("<missing>")
		}
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(l.w, b.String())
}

// formatValue quotes values that would otherwise be ambiguous in a
// space-separated key=value line.
func formatValue(v any) string {
	var s string
	switch val := v.(type) {
	case error:
		s = val.Error()
	case fmt.Stringer:
		s = val.String()
	case string:
		s = val
	default:
		s = fmt.Sprint(val)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
