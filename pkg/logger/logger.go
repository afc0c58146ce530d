// Package logger is the module's leveled logger. Validation findings
// never go through it; they are issues on the result. The log carries
// operational events only: catalog loading, engine startup, and
// per-run summaries at debug level.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level orders log severities. Messages below the logger's level are
// dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError

	// LevelNone suppresses all output.
	LevelNone
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "NONE"}

// String returns the level's log-line tag.
func (l Level) String() string {
	if l < LevelDebug || l > LevelNone {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel maps a configuration string to a Level. Matching is
// case-insensitive.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return LevelNone, fmt.Errorf("logger: unknown level %q", s)
}

// Logger writes timestamped lines to a single output. All methods are
// safe for concurrent use.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

// New creates a logger writing to out at the given level.
func New(out io.Writer, level Level) *Logger {
	return &Logger{out: out, level: level}
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(os.Stderr, LevelInfo))
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger. Passing nil keeps the
// current one.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// SetLevel changes the logger's level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects the logger's output.
func (l *Logger) SetOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
}

// Enabled reports whether messages at the given level would be
// written.
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level && level != LevelNone
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level || level == LevelNone {
		return
	}
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(l.out, "%s wah4pc-phcore %s %s\n",
		time.Now().Format("15:04:05"), level, msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }

// Info logs at info level.
func (l *Logger) Info(format string, args ...any) { l.log(LevelInfo, format, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...any) { l.log(LevelWarn, format, args...) }

// Error logs at error level.
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

// Debug logs at debug level on the process-wide logger.
func Debug(format string, args ...any) { Default().Debug(format, args...) }

// Info logs at info level on the process-wide logger.
func Info(format string, args ...any) { Default().Info(format, args...) }

// Warn logs at warn level on the process-wide logger.
func Warn(format string, args ...any) { Default().Warn(format, args...) }

// Error logs at error level on the process-wide logger.
func Error(format string, args ...any) { Default().Error(format, args...) }

// SetLevel changes the process-wide logger's level.
func SetLevel(level Level) { Default().SetLevel(level) }

// SetOutput redirects the process-wide logger's output.
func SetOutput(out io.Writer) { Default().SetOutput(out) }

// Disable silences the process-wide logger.
func Disable() { Default().SetLevel(LevelNone) }
