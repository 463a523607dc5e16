// Package logging provides leveled console output for guarded calls.
// Lines look like:
//
//	WARN  2026-02-05T04:00:00.000Z [github] rate_limited key=api.github.com wait=700ms
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a config string ("debug", "INFO", ...) to a Level.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := levelPriority[level]; !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// sink is the writer shared by a logger and everything derived from it.
type sink struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
}

// Logger writes leveled lines to a shared output. Loggers derived with
// WithComponent or WithCallID share the output and level of their parent.
type Logger struct {
	sink      *sink
	component string
	callID    string
	now       func() time.Time
}

// New creates a Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		sink: &sink{output: os.Stdout, minLevel: LevelInfo},
		now:  time.Now,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := New()
	l.SetOutput(io.Discard)
	l.SetLevel(LevelError)
	return l
}

// WithComponent returns a logger tagged with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	c := *l
	c.component = component
	return &c
}

// WithCallID returns a logger that adds call_id to every line.
func (l *Logger) WithCallID(id string) *Logger {
	c := *l
	c.callID = id
	return &c
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	l.sink.minLevel = level
	l.sink.mu.Unlock()
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.output = w
	l.sink.mu.Unlock()
}

// Enabled reports whether level would be written.
func (l *Logger) Enabled(level Level) bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return levelPriority[level] >= levelPriority[l.sink.minLevel]
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields renders fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

// log writes: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if !l.Enabled(level) {
		return
	}

	timestamp := l.now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.callID != "" {
		fieldStr += " call_id=" + l.callID
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output.Write([]byte(line))
}

// --- Resilience events ---

// RateLimited logs that a call had to wait for a limiter slot.
func (l *Logger) RateLimited(key string, wait time.Duration) {
	l.Debug("rate_limited", map[string]interface{}{
		"key":  key,
		"wait": wait.String(),
	})
}

// RetryScheduled logs a failed attempt that will be retried after delay.
func (l *Logger) RetryScheduled(key string, attempt int, delay time.Duration, err error) {
	l.Warn("retry_scheduled", map[string]interface{}{
		"key":     key,
		"attempt": attempt,
		"delay":   delay.String(),
		"error":   err.Error(),
	})
}

// RetryExhausted logs the failure that ended a guarded call.
func (l *Logger) RetryExhausted(key string, attempts int, err error) {
	l.Error("retry_exhausted", map[string]interface{}{
		"key":      key,
		"attempts": attempts,
		"error":    err.Error(),
	})
}

// CallComplete logs a guarded call that succeeded.
func (l *Logger) CallComplete(key string, attempts int, duration time.Duration) {
	l.Debug("call_complete", map[string]interface{}{
		"key":      key,
		"attempts": attempts,
		"duration": duration.String(),
	})
}
