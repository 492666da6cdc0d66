package logger

import (
	"fmt"
	"sort"
	"strings"
)

// LogEntry carries structured fields for one log line.
type LogEntry struct {
	fields map[string]interface{}
	logger *Logger
}

// WithFields attaches structured fields to the log entry.
func WithFields(fields map[string]interface{}) *LogEntry {
	return &LogEntry{fields: fields}
}

// With returns a copy of the entry with one more field.
func (e *LogEntry) With(key string, value interface{}) *LogEntry {
	fields := make(map[string]interface{}, len(e.fields)+1)
	for k, v := range e.fields {
		fields[k] = v
	}
	fields[key] = value
	return &LogEntry{fields: fields, logger: e.logger}
}

func (e *LogEntry) Debug(format string, args ...interface{}) { e.log(DEBUG, format, args...) }
func (e *LogEntry) Info(format string, args ...interface{})  { e.log(INFO, format, args...) }
func (e *LogEntry) Warn(format string, args ...interface{})  { e.log(WARN, format, args...) }
func (e *LogEntry) Error(format string, args ...interface{}) { e.log(ERROR, format, args...) }
func (e *LogEntry) Fatal(format string, args ...interface{}) { e.log(FATAL, format, args...) }

// Log emits the entry at an explicit level.
func (e *LogEntry) Log(level LogLevel, format string, args ...interface{}) {
	e.log(level, format, args...)
}

func (e *LogEntry) log(level LogLevel, format string, args ...interface{}) {
	l := e.logger
	if l == nil {
		l = std()
	}
	if !l.enabled(level) {
		return
	}
	l.write(3, level, e.render(fmt.Sprintf(format, args...)))
}

// render appends the fields in key order so lines are greppable.
func (e *LogEntry) render(message string) string {
	if len(e.fields) == 0 {
		return message
	}
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(message)
	b.WriteString(" | ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, e.fields[k])
	}
	return b.String()
}
