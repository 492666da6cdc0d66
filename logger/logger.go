// Package logger is the levelled logger used across the server. Lines go to
// the console (optionally coloured) and to a daily log file, and structured
// fields are appended in key order.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

func (l LogLevel) color() string {
	switch l {
	case DEBUG:
		return "\033[36m"
	case INFO:
		return "\033[32m"
	case WARN:
		return "\033[33m"
	case ERROR:
		return "\033[31m"
	default:
		return "\033[35m"
	}
}

const resetColor = "\033[0m"

// ParseLevel maps a level name such as "debug" or "WARN" to a LogLevel.
// Unknown names map to INFO.
func ParseLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Logger writes levelled lines to its writers. The first writer is the
// console and is the only one that gets colour codes.
type Logger struct {
	level      LogLevel
	writers    []io.Writer
	mu         sync.Mutex
	useColor   bool
	prefix     string
	showCaller bool
}

// Config describes how the logger should be initialised.
type Config struct {
	Level      LogLevel
	LogDir     string
	MaxSize    int64 // bytes
	MaxAge     int   // days
	UseColor   bool
	ShowCaller bool
	Prefix     string
	// Output replaces stdout as the console writer when set.
	Output io.Writer
}

var (
	defaultLogger *Logger
	once          sync.Once

	// fallback serves calls made before Initialize: warnings and worse
	// go to stderr.
	fallback = &Logger{level: WARN, writers: []io.Writer{os.Stderr}}
)

// Initialize boots the global logger. Later calls are no-ops.
func Initialize(config Config) error {
	var err error
	once.Do(func() {
		console := config.Output
		if console == nil {
			console = os.Stdout
		}
		l := &Logger{
			level:      config.Level,
			writers:    []io.Writer{console},
			useColor:   config.UseColor,
			prefix:     config.Prefix,
			showCaller: config.ShowCaller,
		}
		if config.LogDir != "" {
			var file *dailyFile
			file, err = openDailyFile(config.LogDir, config.MaxSize, config.MaxAge)
			if err != nil {
				return
			}
			l.writers = append(l.writers, file)
		}
		defaultLogger = l
	})
	return err
}

func std() *Logger {
	if defaultLogger != nil {
		return defaultLogger
	}
	return fallback
}

func (l *Logger) enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

// write renders one line. depth is the number of frames between the public
// API call and write, used for the caller annotation.
func (l *Logger) write(depth int, level LogLevel, message string) {
	if !l.enabled(level) {
		return
	}

	caller := ""
	if l.showCaller {
		if _, file, line, ok := runtime.Caller(depth + 1); ok {
			caller = fmt.Sprintf(" [%s:%d]", filepath.Base(file), line)
		}
	}
	head := fmt.Sprintf("%s%s [%s]%s ", time.Now().UTC().Format("2006-01-02 15:04:05.000"), caller, level, l.prefix)

	l.mu.Lock()
	for i, w := range l.writers {
		if i == 0 && l.useColor {
			io.WriteString(w, head+level.color()+message+resetColor+"\n")
			continue
		}
		io.WriteString(w, head+message+"\n")
	}
	l.mu.Unlock()

	if level == FATAL {
		os.Exit(1)
	}
}

func Debug(format string, args ...interface{}) {
	std().write(2, DEBUG, fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	std().write(2, INFO, fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	std().write(2, WARN, fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	std().write(2, ERROR, fmt.Sprintf(format, args...))
}

// Fatal logs and exits the process.
func Fatal(format string, args ...interface{}) {
	std().write(2, FATAL, fmt.Sprintf(format, args...))
}

// SetLevel updates the global logging level.
func SetLevel(level LogLevel) {
	l := std()
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// GetLevel returns the current global logging level.
func GetLevel() LogLevel {
	l := std()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}
