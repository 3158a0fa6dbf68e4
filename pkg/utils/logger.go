package utils

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the string representation of LogLevel
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
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name ("debug", "info", ...) to a LogLevel.
// Unknown names map to INFO.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorPurple = "\033[35m"
	colorGray   = "\033[90m"
	colorWhite  = "\033[37m"
)

// Logger provides leveled logging for the routing core
type Logger struct {
	level      LogLevel
	mu         sync.Mutex
	useColor   bool
	timestamps bool
	output     *log.Logger
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      LogLevel
	UseColor   bool
	Timestamps bool
}

// DefaultLoggerConfig returns default logger configuration
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:      INFO,
		UseColor:   true,
		Timestamps: true,
	}
}

// NewLogger creates a new logger with default configuration
func NewLogger() *Logger {
	return NewLoggerWithConfig(DefaultLoggerConfig())
}

// NewLoggerWithConfig creates a new logger with custom configuration
func NewLoggerWithConfig(config *LoggerConfig) *Logger {
	return &Logger{
		level:      config.Level,
		useColor:   config.UseColor,
		timestamps: config.Timestamps,
		output:     log.New(os.Stdout, "", 0),
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// log is the internal logging function
func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if level < l.GetLevel() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder

	if l.timestamps {
		timestamp := time.Now().Format("2006-01-02 15:04:05.000")
		if l.useColor {
			sb.WriteString(colorGray)
		}
		sb.WriteString("[")
		sb.WriteString(timestamp)
		sb.WriteString("] ")
		if l.useColor {
			sb.WriteString(colorReset)
		}
	}

	if l.useColor {
		sb.WriteString(l.getLevelColor(level))
	}
	sb.WriteString("[")
	sb.WriteString(level.String())
	sb.WriteString("] ")
	if l.useColor {
		sb.WriteString(colorReset)
	}

	sb.WriteString(fmt.Sprintf(format, args...))

	l.output.Println(sb.String())

	if level == FATAL {
		os.Exit(1)
	}
}

// getLevelColor returns the color for a log level
func (l *Logger) getLevelColor(level LogLevel) string {
	switch level {
	case DEBUG:
		return colorGray
	case INFO:
		return colorGreen
	case WARN:
		return colorYellow
	case ERROR:
		return colorRed
	case FATAL:
		return colorPurple
	default:
		return colorWhite
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
}

// defaultLogger backs the package-level helpers below.
var defaultLogger = NewLogger()

// SetDefaultLevel sets the level of the package-level logger.
func SetDefaultLevel(level LogLevel) {
	defaultLogger.SetLevel(level)
}

// Debug logs a debug message on the default logger
func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

// Info logs an info message on the default logger
func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

// Warn logs a warning message on the default logger
func Warn(format string, args ...interface{}) {
	defaultLogger.Warn(format, args...)
}

// Error logs an error message on the default logger
func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}

// Fatal logs a fatal message on the default logger and exits
func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatal(format, args...)
}
