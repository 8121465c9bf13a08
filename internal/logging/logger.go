// Package logging provides leveled logging for framecraft commands,
// with optional file output, JSON lines, and console sampling for
// high-rate campaign loops.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// ParseLevel maps a level name from a flag or config file to its
// LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "silent":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger writes leveled messages to the console and, optionally, to a
// log file. Errors go to stderr; lower levels reach stdout only at
// verbose and above, so command output stays clean by default.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	format   string
	logEvery int
	counter  int
	file     *os.File
	fileLog  *log.Logger
	stdout   *log.Logger
	stderr   *log.Logger
}

// NewLogger creates a text logger. logFile may be empty.
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return NewLoggerWithOptions(level, logFile, "text", 1)
}

// NewLoggerWithOptions creates a logger with an output format ("text"
// or "json") and a console sampling rate: with logEvery n, only every
// nth message reaches the console. The log file, when set, always
// receives every message.
func NewLoggerWithOptions(level LogLevel, logFile, format string, logEvery int) (*Logger, error) {
	if format == "" {
		format = "text"
	}
	if logEvery <= 0 {
		logEvery = 1
	}
	l := &Logger{
		level:    level,
		format:   format,
		logEvery: logEvery,
		stdout:   log.New(os.Stdout, "", 0),
		stderr:   log.New(os.Stderr, "", 0),
	}

	if logFile != "" {
		file, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		flags := log.LstdFlags
		if format == "json" {
			// JSON lines carry their own timestamp
			flags = 0
		}
		l.file = file
		l.fileLog = log.New(file, "", flags)
	}

	return l, nil
}

// Close closes the log file, if one was opened.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.write("ERROR", fmt.Sprintf(format, v...), true)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.write("INFO", fmt.Sprintf(format, v...), false)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.level >= LogLevelVerbose {
		l.write("VERBOSE", fmt.Sprintf(format, v...), false)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.write("DEBUG", fmt.Sprintf(format, v...), false)
	}
}

// write routes one message. The file gets every message; the console
// is gated by the sampling counter, then by level (errors to stderr,
// the rest to stdout only when verbose or debug).
func (l *Logger) write(label, msg string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counter++

	line := label + ": " + msg
	if l.format == "json" {
		line = jsonLine(label, msg)
	}

	if l.fileLog != nil {
		l.fileLog.Println(line)
	}
	if l.counter%l.logEvery != 0 {
		return
	}

	if isError {
		l.stderr.Println(line)
	} else if l.level >= LogLevelVerbose {
		l.stdout.Println(line)
	}
}

func jsonLine(label, msg string) string {
	entry := struct {
		Time    string `json:"time"`
		Level   string `json:"level"`
		Message string `json:"message"`
	}{
		Time:    time.Now().Format(time.RFC3339),
		Level:   strings.ToLower(label),
		Message: msg,
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return msg
	}
	return string(b)
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogExchange records one request/response exchange with a device.
// Successful exchanges log at verbose, failures at info, so quiet runs
// surface only the problems.
func (l *Logger) LogExchange(operation, target string, success bool, rttMs float64, err error) {
	statusStr := "FAILED"
	if success {
		statusStr = "SUCCESS"
	}

	var errStr string
	if err != nil {
		errStr = fmt.Sprintf(" - error: %v", err)
	}

	msg := fmt.Sprintf("%s %s to %s (RTT: %.3fms)%s", statusStr, operation, target, rttMs, errStr)

	if success {
		l.Verbose("%s", msg)
	} else {
		l.Info("%s", msg)
	}
}

// LogStartup logs startup information for a command. Empty values are
// skipped, since not every command has a target or a spec.
func (l *Logger) LogStartup(command, target, specName, configPath string) {
	l.Info("Starting framecraft %s", command)
	if target != "" {
		l.Verbose("  Target: %s", target)
	}
	if specName != "" {
		l.Verbose("  Spec: %s", specName)
	}
	if configPath != "" {
		l.Verbose("  Config: %s", configPath)
	}
}

// LogHex logs raw frame bytes at debug level, spaced per byte.
func (l *Logger) LogHex(label string, data []byte) {
	if l.level < LogLevelDebug {
		return
	}
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", v)
	}
	l.Debug("%s: %s", label, b.String())
}
