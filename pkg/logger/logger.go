// Package logger provides component-tagged structured logging for chanrelay.
//
// Every record carries a "component" field naming the subsystem that emitted
// it (relay, store, telegram, dispatch, gateway). The package keeps a single
// process-wide logger so that packages can log without threading a handle
// through every constructor.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "debug",
	INFO:  "info",
	WARN:  "warn",
	ERROR: "error",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

var (
	mu           sync.RWMutex
	currentLevel = INFO
	console      io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	fileSink     *lumberjack.Logger
	base         = build()
)

// build assembles the zerolog logger from the current sinks. Callers hold mu.
func build() zerolog.Logger {
	var w io.Writer = console
	if fileSink != nil {
		w = zerolog.MultiLevelWriter(console, fileSink)
	}
	return zerolog.New(w).Level(toZerolog(currentLevel)).With().Timestamp().Logger()
}

func toZerolog(l LogLevel) zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
	base = build()
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// SetOutput replaces the console sink. Tests use it to capture JSON records.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	console = w
	base = build()
}

// EnableFileLogging mirrors every record as JSON lines into path. The file
// is rotated once it reaches maxSizeMB; three rotated files are kept.
func EnableFileLogging(path string, maxSizeMB int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 1
	}
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
	}

	mu.Lock()
	defer mu.Unlock()
	if fileSink != nil {
		fileSink.Close()
	}
	fileSink = rot
	base = build()
	return nil
}

func DisableFileLogging() {
	mu.Lock()
	defer mu.Unlock()
	if fileSink != nil {
		fileSink.Close()
		fileSink = nil
	}
	base = build()
}

func logMessage(level LogLevel, component, message string, fields map[string]any) {
	mu.RLock()
	l := base
	mu.RUnlock()

	evt := l.WithLevel(toZerolog(level))
	if evt == nil {
		return
	}
	if component != "" {
		evt = evt.Str("component", component)
	}
	if len(fields) > 0 {
		evt = evt.Fields(fields)
	}
	evt.Msg(message)
}

func Debug(message string) { logMessage(DEBUG, "", message, nil) }
func Info(message string)  { logMessage(INFO, "", message, nil) }
func Warn(message string)  { logMessage(WARN, "", message, nil) }
func Error(message string) { logMessage(ERROR, "", message, nil) }

func DebugC(component, message string) { logMessage(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logMessage(INFO, component, message, nil) }
func WarnC(component, message string)  { logMessage(WARN, component, message, nil) }
func ErrorC(component, message string) { logMessage(ERROR, component, message, nil) }

func DebugCF(component, message string, fields map[string]any) {
	logMessage(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]any) {
	logMessage(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]any) {
	logMessage(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]any) {
	logMessage(ERROR, component, message, fields)
}
