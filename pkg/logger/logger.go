// Package logger is the structured logging system: leveled, gated per
// area with atomic flags, writing to a size-rotated log file. When it
// is never initialized every call is a cheap no-op, so library
// packages can log unconditionally.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antibyte/retrobasic/pkg/configuration"
)

// LogLevel orders log severities.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var logLevelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// LogArea tags a subsystem so noisy areas can be switched off
// individually.
type LogArea string

const (
	AreaLexer    LogArea = "lexer"
	AreaParser   LogArea = "parser"
	AreaSemantic LogArea = "semantic"
	AreaEmitter  LogArea = "emitter"
	AreaVM       LogArea = "vm"
	AreaRepl     LogArea = "repl"
	AreaTerminal LogArea = "terminal"
	AreaAuth     LogArea = "auth"
	AreaDatabase LogArea = "database"
	AreaConfig   LogArea = "config"
	AreaGeneral  LogArea = "general"
)

var allAreas = []LogArea{
	AreaLexer, AreaParser, AreaSemantic, AreaEmitter, AreaVM,
	AreaRepl, AreaTerminal, AreaAuth, AreaDatabase, AreaConfig,
	AreaGeneral,
}

// Logger is the process-wide logging backend.
type Logger struct {
	enabled     int32
	level       int32
	areaEnabled map[LogArea]*int32
	file        *os.File
	mutex       sync.Mutex
	logPath     string
	maxSizeMB   int64
	rotations   int
	currentSize int64
}

var (
	globalLogger *Logger
	initOnce     sync.Once
)

// Initialize starts the global logger from configuration.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		globalLogger, err = newLogger()
	})
	return err
}

func newLogger() (*Logger, error) {
	l := &Logger{areaEnabled: make(map[LogArea]*int32)}
	for _, area := range allAreas {
		l.areaEnabled[area] = new(int32)
	}
	l.loadConfig()
	if err := l.openLogFile(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) loadConfig() {
	enabled := configuration.GetBool("Debug", "enable_logging", true)
	atomic.StoreInt32(&l.enabled, boolToInt32(enabled))

	level := parseLogLevel(configuration.GetString("Debug", "log_level", "INFO"))
	atomic.StoreInt32(&l.level, int32(level))

	l.logPath = configuration.GetString("Debug", "log_file", "retrobasic.log")
	l.maxSizeMB = int64(configuration.GetInt("Debug", "max_log_size_mb", 10))
	l.rotations = configuration.GetInt("Debug", "log_rotation_count", 3)

	for area, flag := range l.areaEnabled {
		key := fmt.Sprintf("log_%s", string(area))
		atomic.StoreInt32(flag, boolToInt32(configuration.GetBool("Debug", key, true)))
	}
}

func (l *Logger) openLogFile() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	if dir := filepath.Dir(l.logPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	l.file = file
	if stat, err := file.Stat(); err == nil {
		l.currentSize = stat.Size()
	}
	return nil
}

// rotateLogFile shifts the log chain one step and truncates the live
// file. Caller holds the mutex.
func (l *Logger) rotateLogFile() {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	for i := l.rotations - 1; i >= 1; i-- {
		oldName := fmt.Sprintf("%s.%d", l.logPath, i)
		newName := fmt.Sprintf("%s.%d", l.logPath, i+1)
		if i == l.rotations-1 {
			os.Remove(newName)
		}
		os.Rename(oldName, newName)
	}
	os.Rename(l.logPath, l.logPath+".1")
	if file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644); err == nil {
		l.file = file
		l.currentSize = 0
	}
}

func (l *Logger) shouldLog(level LogLevel, area LogArea) bool {
	if atomic.LoadInt32(&l.enabled) == 0 {
		return false
	}
	if atomic.LoadInt32(&l.level) > int32(level) {
		return false
	}
	if flag, ok := l.areaEnabled[area]; ok {
		return atomic.LoadInt32(flag) != 0
	}
	return false
}

func (l *Logger) writeLog(level LogLevel, area LogArea, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	_, file, line, _ := runtime.Caller(3)
	entry := fmt.Sprintf("[%s] %s [%s:%d] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"),
		logLevelNames[level],
		filepath.Base(file),
		line,
		strings.ToUpper(string(area)),
		message)

	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.file == nil {
		return
	}
	n, err := l.file.WriteString(entry)
	if err == nil {
		l.currentSize += int64(n)
		if l.currentSize > l.maxSizeMB*1024*1024 {
			l.rotateLogFile()
		}
	}
}

func logAt(level LogLevel, area LogArea, format string, args ...interface{}) {
	if globalLogger != nil && globalLogger.shouldLog(level, area) {
		globalLogger.writeLog(level, area, format, args...)
	}
}

// Debug writes a debug entry for an area.
func Debug(area LogArea, format string, args ...interface{}) {
	logAt(DEBUG, area, format, args...)
}

// Info writes an info entry for an area.
func Info(area LogArea, format string, args ...interface{}) {
	logAt(INFO, area, format, args...)
}

// Warn writes a warning entry for an area.
func Warn(area LogArea, format string, args ...interface{}) {
	logAt(WARN, area, format, args...)
}

// Error writes an error entry for an area.
func Error(area LogArea, format string, args ...interface{}) {
	logAt(ERROR, area, format, args...)
}

// Fatal logs and terminates the process.
func Fatal(area LogArea, format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.writeLog(FATAL, area, format, args...)
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// Close flushes and closes the log file.
func Close() {
	if globalLogger == nil {
		return
	}
	globalLogger.mutex.Lock()
	defer globalLogger.mutex.Unlock()
	if globalLogger.file != nil {
		globalLogger.file.Close()
		globalLogger.file = nil
	}
}

func parseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
