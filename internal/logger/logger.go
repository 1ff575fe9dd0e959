// Package logger provides a small leveled logger writing to a file and
// mirroring warnings/errors to the console, adapted from the teacher's
// internal/logger/logger.go for use by the server rather than a
// migration task.
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level lists supported log severities.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// Logger writes to a file and mirrors highlights to the console.
type Logger struct {
	mu         sync.Mutex
	fileLogger *log.Logger
	consoleLog *log.Logger
	level      Level
	logFile    *os.File
	prefix     string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init creates the global logger. Safe to call once per process; later
// calls are no-ops (matches the teacher's sync.Once-guarded Init).
func Init(logDir string, level Level, fileName string) error {
	var initErr error
	once.Do(func() {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			initErr = fmt.Errorf("logger: create log dir: %w", err)
			return
		}
		if fileName == "" {
			fileName = "redikv.log"
		}
		path := filepath.Join(logDir, fileName)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			initErr = fmt.Errorf("logger: open log file: %w", err)
			return
		}
		defaultLogger = &Logger{
			fileLogger: log.New(f, "", 0),
			consoleLog: log.New(os.Stdout, "", 0),
			level:      level,
			logFile:    f,
			prefix:     "redikv",
		}
	})
	return initErr
}

// Close shuts down the log file.
func Close() error {
	if defaultLogger != nil && defaultLogger.logFile != nil {
		return defaultLogger.logFile.Close()
	}
	return nil
}

func formatMessage(level Level, format string, args ...interface{}) string {
	ts := time.Now().Format("2006/01/02 15:04:05")
	return fmt.Sprintf("%s [%s] %s", ts, levelNames[level], fmt.Sprintf(format, args...))
}

func logToFile(level Level, format string, args ...interface{}) {
	if defaultLogger == nil {
		return
	}
	if level < defaultLogger.level {
		return
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.fileLogger.Println(formatMessage(level, format, args...))
}

func logToConsole(format string, args ...interface{}) {
	if defaultLogger == nil {
		fmt.Printf(format+"\n", args...)
		return
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	ts := time.Now().Format("2006/01/02 15:04:05")
	defaultLogger.consoleLog.Printf("%s [%s] %s", ts, defaultLogger.prefix, fmt.Sprintf(format, args...))
}

func logToBoth(level Level, format string, args ...interface{}) {
	logToFile(level, format, args...)
	logToConsole(format, args...)
}

// Debug logs to the file only.
func Debug(format string, args ...interface{}) { logToFile(DEBUG, format, args...) }

// Info logs to the file only.
func Info(format string, args ...interface{}) { logToFile(INFO, format, args...) }

// Warn logs to file and console.
func Warn(format string, args ...interface{}) { logToBoth(WARN, format, args...) }

// Error logs to file and console.
func Error(format string, args ...interface{}) { logToBoth(ERROR, format, args...) }
