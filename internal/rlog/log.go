// Package rlog is the framework's internal logger, adapted from the
// teacher's tools/logger package: a single *log.Logger writing to a file,
// with a caller-derived prefix per call. Renamed and trimmed to the levels
// the reactor runtime actually emits.
package rlog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

var (
	mu     sync.Mutex
	logger *log.Logger
)

func init() {
	f, err := os.OpenFile("goreact.log", os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o666)
	if err != nil {
		// Fall back to stderr rather than panicking: a library must not
		// crash an embedding application just because the cwd isn't
		// writable.
		logger = log.New(os.Stderr, "", 0)
		return
	}
	logger = log.New(f, "", 0)
}

func prefix(level string) string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return fmt.Sprintf("[%s] ", level)
	}
	return fmt.Sprintf("[%s][%s:%d] ", level, filepath.Base(file), line)
}

func line(level string, v ...any) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetPrefix(prefix(level))
	logger.Println(v...)
}

func linef(level, format string, v ...any) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetPrefix(prefix(level))
	logger.Printf(format, v...)
}

func Debug(v ...any)                    { line("DEBUG", v...) }
func DebugF(format string, v ...any)    { linef("DEBUG", format, v...) }
func Warn(v ...any)                     { line("WARN", v...) }
func WarnF(format string, v ...any)     { linef("WARN", format, v...) }
func Error(v ...any)                    { line("ERROR", v...) }
func ErrorF(format string, v ...any)    { linef("ERROR", format, v...) }
func Info(v ...any)                     { line("INFO", v...) }
func InfoF(format string, v ...any)     { linef("INFO", format, v...) }
