package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

var (
	InfoLogger  = log.New(os.Stderr, "INFO: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
	DebugLogger = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime)

	logFiles   []*os.File
	logFilesMu sync.Mutex
)

// InitLoggers направляет логи в файлы info.log, error.log и debug.log в каталоге dir.
// Пустой dir оставляет вывод в stderr. Возвращает функцию закрытия файлов.
func InitLoggers(dir string, debug bool) (func() error, error) {
	if dir == "" {
		if debug {
			DebugLogger.SetOutput(os.Stderr)
		}
		return func() error { return nil }, nil
	}

	// Создаем директорию для логов, если она не существует
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	open := func(name string) (*os.File, error) {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		return f, nil
	}

	infoFile, err := open("info.log")
	if err != nil {
		return nil, err
	}
	errorFile, err := open("error.log")
	if err != nil {
		infoFile.Close()
		return nil, err
	}

	logFilesMu.Lock()
	logFiles = append(logFiles, infoFile, errorFile)
	logFilesMu.Unlock()

	InfoLogger.SetOutput(infoFile)
	ErrorLogger.SetOutput(io.MultiWriter(errorFile, os.Stderr))

	if debug {
		debugFile, err := open("debug.log")
		if err != nil {
			return nil, err
		}
		logFilesMu.Lock()
		logFiles = append(logFiles, debugFile)
		logFilesMu.Unlock()
		DebugLogger.SetOutput(debugFile)
	}

	return closeLogFiles, nil
}

func closeLogFiles() error {
	logFilesMu.Lock()
	defer logFilesMu.Unlock()

	var firstErr error
	for _, f := range logFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	logFiles = nil
	return firstErr
}

// LogInfo логирует информационное сообщение
func LogInfo(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	InfoLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogError логирует сообщение об ошибке
func LogError(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	ErrorLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogDebug логирует отладочное сообщение
func LogDebug(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	DebugLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogOperation логирует операцию с метриками
func LogOperation(operation string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	if err != nil {
		LogError("Operation %s failed after %v: %v", operation, duration, err)
	} else {
		LogInfo("Operation %s completed in %v", operation, duration)
	}
}
