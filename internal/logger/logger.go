// Package logger provides leveled logging for the mula CLI and daemon.
//
// The package exposes printf-style functions (Info, Warn, Error, Debug)
// backed by a single shared logger. Debug output is suppressed unless
// enabled with SetDebug. When file logging is enabled the log stream is
// rotated with lumberjack so long-running daemons do not fill the disk.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log rotation limits for the daemon log file.
const (
	maxLogSizeMB  = 50
	maxLogBackups = 5
	maxLogAgeDays = 30
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stderr
	debugOn bool
	rotator *lumberjack.Logger
)

// SetDebug enables or disables debug-level output.
//
// Thread Safety: Safe for concurrent calls.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	debugOn = enabled
}

// DebugEnabled reports whether debug-level output is enabled.
func DebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debugOn
}

// SetOutput redirects all log output to w.
//
// Primarily used by tests; production code uses the default stderr or
// EnableFileLogging.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// EnableFileLogging writes log output to a rotated file under dir in
// addition to stderr.
//
// The file is named mula.log and rotated at 50MB, keeping at most 5
// backups for 30 days. Used by the daemon; interactive CLI commands
// keep plain stderr logging.
//
// Parameters:
//   - dir: Directory for the log file (created if missing)
//
// Returns:
//   - Error if the directory cannot be created
func EnableFileLogging(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	rotator = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "mula.log"),
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}
	out = io.MultiWriter(os.Stderr, rotator)

	return nil
}

// CloseFile closes the rotated log file if file logging was enabled.
func CloseFile() {
	mu.Lock()
	defer mu.Unlock()
	if rotator != nil {
		rotator.Close()
		rotator = nil
		out = os.Stderr
	}
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	write("INFO", format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	write("WARN", format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	write("ERROR", format, args...)
}

// Debug logs a debug message. No-op unless SetDebug(true) was called.
func Debug(format string, args ...interface{}) {
	mu.Lock()
	enabled := debugOn
	mu.Unlock()
	if !enabled {
		return
	}
	write("DEBUG", format, args...)
}

func write(level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	ts := time.Now().Format("2006/01/02 15:04:05")
	fmt.Fprintf(out, "%s [%s] %s\n", ts, level, fmt.Sprintf(format, args...))
}
