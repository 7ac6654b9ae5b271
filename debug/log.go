package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	out     io.Writer
	file    *os.File
	mu      sync.Mutex
	enabled bool
)

// Enable starts debug logging to ~/.config/go-polyrhythm/debug.log
func Enable() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return EnableFile(filepath.Join(homeDir, ".config", "go-polyrhythm", "debug.log"))
}

// EnableFile starts debug logging to the given path, truncating it
func EnableFile(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	file = f
	out = f
	enabled = true

	// Write directly (can't call Log - we hold the mutex)
	writeLine("debug", "=== Debug logging started ===")

	return nil
}

// SetOutput sends log lines to w instead of a file. A nil writer disables logging.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	closeFile()
	out = w
	enabled = w != nil
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	closeFile()
	out = nil
	enabled = false
}

// Enabled reports whether log lines are currently written anywhere
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Log writes a message to the debug log
func Log(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled || out == nil {
		return
	}

	writeLine(category, fmt.Sprintf(format, args...))
}

// LogEvery logs only every N calls (use for per-tick events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	if n <= 0 {
		n = 1
	}
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}

func writeLine(category, msg string) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(out, "[%s] %-10s %s\n", ts, category, msg)
	if file != nil {
		file.Sync() // flush immediately so we see logs even on crash
	}
}

func closeFile() {
	if file != nil {
		file.Close()
		file = nil
	}
}
