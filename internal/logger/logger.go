// Package logger builds the application logger: leveled slog output to
// stderr plus a timestamped logfile.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// New creates a logger writing to stderr and a run-stamped file under dir.
// If the logfile cannot be created the logger falls back to stderr only.
// The returned closer releases the logfile.
func New(dir, levelStr string) (*slog.Logger, func()) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if err := os.MkdirAll(dir, 0o755); err == nil {
		name := filepath.Join(dir, fmt.Sprintf("subhunt_%s.log", time.Now().Format("2006-01-02_15-04-05")))
		if f, err := os.Create(name); err == nil {
			w = io.MultiWriter(os.Stderr, f)
			closer = func() { _ = f.Close() }
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer
}
