// Package logging builds the slog loggers used by the agentsession binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Custom slog levels for graduated verbosity.
// slog.LevelDebug is -4; lower values are more verbose.
const (
	// LevelTrace is used for -vv: every protocol line in and out.
	LevelTrace slog.Level = slog.LevelDebug - 4 // -8
)

// LevelFor maps a -v count to a slog level.
func LevelFor(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelInfo
	case verbosity == 1:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// New returns a text logger writing to w.
func New(w io.Writer, verbosity int) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: LevelFor(verbosity)}))
}

// NewJSON returns a JSON logger writing to w. The hook subcommand uses it so
// its stderr stays machine-readable in the agent's own logs.
func NewJSON(w io.Writer, verbosity int) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: LevelFor(verbosity)}))
}

// NewFile creates a logger that writes to both w and a timestamped file
// under dir. Returns the logger, the log file path, and a cleanup function
// to close the log file. If the file cannot be created the logger falls back
// to w alone and the path is empty.
func NewFile(w io.Writer, dir string, verbosity int) (*slog.Logger, string, func()) {
	if dir == "" {
		return New(w, verbosity), "", func() {}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return New(w, verbosity), "", func() {}
	}

	logFile := filepath.Join(dir, time.Now().Format("2006-01-02T15-04-05")+".log")
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return New(w, verbosity), "", func() {}
	}

	return New(io.MultiWriter(w, f), verbosity), logFile, func() { f.Close() }
}
