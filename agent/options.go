package agent

import (
	"log/slog"
	"syscall"
	"time"
)

// Config holds Supervisor configuration. Per-session choices live in
// StartRequest instead.
type Config struct {
	Logger          *slog.Logger
	StderrHandler   func([]byte)
	Env             map[string]string
	CLIPath         string // Path to the agent binary (default: "claude")
	RecordDir       string
	ExtraArgs       []string
	EventBufferSize int
	StopGrace       time.Duration
	// ParentDeathSignal is sent to the CLI if the host dies first. Zero
	// disables it. Linux only.
	ParentDeathSignal syscall.Signal
}

// Option is a functional option for configuring a Supervisor.
type Option func(*Config)

// WithCLIPath sets a custom CLI binary path (default: "claude").
func WithCLIPath(path string) Option {
	return func(c *Config) {
		c.CLIPath = path
	}
}

// WithEnv sets additional environment variables for the CLI process.
func WithEnv(env map[string]string) Option {
	return func(c *Config) {
		c.Env = env
	}
}

// WithExtraArgs sets additional CLI arguments (escape hatch).
func WithExtraArgs(args ...string) Option {
	return func(c *Config) {
		c.ExtraArgs = args
	}
}

// WithEventBufferSize sets the event channel buffer size.
func WithEventBufferSize(size int) Option {
	return func(c *Config) {
		c.EventBufferSize = size
	}
}

// WithStderrHandler sets a handler called with each line the CLI writes to
// stderr.
func WithStderrHandler(h func([]byte)) Option {
	return func(c *Config) {
		c.StderrHandler = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithRecording enables session recording. Every line sent to or received
// from the CLI is appended to a new .jsonl file under dir per attempt.
func WithRecording(dir string) Option {
	return func(c *Config) {
		c.RecordDir = dir
	}
}

// WithStopGrace sets how long Stop waits after SIGTERM before SIGKILL.
func WithStopGrace(d time.Duration) Option {
	return func(c *Config) {
		c.StopGrace = d
	}
}

// WithParentDeathSignal sets the signal the CLI receives if the host exits
// without stopping it (default SIGTERM; zero disables). It has no effect
// outside Linux.
func WithParentDeathSignal(sig syscall.Signal) Option {
	return func(c *Config) {
		c.ParentDeathSignal = sig
	}
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		CLIPath:         "claude",
		EventBufferSize: 100,
		StopGrace:       500 * time.Millisecond,
		// Lets the CLI flush its session file before exiting.
		ParentDeathSignal: syscall.SIGTERM,
	}
}
