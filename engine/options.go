package engine

import (
	"log/slog"
	"time"

	"github.com/bazelment/yoloswe/agentsession/agent"
)

// ApprovalConfig enables the tool permission round trip.
type ApprovalConfig struct {
	// Binary runs "hook pre-tool-use". Defaults to the running executable.
	Binary string
	// HookDir receives the generated hook files. Defaults to a temporary
	// directory removed by Close.
	HookDir string
	// SafeTools overrides the hook's read-only allow-list when non-nil.
	SafeTools    []string
	Timeout      time.Duration
	DetailBudget int
}

// Config holds engine configuration.
type Config struct {
	Logger       *slog.Logger
	Approval     *ApprovalConfig
	AgentOptions []agent.Option
	UpdateBuffer int
	WatchFiles   bool
}

// Option configures an Engine.
type Option func(*Config)

// WithLogger sets the logger shared by the engine's components.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithAgentOptions passes options to the agent supervisor.
func WithAgentOptions(opts ...agent.Option) Option {
	return func(c *Config) {
		c.AgentOptions = append(c.AgentOptions, opts...)
	}
}

// WithApproval routes tool permission requests to the host through
// ApprovalRequested updates and Engine.Approve.
func WithApproval(cfg ApprovalConfig) Option {
	return func(c *Config) {
		c.Approval = &cfg
	}
}

// WithUpdateBuffer sets the Updates channel buffer size.
func WithUpdateBuffer(size int) Option {
	return func(c *Config) {
		c.UpdateBuffer = size
	}
}

// WithFileWatching reports external edits to tracked files.
func WithFileWatching(enabled bool) Option {
	return func(c *Config) {
		c.WatchFiles = enabled
	}
}

func defaultConfig() Config {
	return Config{
		UpdateBuffer: 256,
		WatchFiles:   true,
	}
}
