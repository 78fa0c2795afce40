// Package hook implements the PreToolUse hook process. The agent spawns it
// before every tool call; it reads the tool invocation on stdin, asks the
// approval gateway for a decision, and prints the decision on stdout.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bazelment/yoloswe/agentsession/approval"
)

// Exit codes returned by Run.
const (
	ExitDecided = 0
	// ExitFailure reports an internal failure; the agent blocks the tool.
	ExitFailure = 2
)

// Permission decisions written to stdout.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// EventPreToolUse is the only hook event this package answers.
const EventPreToolUse = "PreToolUse"

// DefaultTimeout bounds the gateway round trip.
const DefaultTimeout = 120 * time.Second

// DefaultSafeTools are read-only tools allowed without asking the gateway.
var DefaultSafeTools = []string{"Read", "Glob", "Grep", "LS", "NotebookRead", "TodoRead"}

// Input is the JSON object the agent writes to the hook's stdin.
type Input struct {
	ToolInput     map[string]any `json:"tool_input" jsonschema:"description=Arguments of the pending tool call"`
	SessionID     string         `json:"session_id,omitempty"`
	CWD           string         `json:"cwd,omitempty"`
	HookEventName string         `json:"hook_event_name,omitempty"`
	ToolName      string         `json:"tool_name" jsonschema:"required"`
}

// Output is the decision object the hook writes to stdout.
type Output struct {
	HookSpecificOutput HookSpecificOutput `json:"hookSpecificOutput" jsonschema:"required"`
}

// HookSpecificOutput carries the PreToolUse permission decision.
type HookSpecificOutput struct {
	HookEventName            string `json:"hookEventName" jsonschema:"required,enum=PreToolUse"`
	PermissionDecision       string `json:"permissionDecision" jsonschema:"required,enum=allow,enum=deny"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

// Config configures Run.
type Config struct {
	Client *http.Client
	Logger *slog.Logger
	// GatewayURL is the approval gateway base URL.
	GatewayURL string
	// SafeTools overrides DefaultSafeTools when non-nil.
	SafeTools []string
	Timeout   time.Duration
}

func (c *Config) setDefaults() {
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.SafeTools == nil {
		c.SafeTools = DefaultSafeTools
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Run reads one Input from stdin, decides, writes one Output to stdout,
// and returns the process exit code. Every gateway failure, including the
// timeout, is answered with deny.
func Run(ctx context.Context, stdin io.Reader, stdout io.Writer, cfg Config) int {
	cfg.setDefaults()
	logger := cfg.Logger

	var in Input
	if err := json.NewDecoder(stdin).Decode(&in); err != nil {
		logger.Error("reading hook input", "error", err)
		return ExitFailure
	}
	if in.ToolName == "" {
		logger.Error("hook input has no tool_name")
		return ExitFailure
	}
	logger = logger.With("tool", in.ToolName)

	decision, reason := DecisionDeny, ""
	switch {
	case isSafe(in.ToolName, cfg.SafeTools):
		decision, reason = DecisionAllow, "read-only tool"
	case cfg.GatewayURL == "":
		logger.Error("no approval gateway configured")
		return ExitFailure
	default:
		approved, err := ask(ctx, cfg, in)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("approval timed out", "timeout", cfg.Timeout)
			reason = fmt.Sprintf("no approval decision within %s", cfg.Timeout)
		case err != nil:
			logger.Warn("approval request failed", "error", err)
			reason = "approval gateway unavailable"
		case approved:
			decision, reason = DecisionAllow, "approved by user"
		default:
			reason = "denied by user"
		}
	}

	logger.Debug("hook decided", "decision", decision, "reason", reason)
	out := Output{HookSpecificOutput: HookSpecificOutput{
		HookEventName:            EventPreToolUse,
		PermissionDecision:       decision,
		PermissionDecisionReason: reason,
	}}
	if err := json.NewEncoder(stdout).Encode(out); err != nil {
		logger.Error("writing hook output", "error", err)
		return ExitFailure
	}
	return ExitDecided
}

// isSafe matches tool against the allow-list. Entries may be glob patterns
// such as "mcp__docs__*".
func isSafe(tool string, safe []string) bool {
	for _, pattern := range safe {
		if pattern == tool {
			return true
		}
		if strings.ContainsAny(pattern, "*?[{") {
			if ok, _ := doublestar.Match(pattern, tool); ok {
				return true
			}
		}
	}
	return false
}

// ask POSTs the invocation to the gateway and returns its decision.
func ask(ctx context.Context, cfg Config, in Input) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	toolInput := in.ToolInput
	if toolInput == nil {
		toolInput = map[string]any{}
	}
	body, err := json.Marshal(approval.ApproveRequest{ToolName: in.ToolName, ToolInput: toolInput})
	if err != nil {
		return false, fmt.Errorf("encode approve request: %w", err)
	}

	url := strings.TrimSuffix(cfg.GatewayURL, "/") + "/approve"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build approve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := cfg.Client.Do(req)
	if err != nil {
		// Client.Do wraps the context error; surface it for the timeout check.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr approval.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		return false, fmt.Errorf("gateway returned %s: %s", resp.Status, apiErr.Error.Message)
	}

	var decision approval.ApproveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, fmt.Errorf("decode approve response: %w", err)
	}
	return decision.Approved, nil
}
