package agent

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/bazelment/yoloswe/agentsession/internal/ndjson"
	"github.com/bazelment/yoloswe/agentsession/internal/procattr"
)

// Permission modes understood by the agent CLI.
const (
	PermissionModeDefault     = "default"
	PermissionModeAcceptEdits = "acceptEdits"
	PermissionModePlan        = "plan"
	PermissionModeBypass      = "bypassPermissions"
)

// StartRequest holds the per-session choices for one Start call.
type StartRequest struct {
	// WorkDir is the agent's working directory.
	WorkDir string
	// PermissionMode is passed through as --permission-mode.
	PermissionMode string
	// SettingsPath points at a settings file declaring the PreToolUse hook.
	SettingsPath string
	// Model overrides the agent's default model.
	Model string
	// Resume continues an earlier session by id.
	Resume string
}

// BuildArgs builds the CLI arguments for req.
//
// The agent CLI uses: --print --verbose --input-format stream-json
// --output-format stream-json --include-partial-messages
// --permission-mode <m> [options]
func BuildArgs(req StartRequest, extra []string) []string {
	mode := req.PermissionMode
	if mode == "" {
		mode = PermissionModeDefault
	}

	args := []string{
		"--print",
		"--verbose",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--include-partial-messages",
		"--permission-mode", mode,
	}

	if req.SettingsPath != "" {
		args = append(args, "--settings", req.SettingsPath)
	}

	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}

	if req.Resume != "" {
		args = append(args, "--resume", req.Resume)
	}

	// Add extra args (escape hatch)
	args = append(args, extra...)

	return args
}

// processManager owns one spawned CLI process and its pipes.
type processManager struct {
	stdout io.ReadCloser
	stderr io.ReadCloser
	cmd    *exec.Cmd
	stdin  *ndjson.Writer
	exited chan struct{}
	config Config
	req    StartRequest
	once   sync.Once
}

func newProcessManager(config Config, req StartRequest) *processManager {
	return &processManager{
		config: config,
		req:    req,
		exited: make(chan struct{}),
	}
}

// Start spawns the CLI process in its own process group. The process is
// signalled when ctx is done.
func (pm *processManager) Start(ctx context.Context) error {
	cliPath := pm.config.CLIPath
	if cliPath == "" {
		cliPath = "claude"
	}

	pm.cmd = exec.CommandContext(ctx, cliPath, BuildArgs(pm.req, pm.config.ExtraArgs)...)

	pm.cmd.Env = os.Environ()
	for k, v := range pm.config.Env {
		pm.cmd.Env = append(pm.cmd.Env, k+"="+v)
	}

	// Own process group, so Stop reaches every child the CLI spawned.
	procattr.Set(pm.cmd, pm.config.ParentDeathSignal)
	pm.cmd.Cancel = func() error {
		return procattr.SignalGroup(pm.cmd.Process, syscall.SIGTERM)
	}
	pm.cmd.WaitDelay = pm.config.StopGrace

	if pm.req.WorkDir != "" {
		pm.cmd.Dir = pm.req.WorkDir
	}

	stdin, err := pm.cmd.StdinPipe()
	if err != nil {
		return &ProcessError{Message: "failed to create stdin pipe", Cause: err}
	}

	pm.stdout, err = pm.cmd.StdoutPipe()
	if err != nil {
		return &ProcessError{Message: "failed to create stdout pipe", Cause: err}
	}

	pm.stderr, err = pm.cmd.StderrPipe()
	if err != nil {
		return &ProcessError{Message: "failed to create stderr pipe", Cause: err}
	}

	if err := pm.cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return &CLINotFoundError{Path: cliPath, Cause: err}
		}
		return &ProcessError{Message: "failed to start CLI process", Cause: err}
	}

	pm.stdin = ndjson.NewWriter(stdin)
	return nil
}

// Wait waits for the process and reports its exit code; -1 means it was
// killed by a signal. Wait must only be called after stdout and stderr have
// been fully read.
func (pm *processManager) Wait() (int, error) {
	err := pm.cmd.Wait()
	pm.once.Do(func() { close(pm.exited) })

	state := pm.cmd.ProcessState
	if state == nil {
		return -1, err
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, err
	}
	return state.ExitCode(), err
}

// Stop closes stdin and shuts down the process group: SIGTERM, then SIGKILL
// after the grace period.
func (pm *processManager) Stop() {
	if pm.stdin != nil {
		_ = pm.stdin.Close()
	}
	if pm.cmd == nil || pm.cmd.Process == nil {
		return
	}
	select {
	case <-pm.exited:
		return
	default:
	}

	grace := pm.config.StopGrace
	if grace <= 0 {
		grace = 500 * time.Millisecond
	}
	_ = procattr.Terminate(pm.cmd.Process, pm.exited, grace)
}
