package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotRunning is returned by writes when no subprocess is attached or
	// its stdin is closed.
	ErrNotRunning = errors.New("agent is not running")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("supervisor is closed")
)

// ProtocolError represents a malformed protocol line. It is carried inside a
// TextEvent and never ends the session.
type ProtocolError struct {
	Cause   error
	Message string
	Line    string
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("protocol error: %s", e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// ProcessError represents a failure to spawn or talk to the CLI process.
type ProcessError struct {
	Cause   error
	Message string
}

func (e *ProcessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("process error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("process error: %s", e.Message)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// CLINotFoundError indicates the agent CLI binary was not found.
type CLINotFoundError struct {
	Cause error
	Path  string
}

func (e *CLINotFoundError) Error() string {
	return fmt.Sprintf("CLI binary not found at %q: %v", e.Path, e.Cause)
}

func (e *CLINotFoundError) Unwrap() error {
	return e.Cause
}

// ExitError reports that the agent exited without being asked to. Code is
// -1 when the process was killed by a signal.
type ExitError struct {
	Stderr string
	Code   int
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return "agent exited unexpectedly (killed by signal)"
	}
	return fmt.Sprintf("agent exited unexpectedly (exit code %d)", e.Code)
}

// IsRecoverable returns true if the session can continue after err.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return true
	}

	var procErr *ProcessError
	if errors.As(err, &procErr) {
		return false
	}

	var cliErr *CLINotFoundError
	if errors.As(err, &cliErr) {
		return false
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return false
	}

	if errors.Is(err, ErrClosed) {
		return false
	}

	return true
}
