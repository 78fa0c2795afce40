package procattr

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// SignalGroup sends a signal to the entire process group of the given process.
// Using the negative PID causes the kernel to deliver the signal to all
// processes in the group, not just the direct child.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// KillGroup sends SIGKILL to the entire process group of the given process.
func KillGroup(p *os.Process) error {
	return SignalGroup(p, syscall.SIGKILL)
}

// Terminate asks the process group to exit with SIGTERM and escalates to
// SIGKILL if exited is not closed within grace. It returns once exited is
// closed or the kill has been sent.
func Terminate(p *os.Process, exited <-chan struct{}, grace time.Duration) error {
	if p == nil {
		return nil
	}
	if err := SignalGroup(p, syscall.SIGTERM); err != nil {
		return err
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-exited:
		return nil
	case <-timer.C:
		return KillGroup(p)
	}
}
