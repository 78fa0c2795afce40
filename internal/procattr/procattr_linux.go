//go:build linux

// Package procattr configures agent subprocesses so they can be signalled as
// a group and do not outlive the host.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set puts cmd in its own process group. A non-zero parentDeath is delivered
// to the child by the kernel when the host dies without cleaning up, for
// example after SIGKILL or an OOM kill.
func Set(cmd *exec.Cmd, parentDeath syscall.Signal) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: parentDeath,
	}
}
