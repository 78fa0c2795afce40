//go:build !linux

// Package procattr configures agent subprocesses so they can be signalled as
// a group and do not outlive the host.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set puts cmd in its own process group. parentDeath is ignored: only Linux
// can have the kernel signal a child when its parent dies, so elsewhere the
// host relies on group signals at shutdown.
func Set(cmd *exec.Cmd, _ syscall.Signal) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
