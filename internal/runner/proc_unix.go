//go:build !windows
// +build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// setDetached configures cmd to run in its own session so the launcher
// can exit without taking the tool down with it.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// setProcessGroup puts cmd into its own process group so a timeout or
// cancellation kill reaches helpers the tool forked, not just the
// immediate child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateTree kills the process group rooted at cmd, falling back to
// the single process when the group is gone already.
func terminateTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		return syscall.Kill(-pgid, syscall.SIGKILL)
	}
	return cmd.Process.Kill()
}
