//go:build windows
// +build windows

package runner

import (
	"os/exec"
	"syscall"
)

// setDetached gives the tool its own console, matching the behavior the
// launcher has always had for GUI tools on Windows.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminateTree kills the immediate child. Windows has no POSIX process
// groups to signal, so helper processes are best-effort only.
func terminateTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
