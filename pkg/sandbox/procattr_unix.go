//go:build unix && !linux

package sandbox

import (
	"os/exec"
	"syscall"
)

// sysProcAttr puts the child in its own process group. Network isolation is
// not available on this platform and is ignored.
func sysProcAttr(Limits) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the child and everything it spawned.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
