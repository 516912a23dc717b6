//go:build !unix

package sandbox

import (
	"os/exec"
	"syscall"
)

func sysProcAttr(Limits) *syscall.SysProcAttr {
	return nil
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
