//go:build !windows

package docker

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the command in its own process group so that a
// context cancellation during a long build kills the whole build tree, not
// just the top-level client process.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
