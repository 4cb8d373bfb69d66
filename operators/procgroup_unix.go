//go:build unix

package operators

import (
	"os/exec"
	"syscall"
)

// setProcessGroup runs the command in its own process group so that
// cancelling the try also stops the processes the shell started.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
}
