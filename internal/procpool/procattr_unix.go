//go:build unix

package procpool

import (
	"os/exec"
	"syscall"
)

// setProcAttr starts the worker in its own process group so a terminal
// interrupt aimed at the parent does not kill workers mid-deletion; workers
// exit when the parent closes their stdin.
func setProcAttr(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
