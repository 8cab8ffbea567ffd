//go:build !unix

package procpool

import "os/exec"

func setProcAttr(cmd *exec.Cmd) {}
