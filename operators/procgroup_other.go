//go:build !unix

package operators

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
