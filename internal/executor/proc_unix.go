//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the child in its own process group so a kill
// reaches the whole tree (parent + children).
func configureProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup delivers SIGKILL to the child's entire process group,
// falling back to killing just the child if the group cannot be resolved.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil || pgid <= 0 {
		return cmd.Process.Kill()
	}
	return syscall.Kill(-pgid, syscall.SIGKILL)
}
