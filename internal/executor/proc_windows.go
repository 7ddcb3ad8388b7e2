//go:build windows

package executor

import "os/exec"

// Windows has no POSIX process groups; killing the direct child is the best
// available effort.
func configureProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
