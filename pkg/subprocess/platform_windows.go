package subprocess

import (
	"os/exec"
)

func getPlatform() *Platform {
	return &Platform{
		os:    "windows",
		shell: "cmd",
	}
}

// killGroup on Windows just kills the process itself; job-object based
// group kill is not worth the complexity for the short-lived tool
// invocations this package drives.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func prepareGroup(cmd *exec.Cmd) {}
