//go:build !windows

package subprocess

import (
	"os/exec"
	"runtime"
	"syscall"
)

func getPlatform() *Platform {
	return &Platform{
		os:    runtime.GOOS,
		shell: "bash",
	}
}

// killGroup kills a process's whole group, for tools (the build-tool
// wrapper in particular) that spawn their own children which survive a
// plain Process.Kill.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if cmd.SysProcAttr != nil && cmd.SysProcAttr.Setpgid {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return cmd.Process.Kill()
}

// prepareGroup sets Setpgid so killGroup can terminate the whole tree.
func prepareGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
