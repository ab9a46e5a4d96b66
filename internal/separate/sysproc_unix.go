//go:build unix

package separate

import (
	"os/exec"
	"syscall"
)

// detachProcessGroup starts the script in its own process group so a
// terminal Ctrl+C reaches only mvsep, which then stops the job cooperatively.
func detachProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
