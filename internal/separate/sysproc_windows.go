//go:build windows

package separate

import (
	"os/exec"
	"syscall"
)

// detachProcessGroup keeps console Ctrl+C events away from the script.
func detachProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
