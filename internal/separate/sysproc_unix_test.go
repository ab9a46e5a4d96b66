//go:build unix

package separate

import (
	"context"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExecRunnerDetachesProcessGroup checks the script does not share the
// caller's process group, so terminal interrupts do not reach it.
func TestExecRunnerDetachesProcessGroup(t *testing.T) {
	runner := &execRunner{}
	childPgid := -1
	childPid := -1

	exitCode, err := runner.Run(context.Background(), "sh", []string{"-c", "echo $$; sleep 1"}, func(line string) {
		pid, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr != nil || childPid != -1 {
			return
		}
		childPid = pid
		childPgid, _ = syscall.Getpgid(pid)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
	require.Positive(t, childPid)
	assert.Equal(t, childPid, childPgid)
	assert.NotEqual(t, syscall.Getpgrp(), childPgid)
}
