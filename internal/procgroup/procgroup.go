// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"errors"
	"time"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrKillFailed      = errors.New("kill operation failed")
)

// KillGroup attempts to terminate an entire process group tree, given the
// PID of a command started with Set(cmd). Standard lifecycle: SIGTERM ->
// wait grace -> SIGKILL -> wait timeout.
//
// Set and Kill are provided per-OS (see procgroup_unix.go,
// procgroup_windows.go); KillGroup's own wait/escalate loop is also
// per-OS (procgroup_linux.go, procgroup_other.go) since only Linux can
// address a whole process group by negative PID.
func KillGroup(pid int, grace, timeout time.Duration) error {
	return killGroup(pid, grace, timeout)
}
