//go:build linux
// +build linux

// File: scheduler/reap_linux.go
// Author: momentics <momentics@gmail.com>
//
// Child reaping for ProcessExit links: on SIGCHLD, collect every exited
// child without blocking.

package scheduler

import "golang.org/x/sys/unix"

// reapChildren drains exited children and returns their pids. One SIGCHLD
// may stand for several exits, so loop until the kernel has nothing left.
func reapChildren() []int {
	var pids []int
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			return pids
		}
		pids = append(pids, pid)
	}
}
