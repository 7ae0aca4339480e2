//go:build linux
// +build linux

// File: kchannel/accept_linux.go
// Author: momentics <momentics@gmail.com>

package kchannel

import "golang.org/x/sys/unix"

// acceptFD takes one pending connection off the listener, already
// non-blocking and close-on-exec.
func acceptFD(listener int) (int, error) {
	for {
		fd, _, err := unix.Accept4(listener, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, err
		}
		return fd, nil
	}
}
