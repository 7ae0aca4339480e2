//go:build linux
// +build linux

// File: reactor/io_linux.go
// Author: momentics <momentics@gmail.com>
//
// Raw non-blocking descriptor I/O for the hot transfer path.

package reactor

import (
	"golang.org/x/sys/unix"
)

// errAgain reports whether err is the nonblocking would-block condition.
func errAgain(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func readFD(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func writeFD(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func closeFD(fd int) error {
	return unix.Close(fd)
}

// SetNonblock switches fd into non-blocking mode. Every descriptor handed to
// a Channel must be non-blocking or the hot path can stall a whole cycle.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
