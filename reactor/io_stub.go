//go:build !linux
// +build !linux

// File: reactor/io_stub.go
// Author: momentics <momentics@gmail.com>

package reactor

import "github.com/momentics/kio/api"

func errAgain(err error) bool { return false }

func readFD(fd int, p []byte) (int, error) { return 0, api.ErrNotSupported }

func writeFD(fd int, p []byte) (int, error) { return 0, api.ErrNotSupported }

func closeFD(fd int) error { return api.ErrNotSupported }

// SetNonblock is unsupported on this platform.
func SetNonblock(fd int) error { return api.ErrNotSupported }
