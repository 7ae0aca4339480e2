//go:build !linux
// +build !linux

// File: kchannel/accept_stub.go
// Author: momentics <momentics@gmail.com>

package kchannel

import "github.com/momentics/kio/api"

func acceptFD(listener int) (int, error) { return -1, api.ErrNotSupported }
