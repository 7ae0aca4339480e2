// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package api

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTransitionViolation_MatchesSentinel(t *testing.T) {
	err := NewTransition("channel", "acquire", "terminated")
	if !errors.Is(err, ErrTransition) {
		t.Error("TransitionViolation must match ErrTransition")
	}
	if errors.Is(err, ErrInvalidArgument) {
		t.Error("TransitionViolation must not match unrelated sentinels")
	}
	want := "channel.acquire: transition violation (terminated)"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestTransitionViolation_SurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("during setup: %w", NewTransition("array", "cycle", "terminated"))
	if !errors.Is(wrapped, ErrTransition) {
		t.Error("wrapped TransitionViolation must still match ErrTransition")
	}
	var tv *TransitionViolation
	if !errors.As(wrapped, &tv) || tv.Object != "array" {
		t.Errorf("errors.As failed to recover the violation: %+v", tv)
	}
}

func TestError_Context(t *testing.T) {
	err := NewError(ErrCodeOS, "descriptor failed").WithContext("fd", 7)
	if err.Code != ErrCodeOS {
		t.Errorf("code = %v, want ErrCodeOS", err.Code)
	}
	if !strings.Contains(err.Error(), "descriptor failed") || !strings.Contains(err.Error(), "fd") {
		t.Errorf("message %q missing content", err.Error())
	}
}

func TestEndpoint_Raised(t *testing.T) {
	ep := Endpoint{FD: 3}
	if ep.Raised() {
		t.Error("fresh endpoint must not report a raised exception")
	}
	ep.LastErr = errors.New("broken pipe")
	if !ep.Raised() {
		t.Error("endpoint with a parked error must report raised")
	}
}
