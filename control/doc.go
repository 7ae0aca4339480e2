// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package control carries the ambient concerns of the reactor core:
// typed YAML configuration, OpenTelemetry instruments, and debug probes.
package control
