// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package control

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultsValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_LoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kio.yaml")
	doc := []byte(`
poll:
  max_events: 256
matrix:
  exit_at_zero: 4
  cycle_timeout: 10ms
flow:
  chunk_size: 8192
`)
	require.NoError(t, os.WriteFile(path, doc, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Poll.MaxEvents)
	assert.Equal(t, 4, cfg.Matrix.ExitAtZero)
	assert.Equal(t, 10*time.Millisecond, cfg.Matrix.CycleTimeout)
	assert.Equal(t, 8192, cfg.Flow.ChunkSize)

	// Unset fields keep their defaults.
	def := DefaultConfig()
	assert.Equal(t, def.Matrix.ChannelsPerArray, cfg.Matrix.ChannelsPerArray)
	assert.Equal(t, def.Matrix.GraceCycles, cfg.Matrix.GraceCycles)
	assert.Equal(t, def.Flow.HighWatermark, cfg.Flow.HighWatermark)
}

func TestConfig_LoadMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfig_ValidateRejections(t *testing.T) {
	cases := map[string]func(*Config){
		"zero max_events":         func(c *Config) { c.Poll.MaxEvents = 0 },
		"zero channels_per_array": func(c *Config) { c.Matrix.ChannelsPerArray = 0 },
		"zero exit_at_zero":       func(c *Config) { c.Matrix.ExitAtZero = 0 },
		"negative grace_cycles":   func(c *Config) { c.Matrix.GraceCycles = -1 },
		"zero cycle_timeout":      func(c *Config) { c.Matrix.CycleTimeout = 0 },
		"inverted watermarks":     func(c *Config) { c.Flow.LowWatermark = c.Flow.HighWatermark + 1 },
		"zero chunk_size":         func(c *Config) { c.Flow.ChunkSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDebugProbes_Dump(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterGauges("static", func() map[string]int {
		return map[string]int{"value": 42}
	})
	state := dp.Dump()
	require.Contains(t, state, "static")
	assert.Equal(t, 42, state["static"]["value"])
}

func TestDebugProbes_LogEmitsGauges(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterGauges("pool", func() map[string]int {
		return map[string]int{"depth": 3, "arrays": 1}
	})

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dp.Log(logger)

	out := buf.String()
	assert.Contains(t, out, "probe pool")
	assert.Contains(t, out, "depth=3")
	assert.Contains(t, out, "arrays=1")
}

func TestMetrics_NilReceiverSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TaskExecuted(1)
		m.LinkFired(3)
		m.ArrayAdded()
		m.ArrayEvicted()
	})
}
