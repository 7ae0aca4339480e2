// File: control/config.go
// Author: momentics <momentics@gmail.com>
//
// Typed runtime configuration for the reactor core, loadable from YAML.

package control

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the kio reactor core.
type Config struct {
	Poll   PollConfig   `yaml:"poll"`
	Matrix MatrixConfig `yaml:"matrix"`
	Flow   FlowConfig   `yaml:"flow"`
}

// PollConfig sizes the readiness primitive.
type PollConfig struct {
	// MaxEvents is the per-wait readiness-table capacity.
	MaxEvents int `yaml:"max_events"`
}

// MatrixConfig tunes the Array pool and its idle-eviction worker loop.
type MatrixConfig struct {
	// ChannelsPerArray caps how many channels one array multiplexes before
	// the pool allocates a new array.
	ChannelsPerArray int `yaml:"channels_per_array"`

	// ExitAtZero is the number of consecutive idle cycles a worker tolerates
	// before tentatively removing its array from the live set.
	ExitAtZero int `yaml:"exit_at_zero"`

	// GraceCycles is the extra countdown after a successful removal before
	// the array is actually terminated, absorbing a racing acquire.
	GraceCycles int `yaml:"grace_cycles"`

	// CycleTimeout bounds one worker poll pass.
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
}

// FlowConfig tunes the K-family adapters.
type FlowConfig struct {
	// HighWatermark is the queued-payload depth at which KOutput signals
	// backpressure.
	HighWatermark int `yaml:"high_watermark"`

	// LowWatermark is the depth at which backpressure releases.
	LowWatermark int `yaml:"low_watermark"`

	// ChunkSize is the destination buffer size KInput re-acquires on demand.
	ChunkSize int `yaml:"chunk_size"`
}

// DefaultConfig returns the tuned defaults. The eviction constants are
// empirically chosen; treat them as tunables, not a contract.
func DefaultConfig() Config {
	return Config{
		Poll: PollConfig{MaxEvents: 128},
		Matrix: MatrixConfig{
			ChannelsPerArray: 64,
			ExitAtZero:       16,
			GraceCycles:      3,
			CycleTimeout:     50 * time.Millisecond,
		},
		Flow: FlowConfig{
			HighWatermark: 64,
			LowWatermark:  16,
			ChunkSize:     64 * 1024,
		},
	}
}

// LoadConfig reads a YAML config file, filling unset fields from defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the reactor cannot run with.
func (c Config) Validate() error {
	if c.Poll.MaxEvents <= 0 {
		return fmt.Errorf("poll.max_events must be positive, got %d", c.Poll.MaxEvents)
	}
	if c.Matrix.ChannelsPerArray <= 0 {
		return fmt.Errorf("matrix.channels_per_array must be positive, got %d", c.Matrix.ChannelsPerArray)
	}
	if c.Matrix.ExitAtZero <= 0 {
		return fmt.Errorf("matrix.exit_at_zero must be positive, got %d", c.Matrix.ExitAtZero)
	}
	if c.Matrix.GraceCycles < 0 {
		return fmt.Errorf("matrix.grace_cycles must be non-negative, got %d", c.Matrix.GraceCycles)
	}
	if c.Matrix.CycleTimeout <= 0 {
		return fmt.Errorf("matrix.cycle_timeout must be positive, got %s", c.Matrix.CycleTimeout)
	}
	if c.Flow.LowWatermark > c.Flow.HighWatermark {
		return fmt.Errorf("flow.low_watermark %d exceeds high_watermark %d",
			c.Flow.LowWatermark, c.Flow.HighWatermark)
	}
	if c.Flow.ChunkSize <= 0 {
		return fmt.Errorf("flow.chunk_size must be positive, got %d", c.Flow.ChunkSize)
	}
	return nil
}
