// Package audioio provides microphone capture for the time-warp engine.
//
// This package supports two backends:
//   - ALSA (Linux) - captures through the arecord utility
//   - Mock - CI/Testing without hardware
//
// The backend is selected automatically based on platform, or can be
// explicitly specified via configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendALSA uses Linux ALSA for audio capture.
	BackendALSA Backend = "alsa"
	// BackendMock uses a synthetic signal for testing.
	BackendMock Backend = "mock"
)

// DefaultDevice selects the system default input device.
const DefaultDevice = -1

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (selects best available for platform)
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 44100
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferSamples is the number of sample frames per block.
	// Default: 512
	BufferSamples int `yaml:"buffer_samples" json:"buffer_samples"`

	// Device is the input device index. DefaultDevice (-1) uses the
	// system default. On ALSA index N selects card "hw:N,0".
	Device int `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    44100,
		Channels:      1, // Mono
		BufferSamples: 512,
		Device:        DefaultDevice,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendAuto, BackendALSA, BackendMock:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 || c.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.BufferSamples <= 0 {
		return fmt.Errorf("buffer_samples must be positive, got %d", c.BufferSamples)
	}
	if c.Device < DefaultDevice {
		return fmt.Errorf("device must be -1 (default) or an index, got %d", c.Device)
	}
	return nil
}

// BufferDuration returns the wall-clock length of one block.
func (c *Config) BufferDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.BufferSamples) / float64(c.SampleRate) * float64(time.Second))
}

// BufferBytes returns the size of a block in bytes (int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSamples * c.Channels * 2 // 2 bytes per int16 sample
}

// ALSADevice returns the arecord device name for the configured index.
func (c *Config) ALSADevice() string {
	if c.Device < 0 {
		return "default"
	}
	return fmt.Sprintf("hw:%d,0", c.Device)
}
