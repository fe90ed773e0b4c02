// Package camera captures and displays frames for the time-warp engine.
// Capture, display and JPEG encoding go through OpenCV (gocv). Config and
// Manager let the control API reopen the device at runtime.
package camera

import (
	"fmt"
	"time"
)

// Config selects a capture device and the mode requested from it.
type Config struct {
	Device    int `json:"device"`    // capture index
	Width     int `json:"width"`     // pixels
	Height    int `json:"height"`    // pixels
	Framerate int `json:"framerate"` // requested FPS
}

// Capture limits.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns device 0 at 1080p30.
func DefaultConfig() Config {
	return Config{Device: 0, Width: 1920, Height: 1080, Framerate: 30}
}

// LegacyConfig returns a 640x480 configuration for cameras or machines
// that drop frames at higher resolutions.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 640, 480
	return cfg
}

// Validate returns one message per out-of-range field, or nil.
func (c *Config) Validate() []string {
	var errs []string
	if c.Device < 0 {
		errs = append(errs, "device must not be negative")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errs = append(errs, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errs = append(errs, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errs = append(errs, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	return errs
}

// FrameBytes returns the memory one BGR frame of cfg occupies.
func FrameBytes(cfg Config) int {
	return cfg.Width * cfg.Height * 3
}

// RingBytes estimates the memory a full frame ring spanning buffer needs
// at fps.
func RingBytes(cfg Config, buffer time.Duration, fps float64) int64 {
	frames := int64(buffer.Seconds() * fps)
	return frames * int64(FrameBytes(cfg))
}
