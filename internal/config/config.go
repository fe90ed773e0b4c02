// Package config loads go-timewarp configuration from YAML, an optional
// .env file and TIMEWARP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-timewarp/pkg/audioio"
	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// Config is the complete application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" json:"log"`
	Engine   EngineConfig   `yaml:"engine" json:"engine"`
	Camera   CameraConfig   `yaml:"camera" json:"camera"`
	Audio    AudioConfig    `yaml:"audio" json:"audio"`
	Control  ControlConfig  `yaml:"control" json:"control"`
	Settings SettingsConfig `yaml:"settings" json:"settings"`
	Recorder RecorderConfig `yaml:"recorder" json:"recorder"`
}

// LogConfig selects log verbosity and format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text or json; empty follows GO_ENV
}

// EngineConfig sizes the frame ring and seeds the runtime parameters.
type EngineConfig struct {
	FPS         float64 `yaml:"fps" json:"fps"`
	MaxRecordMs int     `yaml:"max_record_ms" json:"max_record_ms"`

	// Seed drives randomize; 0 picks one at startup.
	Seed uint64 `yaml:"seed" json:"seed"`

	// Defaults are the parameters used when no saved settings exist.
	Defaults timewarp.Params `yaml:"defaults" json:"defaults"`
}

// CameraConfig selects the capture device and display window.
type CameraConfig struct {
	Device    int    `yaml:"device" json:"device"` // capture index
	Preset    string `yaml:"preset" json:"preset"` // overrides width/height when set
	Width     int    `yaml:"width" json:"width"`
	Height    int    `yaml:"height" json:"height"`
	Framerate int    `yaml:"framerate" json:"framerate"`
	Pattern   bool   `yaml:"pattern" json:"pattern"` // synthetic source instead of a device

	Window     bool   `yaml:"window" json:"window"`
	WindowName string `yaml:"window_name" json:"window_name"`
	Fullscreen bool   `yaml:"fullscreen" json:"fullscreen"`
}

// AudioConfig configures microphone capture.
type AudioConfig struct {
	audioio.Config `yaml:",inline"`

	Enabled       bool    `yaml:"enabled" json:"enabled"`
	LoudThreshold float32 `yaml:"loud_threshold" json:"loud_threshold"`
	LoudAction    string  `yaml:"loud_action" json:"loud_action"` // none, reverse or realtime
	BurstEvery    int     `yaml:"burst_every" json:"burst_every"` // mock backend only
}

// Reactions to a loud audio block.
const (
	LoudNone     = "none"
	LoudReverse  = "reverse"
	LoudRealtime = "realtime"
)

// ControlConfig configures the remote-control HTTP/WebSocket server.
type ControlConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	Listen         string `yaml:"listen" json:"listen"`
	PreviewFPS     int    `yaml:"preview_fps" json:"preview_fps"` // 0 disables the preview feed
	PreviewQuality int    `yaml:"preview_quality" json:"preview_quality"`
	PreviewWidth   int    `yaml:"preview_width" json:"preview_width"`
}

// Settings store backends.
const (
	StoreNone  = "none"
	StoreJSON  = "json"
	StoreRedis = "redis"
)

// SettingsConfig selects where parameter snapshots persist.
type SettingsConfig struct {
	Backend       string `yaml:"backend" json:"backend"`
	Path          string `yaml:"path" json:"path"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisKey      string `yaml:"redis_key" json:"redis_key"`
}

// RecorderConfig controls session recording.
type RecorderConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
	Codec   string `yaml:"codec" json:"codec"` // FourCC, e.g. MJPG
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Engine: EngineConfig{
			FPS:         timewarp.DefaultFPS,
			MaxRecordMs: timewarp.DefaultLimits().MaxRecordMs,
			Defaults:    timewarp.DefaultParams(),
		},
		Camera: CameraConfig{
			Device:     0,
			Width:      1920,
			Height:     1080,
			Framerate:  timewarp.DefaultFPS,
			Window:     true,
			WindowName: "timewarp",
		},
		Audio: AudioConfig{
			Enabled:       true,
			LoudThreshold: timewarp.DefaultLoudThreshold,
			LoudAction:    LoudNone,
			Config:        audioio.DefaultConfig(),
		},
		Control: ControlConfig{
			Enabled:        true,
			Listen:         ":8090",
			PreviewFPS:     10,
			PreviewQuality: 70,
			PreviewWidth:   640,
		},
		Settings: SettingsConfig{
			Backend:  StoreJSON,
			Path:     "settings.json",
			RedisKey: "timewarp:params",
		},
		Recorder: RecorderConfig{
			Dir:   "recordings",
			Codec: "MJPG",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from an .env file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Limits derives the parameter bounds from the engine section.
func (c *Config) Limits() timewarp.Limits {
	return timewarp.LimitsFor(c.Engine.MaxRecordMs)
}

// EngineOptions converts the engine section for timewarp.NewEngine.
func (c *Config) EngineOptions() timewarp.EngineConfig {
	return timewarp.EngineConfig{
		FPS:    c.Engine.FPS,
		Limits: c.Limits(),
		Params: c.Engine.Defaults,
		Seed:   c.Engine.Seed,
	}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.FPS <= 0 || c.Engine.FPS > 240 {
		errs = append(errs, fmt.Errorf("engine.fps must be in (0, 240], got %v", c.Engine.FPS))
	}
	if c.Engine.MaxRecordMs <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_record_ms must be positive, got %d", c.Engine.MaxRecordMs))
	}
	if c.Camera.Device < 0 {
		errs = append(errs, fmt.Errorf("camera.device must not be negative, got %d", c.Camera.Device))
	}
	if c.Audio.Enabled {
		if err := c.Audio.Config.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("audio: %w", err))
		}
		switch c.Audio.LoudAction {
		case "", LoudNone, LoudReverse, LoudRealtime:
		default:
			errs = append(errs, fmt.Errorf("audio.loud_action must be none, reverse or realtime, got %q", c.Audio.LoudAction))
		}
	}
	if c.Control.Enabled && c.Control.Listen == "" {
		errs = append(errs, errors.New("control.listen is required when control is enabled"))
	}
	if c.Control.PreviewQuality < 0 || c.Control.PreviewQuality > 100 {
		errs = append(errs, fmt.Errorf("control.preview_quality must be 0-100, got %d", c.Control.PreviewQuality))
	}

	switch c.Settings.Backend {
	case "", StoreNone:
	case StoreJSON:
		if c.Settings.Path == "" {
			errs = append(errs, errors.New("settings.path is required for the json backend"))
		}
	case StoreRedis:
		if c.Settings.RedisAddr == "" {
			errs = append(errs, errors.New("settings.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("settings.backend must be none, json or redis, got %q", c.Settings.Backend))
	}

	if c.Recorder.Enabled {
		if c.Recorder.Dir == "" {
			errs = append(errs, errors.New("recorder.dir is required when recording"))
		}
		if len(c.Recorder.Codec) != 4 {
			errs = append(errs, fmt.Errorf("recorder.codec must be a FourCC, got %q", c.Recorder.Codec))
		}
	}

	return errors.Join(errs...)
}
