package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/teslashibe/go-timewarp/pkg/audioio"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TIMEWARP_"

// ApplyEnv overrides fields from TIMEWARP_* variables. Unparseable values
// are ignored.
func (c *Config) ApplyEnv() {
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	envFloat("FPS", &c.Engine.FPS)
	envInt("MAX_RECORD_MS", &c.Engine.MaxRecordMs)

	envInt("CAMERA_DEVICE", &c.Camera.Device)
	envString("CAMERA_PRESET", &c.Camera.Preset)
	envBool("CAMERA_PATTERN", &c.Camera.Pattern)
	envBool("FULLSCREEN", &c.Camera.Fullscreen)
	envBool("WINDOW", &c.Camera.Window)

	envBool("AUDIO", &c.Audio.Enabled)
	envInt("AUDIO_DEVICE", &c.Audio.Device)
	envString("AUDIO_LOUD_ACTION", &c.Audio.LoudAction)
	if v, ok := lookup("AUDIO_BACKEND"); ok {
		c.Audio.Backend = audioio.Backend(strings.ToLower(v))
	}

	envBool("CONTROL", &c.Control.Enabled)
	envString("LISTEN", &c.Control.Listen)

	envString("SETTINGS_BACKEND", &c.Settings.Backend)
	envString("SETTINGS_PATH", &c.Settings.Path)
	envString("REDIS_ADDR", &c.Settings.RedisAddr)
	envString("REDIS_PASSWORD", &c.Settings.RedisPassword)
	envInt("REDIS_DB", &c.Settings.RedisDB)

	envBool("RECORD", &c.Recorder.Enabled)
	envString("RECORD_DIR", &c.Recorder.Dir)
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func envString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v, ok := lookup(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v, ok := lookup(name); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(name string, dst *bool) {
	if v, ok := lookup(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
