// timewarp - live video time manipulation: delay, loop and seek over a
// rolling camera buffer, driven by remote control and microphone level.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/teslashibe/go-timewarp/internal/config"
	"github.com/teslashibe/go-timewarp/internal/log"
	"github.com/teslashibe/go-timewarp/pkg/audioio"
	"github.com/teslashibe/go-timewarp/pkg/camera"
)

func init() {
	// OpenCV's HighGUI must run on the main thread.
	runtime.LockOSThread()
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, log.L())
	if err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("runtime error", "error", err)
		a.Close()
		os.Exit(1)
	}
}

// parseFlags layers configuration: defaults, YAML file, .env file and
// TIMEWARP_* variables, then explicitly set flags.
func parseFlags() (config.Config, error) {
	def := config.DefaultConfig()

	configPath := flag.String("config", "", "YAML configuration file")
	envFile := flag.String("env-file", ".env", "Environment file loaded before TIMEWARP_* overrides")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	fps := flag.Float64("fps", def.Engine.FPS, "Tick and capture rate")
	maxRecord := flag.Int("max-record", def.Engine.MaxRecordMs, "Longest buffer in milliseconds; delay, loop and seek go up to twice this")
	device := flag.Int("camera", def.Camera.Device, "Camera device index")
	preset := flag.String("preset", "", "Camera preset: "+strings.Join(camera.PresetNames(), ", "))
	pattern := flag.Bool("pattern", false, "Use a synthetic test pattern instead of a camera")
	fullscreen := flag.Bool("fullscreen", false, "Start the output window fullscreen")
	headless := flag.Bool("headless", false, "Do not open an output window")
	noAudio := flag.Bool("no-audio", false, "Disable microphone capture")
	backend := flag.String("audio-backend", string(def.Audio.Backend), "Audio backend: auto, alsa, mock")
	audioDevice := flag.Int("audio-device", def.Audio.Device, "Audio input device index (-1 for the default device)")
	loudAction := flag.String("loud-action", def.Audio.LoudAction, "Reaction to loud audio: none, reverse, realtime")
	listen := flag.String("listen", def.Control.Listen, "Remote control listen address")
	noControl := flag.Bool("no-control", false, "Disable the remote control server")
	store := flag.String("settings", def.Settings.Backend, "Settings store: none, json, redis")
	record := flag.Bool("record", false, "Record the output to recorder.dir")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		return def, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug":
			if *debug {
				cfg.Log.Level = "debug"
			}
		case "fps":
			cfg.Engine.FPS = *fps
		case "max-record":
			cfg.Engine.MaxRecordMs = *maxRecord
		case "camera":
			cfg.Camera.Device = *device
		case "preset":
			cfg.Camera.Preset = *preset
		case "pattern":
			cfg.Camera.Pattern = *pattern
		case "fullscreen":
			cfg.Camera.Fullscreen = *fullscreen
		case "headless":
			cfg.Camera.Window = !*headless
		case "no-audio":
			cfg.Audio.Enabled = !*noAudio
		case "audio-backend":
			cfg.Audio.Backend = audioio.Backend(strings.ToLower(*backend))
		case "audio-device":
			cfg.Audio.Device = *audioDevice
		case "loud-action":
			cfg.Audio.LoudAction = *loudAction
		case "listen":
			cfg.Control.Listen = *listen
		case "no-control":
			cfg.Control.Enabled = !*noControl
		case "settings":
			cfg.Settings.Backend = *store
		case "record":
			cfg.Recorder.Enabled = *record
		}
	})

	return cfg, cfg.Validate()
}
