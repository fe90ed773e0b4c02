package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-timewarp/internal/config"
	"github.com/teslashibe/go-timewarp/pkg/audioio"
	"github.com/teslashibe/go-timewarp/pkg/camera"
	"github.com/teslashibe/go-timewarp/pkg/control"
	"github.com/teslashibe/go-timewarp/pkg/recorder"
	"github.com/teslashibe/go-timewarp/pkg/settings"
	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

const (
	keyEscape    = 27
	keyQuit      = 'q'
	keyRandomize = 'r'
	keyRealtime  = 'b'
	keyReverse   = 'd'
)

// app owns every component of a running session.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	levels *timewarp.LevelTracker
	engine *timewarp.Engine
	runner *timewarp.Runner

	capture *camera.Capture // nil with the test pattern
	cameras *camera.Manager
	window  *camera.Window // nil when headless
	audio   audioio.Source
	store   settings.Store
	rec     *recorder.FileRecorder
	server  *control.Server

	stop      context.CancelFunc
	closeOnce sync.Once
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = openStore(ctx, cfg.Settings)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	a.levels = timewarp.NewLevelTracker(cfg.Audio.LoudThreshold)
	a.engine = timewarp.NewEngine(cfg.EngineOptions(), a.levels, logger.With("component", "engine"))
	a.restoreSettings(ctx)
	a.engine.SetLoudHook(loudHook(cfg.Audio.LoudAction))

	source, err := a.openCamera()
	if err != nil {
		return nil, err
	}

	var sink timewarp.RenderSink = discardSink{}
	if cfg.Camera.Window {
		a.window = camera.NewWindow(cfg.Camera.WindowName, cfg.Camera.Fullscreen)
		a.window.OnKey = a.handleKey
		sink = a.window
	}

	var blocks <-chan timewarp.AudioBlock
	if cfg.Audio.Enabled {
		if blocks, err = a.openAudio(ctx); err != nil {
			return nil, fmt.Errorf("audio: %w", err)
		}
	}

	var rec timewarp.Recorder
	if cfg.Recorder.Enabled {
		rcfg := recorder.DefaultConfig()
		rcfg.Dir = cfg.Recorder.Dir
		rcfg.Codec = cfg.Recorder.Codec
		rcfg.FPS = cfg.Engine.FPS
		rcfg.SampleRate = cfg.Audio.SampleRate
		if a.rec, err = recorder.New(rcfg, logger); err != nil {
			return nil, err
		}
		rec = a.rec
	}

	a.runner = &timewarp.Runner{
		Engine:   a.engine,
		Source:   source,
		Sink:     sink,
		Recorder: rec,
		Levels:   a.levels,
		Audio:    blocks,
		Logger:   logger.With("component", "runner"),
	}

	if cfg.Control.Enabled {
		a.server = control.NewServer(a.engine, control.Options{
			Listen:     cfg.Control.Listen,
			PreviewFPS: cfg.Control.PreviewFPS,
			Encode: func(f timewarp.Frame) ([]byte, error) {
				return camera.EncodeJPEG(f, cfg.Control.PreviewQuality, cfg.Control.PreviewWidth)
			},
		}, logger)
		if a.cameras != nil {
			a.server.SetCamera(a.cameras)
		}
		a.server.SetStatusExtra(a.runtimeStatus)
		a.runner.OnTick = func(res timewarp.TickResult) {
			a.server.OfferFrame(res.Frame)
		}
	}

	return a, nil
}

// Run blocks in the tick loop on the calling goroutine until ctx is done or
// the window asks to quit.
func (a *app) Run(ctx context.Context) error {
	ctx, a.stop = context.WithCancel(ctx)
	defer a.stop()

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)
	if a.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.server.Run(ctx); err != nil {
				serverErr <- err
				a.stop()
			}
		}()
	}

	a.logger.Info("timewarp running",
		"fps", a.engine.FPS(),
		"params", a.engine.Params(),
		"status", a.engine.Status().String(),
	)
	err := a.runner.Run(ctx)
	wg.Wait()

	select {
	case serr := <-serverErr:
		return fmt.Errorf("control server: %w", serr)
	default:
	}
	a.saveSettings()
	return err
}

// Close releases devices and files. It is safe to call more than once.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		if a.audio != nil {
			a.audio.Close()
		}
		if a.rec != nil {
			if err := a.rec.Close(); err != nil {
				a.logger.Warn("recorder close failed", "error", err)
			}
		}
		if a.window != nil {
			a.window.Close()
		}
		if a.capture != nil {
			a.capture.Close()
		}
		if a.store != nil {
			a.store.Close()
		}
	})
}

func (a *app) openCamera() (timewarp.CaptureSource, error) {
	cc := a.cfg.Camera
	if cc.Pattern {
		a.logger.Info("using test pattern", "width", cc.Width, "height", cc.Height)
		return camera.NewPattern(cc.Width, cc.Height), nil
	}

	cfg := camera.DefaultConfig()
	if cc.Preset != "" {
		preset := camera.GetPreset(cc.Preset)
		if preset == nil {
			return nil, fmt.Errorf("unknown camera preset: %s", cc.Preset)
		}
		cfg = *preset
	} else {
		cfg.Width, cfg.Height, cfg.Framerate = cc.Width, cc.Height, cc.Framerate
	}
	cfg.Device = cc.Device

	buffer := time.Duration(a.engine.Params().BufferMs) * time.Millisecond
	a.logger.Info("frame ring",
		"buffer", buffer,
		"mib", camera.RingBytes(cfg, buffer, a.engine.FPS())>>20,
	)

	capture, err := camera.OpenCapture(cfg, a.logger.With("component", "camera"))
	if err != nil {
		return nil, err
	}
	a.capture = capture
	a.cameras = camera.NewManager(cfg)
	a.cameras.OnConfigChange = capture.Reconfigure
	return capture, nil
}

func (a *app) openAudio(ctx context.Context) (<-chan timewarp.AudioBlock, error) {
	var opts []audioio.MockSourceOption
	if a.cfg.Audio.BurstEvery > 0 {
		opts = append(opts, audioio.WithBursts(a.cfg.Audio.BurstEvery, 0.6))
	}

	src, err := audioio.NewSource(a.cfg.Audio.Config, a.logger.With("component", "audio"), opts...)
	if err != nil {
		return nil, err
	}
	if err := src.Start(ctx); err != nil {
		src.Close()
		return nil, err
	}
	a.audio = src
	return audioio.Blocks(ctx, src), nil
}

func (a *app) restoreSettings(ctx context.Context) {
	p, ok, err := a.store.Load(ctx)
	if err != nil {
		a.logger.Warn("could not load settings, using defaults", "error", err)
		return
	}
	if !ok {
		return
	}
	a.engine.Restore(p)
	a.logger.Info("restored settings", "params", a.engine.Params())
}

func (a *app) saveSettings() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	p := a.engine.Params()
	if err := a.store.Save(ctx, p); err != nil {
		a.logger.Warn("could not save settings", "error", err)
		return
	}
	a.logger.Info("saved settings", "params", p)
}

func (a *app) handleKey(key int) {
	switch key {
	case keyQuit, keyEscape:
		if a.stop != nil {
			a.stop()
		}
	case keyRandomize:
		a.engine.Randomize()
	case keyRealtime:
		a.engine.BackToRealtime()
	case keyReverse:
		a.engine.Set(timewarp.ParamDirection, float64(-a.engine.Params().Direction))
	}
}

func (a *app) runtimeStatus() any {
	st := map[string]any{"runner": a.runner.Stats()}
	if s, ok := a.audio.(audioio.SourceWithStats); ok {
		st["audio"] = s.Stats()
	}
	if a.rec != nil {
		frames, samples := a.rec.Stats()
		st["recorder"] = map[string]any{
			"session": a.rec.ID(),
			"frames":  frames,
			"samples": samples,
			"errors":  a.rec.Errors(),
		}
	}
	return st
}

func openStore(ctx context.Context, cfg config.SettingsConfig) (settings.Store, error) {
	switch cfg.Backend {
	case config.StoreJSON:
		store, err := settings.NewJSONStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreRedis:
		store, err := settings.NewRedisStore(ctx, settings.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "", config.StoreNone:
		return settings.Nop{}, nil
	}
	return nil, errors.New("unknown settings backend: " + cfg.Backend)
}

// loudHook maps the configured loud action to an engine hook.
func loudHook(action string) timewarp.LoudHook {
	switch action {
	case config.LoudReverse:
		return func(_ timewarp.Level, p timewarp.Params) map[string]float64 {
			return map[string]float64{timewarp.ParamDirection: float64(-p.Direction)}
		}
	case config.LoudRealtime:
		return func(_ timewarp.Level, _ timewarp.Params) map[string]float64 {
			return map[string]float64{timewarp.ParamDelay: 0}
		}
	}
	return nil
}

// discardSink renders nowhere, for headless runs.
type discardSink struct{}

func (discardSink) Present(timewarp.Frame) error { return nil }
