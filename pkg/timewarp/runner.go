package timewarp

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// CaptureSource provides the newest camera frame. It is polled once per tick
// and must return a frame the caller may keep.
type CaptureSource interface {
	LatestFrame() (Frame, error)
}

// RenderSink displays the resolved frame.
type RenderSink interface {
	Present(Frame) error
}

// RecorderErrors flags the ongoing failure conditions of a recorder.
type RecorderErrors struct {
	Video bool `json:"video"`
	Audio bool `json:"audio"`
}

// Recorder encodes rendered frames and captured audio. Failures are reported
// through the boolean results and Errors, never by stopping the tick loop.
type Recorder interface {
	AddFrame(Frame) bool
	AddAudio(pcm []int16) bool
	Errors() RecorderErrors
}

// AudioBlock is one block of captured audio, as normalized floats for level
// tracking and as PCM16 for recording.
type AudioBlock struct {
	Samples []float32
	PCM     []int16
}

// RunnerStats counts tick loop outcomes.
type RunnerStats struct {
	Ticks         int64 `json:"ticks"`
	Presented     int64 `json:"presented"`
	CaptureErrors int64 `json:"capture_errors"`
	PresentErrors int64 `json:"present_errors"`
	RecordDrops   int64 `json:"record_drops"`
	AudioBlocks   int64 `json:"audio_blocks"`
}

// Runner drives an Engine at its frame rate.
type Runner struct {
	Engine   *Engine
	Source   CaptureSource
	Sink     RenderSink
	Recorder Recorder          // optional
	Levels   *LevelTracker     // optional, fed from Audio
	Audio    <-chan AudioBlock // optional

	// OnTick, when set, sees every tick result after it is presented.
	OnTick func(TickResult)

	Logger *slog.Logger

	ticks         atomic.Int64
	presented     atomic.Int64
	captureErrors atomic.Int64
	presentErrors atomic.Int64
	recordDrops   atomic.Int64
	audioBlocks   atomic.Int64

	recorderErrs RecorderErrors
}

// Run ticks until ctx is cancelled. It returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var wg sync.WaitGroup
	if r.Audio != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.audioLoop(ctx, logger)
		}()
	}

	interval := time.Duration(float64(time.Second) / r.Engine.FPS())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("tick loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			logger.Info("tick loop stopped", "ticks", r.ticks.Load())
			return ctx.Err()
		case <-ticker.C:
			r.Step(logger)
		}
	}
}

// Step runs exactly one capture/render cycle.
func (r *Runner) Step(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.ticks.Add(1)

	frame, err := r.Source.LatestFrame()
	if err != nil {
		n := r.captureErrors.Add(1)
		if n == 1 || n%100 == 0 {
			logger.Warn("capture failed, skipping tick", "error", err, "count", n)
		}
		return
	}

	res := r.Engine.Tick(frame)
	if !res.Rendered {
		return
	}

	if r.Sink != nil {
		if err := r.Sink.Present(res.Frame); err != nil {
			n := r.presentErrors.Add(1)
			if n == 1 || n%100 == 0 {
				logger.Warn("present failed", "error", err, "count", n)
			}
		} else {
			r.presented.Add(1)
		}
	}

	if r.Recorder != nil {
		if !r.Recorder.AddFrame(res.Frame) {
			r.recordDrops.Add(1)
		}
		r.checkRecorder(logger)
	}

	if r.OnTick != nil {
		r.OnTick(res)
	}
}

func (r *Runner) audioLoop(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-r.Audio:
			if !ok {
				logger.Info("audio stream closed")
				return
			}
			r.audioBlocks.Add(1)
			if r.Levels != nil {
				r.Levels.Observe(block.Samples)
			}
			if r.Recorder != nil && len(block.PCM) > 0 {
				r.Recorder.AddAudio(block.PCM)
			}
		}
	}
}

// checkRecorder logs a warning the first time each error condition appears.
func (r *Runner) checkRecorder(logger *slog.Logger) {
	errs := r.Recorder.Errors()
	if errs.Video && !r.recorderErrs.Video {
		logger.Warn("recorder: video write error, frames are being dropped")
	}
	if errs.Audio && !r.recorderErrs.Audio {
		logger.Warn("recorder: audio write error, audio is being dropped")
	}
	r.recorderErrs = errs
}

// Stats returns the loop counters.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Ticks:         r.ticks.Load(),
		Presented:     r.presented.Load(),
		CaptureErrors: r.captureErrors.Load(),
		PresentErrors: r.presentErrors.Load(),
		RecordDrops:   r.recordDrops.Load(),
		AudioBlocks:   r.audioBlocks.Load(),
	}
}
