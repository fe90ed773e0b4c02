package timewarp

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
)

// DefaultFPS is the nominal capture and tick rate.
const DefaultFPS = 30

// EngineConfig configures an Engine.
type EngineConfig struct {
	FPS    float64
	Limits Limits
	Params Params

	// Seed drives Randomize. Zero picks a random seed.
	Seed uint64
}

// DefaultEngineConfig returns 30 fps with a 15 s buffer.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		FPS:    DefaultFPS,
		Limits: DefaultLimits(),
		Params: DefaultParams(),
	}
}

// LoudHook reacts to a loud audio block. It runs inside Tick and returns
// parameter writes to apply before the seek scheduler runs.
type LoudHook func(lvl Level, p Params) map[string]float64

// TickResult is the outcome of one engine step.
type TickResult struct {
	Frame         Frame
	Rendered      bool // false only if nothing has ever been captured
	RenderIndex   int
	RecordIndex   int // slot the captured frame was written to
	PlaybackIndex int // playback position after the step
	Fallback      bool
	Seek          *SeekEvent
}

// Status is a point-in-time view of the engine for observability.
type Status struct {
	FPS            float64 `json:"fps"`
	Capacity       int     `json:"capacity"`
	Occupied       int     `json:"occupied"`
	RecordIndex    int     `json:"record_index"`
	PlaybackIndex  int     `json:"playback_index"`
	FramesTraveled int     `json:"frames_traveled"`
	Ticks          uint64  `json:"ticks"`
	Seeks          uint64  `json:"seeks"`
	Fallbacks      uint64  `json:"fallbacks"`
	Params         Params  `json:"params"`
	Level          Level   `json:"level"`
}

// Engine ties the ring, cursors, seek scheduler and parameters together.
//
// Tick is called from a single goroutine. Parameter methods may be called
// from any goroutine; they serialize with Tick on an internal mutex.
type Engine struct {
	mu sync.Mutex

	fps      float64
	ring     *Ring
	record   *Cursor
	playback *Cursor
	seek     *SeekScheduler
	ctrl     *Controller
	levels   *LevelTracker
	rng      *rand.Rand
	loudHook LoudHook

	ticks     uint64
	seeks     uint64
	fallbacks uint64

	subsMu sync.Mutex
	subs   map[chan Change]struct{}

	logger *slog.Logger
}

// NewEngine builds an engine. levels may be nil when no audio is wired.
func NewEngine(cfg EngineConfig, levels *LevelTracker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	ctrl := NewController(cfg.Params, cfg.Limits)
	p := ctrl.Params()

	capacity := MillisecondsToFrames(p.BufferMs, cfg.FPS)
	if capacity < 1 {
		// Store the buffer that holds exactly one frame so Params matches the ring.
		oneFrame := int(math.Ceil(1000 / cfg.FPS))
		logger.Warn("buffer too short for one frame, using a single slot",
			"buffer_ms", p.BufferMs,
			"using_ms", oneFrame,
			"fps", cfg.FPS,
		)
		ctrl.Set(ParamBuffer, float64(oneFrame))
		p = ctrl.Params()
		capacity = 1
	}

	e := &Engine{
		fps:      cfg.FPS,
		ring:     NewRing(capacity),
		record:   NewCursor(capacity),
		playback: NewCursor(capacity),
		seek:     NewSeekScheduler(),
		ctrl:     ctrl,
		levels:   levels,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		subs:     make(map[chan Change]struct{}),
		logger:   logger,
	}
	e.playback.SetDirection(p.Direction)

	logger.Info("allocated frame ring",
		"frames", capacity,
		"buffer_ms", p.BufferMs,
		"fps", cfg.FPS,
	)
	return e
}

// Tick captures frame into the record slot and returns the frame to render.
//
// Capture happens before render so that the warm-up fallback can always show
// the frame captured in this very tick.
func (e *Engine) Tick(frame Frame) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ticks++
	capacity := e.ring.Capacity()
	p := e.ctrl.Params()

	res := TickResult{RecordIndex: e.record.Index()}
	e.ring.Write(res.RecordIndex, frame)

	res.RenderIndex = ResolveDelay(e.playback.Index(), capacity, e.fps, p.DelayMs)
	res.Frame, res.Rendered = e.ring.Read(res.RenderIndex)
	if !res.Rendered {
		// Delay reaches past what has been captured so far.
		res.RenderIndex = res.RecordIndex
		res.Frame, res.Rendered = e.ring.Read(res.RecordIndex)
		res.Fallback = true
		e.fallbacks++
	}

	e.playback.Advance()
	e.record.Advance()

	if e.levels != nil && e.levels.TakeLoud() && e.loudHook != nil {
		for name, v := range e.loudHook(e.levels.Latest(), p) {
			if _, err := e.setLocked(name, v); err != nil {
				e.logger.Warn("loud hook write rejected", "error", err)
			}
		}
		p = e.ctrl.Params()
		capacity = e.ring.Capacity()
	}

	if ev, fired := e.seek.Tick(e.playback, e.record, capacity, e.fps, p.LoopMs, p.SeekMs, p.Sync); fired {
		e.seeks++
		res.Seek = &ev
		e.logger.Debug("seek",
			"traveled", ev.Traveled,
			"from", ev.From,
			"to", ev.To,
			"frames", ev.Frames,
			"sync", p.Sync,
		)
	}

	if p.AudioReactive && e.levels != nil {
		next := e.ctrl.MapAmplitudeToDelay(p.DelayMs, float64(e.levels.Latest().Peak))
		if next != p.DelayMs {
			e.easeDelay(next)
		}
	}

	res.PlaybackIndex = e.playback.Index()
	return res
}

// Set writes one parameter and applies its side effects.
func (e *Engine) Set(name string, value float64) (Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setLocked(name, value)
}

// SetNormalized writes a parameter from a [0,1] control value.
func (e *Engine) SetNormalized(name string, v float64) (Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, err := e.ctrl.SetNormalized(name, v)
	if err != nil {
		return ch, err
	}
	return e.apply(ch), nil
}

// Normalized returns a parameter rescaled into [0,1].
func (e *Engine) Normalized(name string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl.Normalized(name)
}

// NormalizedAll returns every parameter rescaled into [0,1].
func (e *Engine) NormalizedAll() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]float64, len(ParamNames()))
	for _, name := range ParamNames() {
		out[name], _ = e.ctrl.Normalized(name)
	}
	return out
}

// Randomize draws new loop, seek and delay values.
func (e *Engine) Randomize() []Change {
	e.mu.Lock()
	defer e.mu.Unlock()

	changes := e.ctrl.Randomize(e.rng)
	for i := range changes {
		changes[i] = e.apply(changes[i])
	}
	e.logger.Info("randomized parameters", "params", e.ctrl.Params())
	return changes
}

// ApplyPreset sets loop, delay and seek from a named preset.
func (e *Engine) ApplyPreset(name string) ([]Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	changes, err := e.ctrl.ApplyPreset(name)
	if err != nil {
		return nil, err
	}
	for i := range changes {
		changes[i] = e.apply(changes[i])
	}
	e.logger.Info("applied preset", "preset", name)
	return changes, nil
}

// Restore replaces every parameter from a persisted snapshot.
func (e *Engine) Restore(p Params) []Change {
	e.mu.Lock()
	defer e.mu.Unlock()

	changes := e.ctrl.Restore(p)
	for i := range changes {
		changes[i] = e.apply(changes[i])
	}
	return changes
}

// BackToRealtime snaps playback onto the record position and clears delay.
func (e *Engine) BackToRealtime() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.playback.Set(e.record.Index())
	e.seek.Reset()
	e.setLocked(ParamDelay, 0)
}

// SetLoudHook installs the reaction to loud audio blocks. nil disables it.
func (e *Engine) SetLoudHook(h LoudHook) {
	e.mu.Lock()
	e.loudHook = h
	e.mu.Unlock()
}

// Params returns the current parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl.Params()
}

// Limits returns the parameter bounds.
func (e *Engine) Limits() Limits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl.Limits()
}

// FPS returns the tick rate.
func (e *Engine) FPS() float64 {
	return e.fps
}

// Status returns counters and positions.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		FPS:            e.fps,
		Capacity:       e.ring.Capacity(),
		Occupied:       e.ring.Occupied(),
		RecordIndex:    e.record.Index(),
		PlaybackIndex:  e.playback.Index(),
		FramesTraveled: e.seek.FramesTraveled(),
		Ticks:          e.ticks,
		Seeks:          e.seeks,
		Fallbacks:      e.fallbacks,
		Params:         e.ctrl.Params(),
	}
	if e.levels != nil {
		st.Level = e.levels.Latest()
	}
	return st
}

// Subscribe returns a channel receiving every parameter change. Slow
// subscribers miss changes rather than stall the engine. Call the returned
// function to unsubscribe.
func (e *Engine) Subscribe(buffer int) (<-chan Change, func()) {
	ch := make(chan Change, buffer)

	e.subsMu.Lock()
	e.subs[ch] = struct{}{}
	e.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subs, ch)
			e.subsMu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) setLocked(name string, value float64) (Change, error) {
	ch, err := e.ctrl.Set(name, value)
	if err != nil {
		return ch, err
	}
	return e.apply(ch), nil
}

// apply runs the side effects of a change and publishes it.
func (e *Engine) apply(ch Change) Change {
	switch ch.Name {
	case ParamBuffer:
		if ch.Resize {
			ch = e.resize(ch)
		}
	case ParamDirection:
		e.playback.SetDirection(int(ch.New))
	}

	if ch.Clamped {
		e.logger.Debug("parameter clamped", "param", ch.Name, "value", ch.New)
	}
	if ch.Changed() {
		e.publish(ch)
	}
	return ch
}

// easeDelay stores an audio-reactive delay. The change is published only
// when it moves the rendered slot, not on every millisecond of smoothing.
func (e *Engine) easeDelay(ms int) {
	ch, err := e.ctrl.Set(ParamDelay, float64(ms))
	if err != nil {
		e.logger.Warn("audio reactive delay rejected", "delay_ms", ms, "error", err)
		return
	}
	if delaySteps(int(ch.Old), e.fps) != delaySteps(int(ch.New), e.fps) {
		e.publish(ch)
	}
}

func (e *Engine) resize(ch Change) Change {
	capacity := MillisecondsToFrames(int(ch.New), e.fps)
	if !e.ring.Resize(capacity) {
		e.logger.Warn("rejected buffer resize",
			"buffer_ms", int(ch.New),
			"frames", capacity,
			"kept_frames", e.ring.Capacity(),
		)
		e.ctrl.Set(ParamBuffer, ch.Old)
		ch.New = ch.Old
		ch.Resize = false
		return ch
	}

	e.record.SetCapacity(capacity)
	e.playback.SetCapacity(capacity)
	e.seek.Reset()
	e.logger.Info("resized frame ring", "frames", capacity, "buffer_ms", int(ch.New))
	return ch
}

func (e *Engine) publish(ch Change) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for sub := range e.subs {
		select {
		case sub <- ch:
		default:
			// Subscriber is behind, drop the change.
		}
	}
}

// String implements fmt.Stringer for log lines.
func (s Status) String() string {
	return fmt.Sprintf("frames=%d/%d rec=%d play=%d traveled=%d",
		s.Occupied, s.Capacity, s.RecordIndex, s.PlaybackIndex, s.FramesTraveled)
}
