package audioio

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// MockSource synthesizes audio at the configured block rate. It is silent
// unless a tone or bursts are configured, and stands in for a microphone in
// tests and on machines without one.
type MockSource struct {
	cfg    Config
	logger *slog.Logger
	queue  chunkQueue

	genMu sync.Mutex
	tone  tone
	burst burst
	n     int // blocks generated
}

type tone struct {
	freq  float64 // Hz; 0 is silence
	level float64 // 0..1
	phase float64 // samples into the current second
}

type burst struct {
	every int // every nth block is loud; 0 disables
	level float64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave plays a continuous tone.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.tone.freq = frequency
		m.tone.level = amplitude
	}
}

// WithBursts makes every nth block loud, which drives the loud-event path
// without a microphone. Blocks between bursts are silent unless a tone is
// also configured.
func WithBursts(every int, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.burst = burst{every: every, level: amplitude}
	}
}

// NewMockSource returns a stopped synthetic source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins generating one block per buffer period.
func (m *MockSource) Start(ctx context.Context) error {
	ch, err := m.queue.open()
	if err != nil || ch == nil {
		return err
	}

	go m.run(ctx, ch)

	m.logger.Info("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"tone_hz", m.tone.freq,
		"burst_every", m.burst.every,
	)
	return nil
}

func (m *MockSource) run(ctx context.Context, ch chan AudioChunk) {
	ticker := time.NewTicker(m.cfg.BufferDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-ticker.C:
			if !m.queue.push(ch, m.generateChunk()) {
				return
			}
		}
	}
}

func (m *MockSource) generateChunk() AudioChunk {
	m.genMu.Lock()
	defer m.genMu.Unlock()

	m.n++
	level := m.tone.level
	if m.burst.every > 0 && m.n%m.burst.every == 0 {
		level = m.burst.level
	}
	freq := m.tone.freq
	if freq == 0 && level != m.tone.level {
		freq = 440
	}

	frames, channels := m.cfg.BufferSamples, m.cfg.Channels
	chunk := AudioChunk{
		Samples:    make([]int16, frames*channels),
		SampleRate: m.cfg.SampleRate,
		Channels:   channels,
	}
	if freq <= 0 || level <= 0 {
		return chunk
	}

	rate := float64(m.cfg.SampleRate)
	for i := 0; i < frames; i++ {
		v := int16(level * math.Sin(2*math.Pi*freq*m.tone.phase/rate) * math.MaxInt16)
		for c := 0; c < channels; c++ {
			chunk.Samples[i*channels+c] = v
		}
		if m.tone.phase++; m.tone.phase >= rate {
			m.tone.phase = 0
		}
	}
	return chunk
}

// Stop halts generation and closes the stream.
func (m *MockSource) Stop() error {
	if m.queue.shutdown() {
		m.logger.Info("mock audio source stopped")
	}
	return nil
}

// Stream returns the current block channel.
func (m *MockSource) Stream() <-chan AudioChunk { return m.queue.stream() }

// Name returns "mock".
func (m *MockSource) Name() string { return string(BackendMock) }

// Close stops the source for good.
func (m *MockSource) Close() error {
	m.queue.seal()
	return nil
}

// Stats returns delivery counters.
func (m *MockSource) Stats() SourceStats { return m.queue.stats(m.Name()) }

var _ SourceWithStats = (*MockSource)(nil)
