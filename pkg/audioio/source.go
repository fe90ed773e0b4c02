package audioio

import (
	"context"
	"io"
)

// AudioChunk is one block of interleaved PCM16 samples as delivered by a
// backend.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// FromBytes fills the chunk from little-endian PCM16 bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = BytesToSamples(data)
}

// Duration is the chunk's length in seconds.
func (c *AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Mono returns the chunk down-mixed to one channel.
func (c *AudioChunk) Mono() []int16 {
	if c.Channels == 2 {
		return StereoToMono(c.Samples)
	}
	return c.Samples
}

// Float32 returns the mono samples scaled to [-1, 1].
func (c *AudioChunk) Float32() []float32 {
	return SamplesToFloat32(c.Mono())
}

// Source captures audio from an input device.
type Source interface {
	// Start begins capture. Chunks arrive on Stream until Stop.
	Start(ctx context.Context) error

	// Stop halts capture and closes the stream. Safe to call repeatedly.
	Stop() error

	// Stream returns the channel of the current capture run.
	Stream() <-chan AudioChunk

	// Name returns the backend name ("alsa", "mock").
	Name() string

	// Close stops capture for good. A closed source cannot be restarted.
	io.Closer
}

// SourceStats counts delivered and dropped chunks.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"` // chunks dropped on a full queue
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
