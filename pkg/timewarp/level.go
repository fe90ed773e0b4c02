package timewarp

import (
	"math"
	"sync/atomic"
)

// DefaultLoudThreshold is the sample value above which a block counts as loud.
const DefaultLoudThreshold = 0.35

// Level summarizes one audio block. Samples are normalized to [-1, 1].
type Level struct {
	Min  float32 `json:"min"`
	Max  float32 `json:"max"`
	Peak float32 `json:"peak"` // max(|Min|, |Max|)
	RMS  float64 `json:"rms"`
	Loud bool    `json:"loud"`
}

// LevelTracker reduces audio blocks to loudness statistics.
//
// Observe is meant to run on the audio goroutine and never blocks: the
// latest Level is published through an atomic pointer and the loud flag is
// a sticky atomic bool read at tick boundaries.
type LevelTracker struct {
	threshold float32

	latest atomic.Pointer[Level]
	loud   atomic.Bool

	onLoud atomic.Pointer[func(Level)]
}

// NewLevelTracker returns a tracker using threshold for loud detection.
// A non-positive threshold selects DefaultLoudThreshold.
func NewLevelTracker(threshold float32) *LevelTracker {
	if threshold <= 0 {
		threshold = DefaultLoudThreshold
	}
	t := &LevelTracker{threshold: threshold}
	t.latest.Store(&Level{})
	return t
}

// Observe reduces one block and publishes the result.
func (t *LevelTracker) Observe(samples []float32) Level {
	lvl := Measure(samples, t.threshold)
	t.latest.Store(&lvl)

	if lvl.Loud {
		t.loud.Store(true)

		if hook := t.onLoud.Load(); hook != nil {
			(*hook)(lvl)
		}
	}
	return lvl
}

// Latest returns the most recently observed level.
func (t *LevelTracker) Latest() Level {
	return *t.latest.Load()
}

// TakeLoud reports whether a loud block was observed since the last call
// and clears the flag.
func (t *LevelTracker) TakeLoud() bool {
	return t.loud.Swap(false)
}

// OnLoud registers a function called from Observe for every loud block.
// The hook runs on the audio goroutine and must not block.
func (t *LevelTracker) OnLoud(fn func(Level)) {
	if fn == nil {
		t.onLoud.Store(nil)
		return
	}
	t.onLoud.Store(&fn)
}

// Measure computes the Level of a block without publishing it.
func Measure(samples []float32, threshold float32) Level {
	if len(samples) == 0 {
		return Level{}
	}

	lvl := Level{Min: samples[0], Max: samples[0]}
	var sum float64
	for _, s := range samples {
		if s < lvl.Min {
			lvl.Min = s
		}
		if s > lvl.Max {
			lvl.Max = s
		}
		if s > threshold {
			lvl.Loud = true
		}
		sum += float64(s) * float64(s)
	}

	lvl.Peak = lvl.Max
	if -lvl.Min > lvl.Peak {
		lvl.Peak = -lvl.Min
	}
	lvl.RMS = math.Sqrt(sum / float64(len(samples)))
	return lvl
}
