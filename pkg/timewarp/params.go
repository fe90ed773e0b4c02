package timewarp

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Parameter names accepted by Controller.Set.
const (
	ParamDelay         = "delay"
	ParamLoop          = "loop"
	ParamSeek          = "seek"
	ParamBuffer        = "buffer"
	ParamSync          = "sync"
	ParamAudioReactive = "audio_reactive"
	ParamDirection     = "direction"
)

// ParamNames lists every parameter in a stable order.
func ParamNames() []string {
	return []string{
		ParamDelay,
		ParamLoop,
		ParamSeek,
		ParamBuffer,
		ParamSync,
		ParamAudioReactive,
		ParamDirection,
	}
}

// Params is the full set of runtime parameters. It doubles as the
// persistence snapshot.
type Params struct {
	DelayMs       int  `json:"delay_ms" yaml:"delay_ms"`
	LoopMs        int  `json:"loop_ms" yaml:"loop_ms"`
	SeekMs        int  `json:"seek_ms" yaml:"seek_ms"`
	BufferMs      int  `json:"buffer_ms" yaml:"buffer_ms"`
	Sync          bool `json:"sync" yaml:"sync"`
	AudioReactive bool `json:"audio_reactive" yaml:"audio_reactive"`
	Direction     int  `json:"direction" yaml:"direction"`
}

// DefaultParams returns the startup parameters.
func DefaultParams() Params {
	return Params{
		DelayMs:   0,
		LoopMs:    10000,
		SeekMs:    0,
		BufferMs:  15000,
		Direction: Forward,
	}
}

// Values returns every parameter keyed by name, booleans as 0 or 1.
func (p Params) Values() map[string]float64 {
	out := make(map[string]float64, len(ParamNames()))
	for _, name := range ParamNames() {
		out[name], _ = fieldValue(p, name)
	}
	return out
}

// WithValues returns a copy of p with the named values applied. Unknown
// names are ignored. Values are not clamped.
func (p Params) WithValues(values map[string]float64) Params {
	for name, v := range values {
		switch name {
		case ParamDelay:
			p.DelayMs = int(math.Round(v))
		case ParamLoop:
			p.LoopMs = int(math.Round(v))
		case ParamSeek:
			p.SeekMs = int(math.Round(v))
		case ParamBuffer:
			p.BufferMs = int(math.Round(v))
		case ParamSync:
			p.Sync = v != 0
		case ParamAudioReactive:
			p.AudioReactive = v != 0
		case ParamDirection:
			if v < 0 {
				p.Direction = Backward
			} else {
				p.Direction = Forward
			}
		}
	}
	return p
}

// Limits bounds the parameters.
type Limits struct {
	MaxRecordMs int `json:"max_record_ms" yaml:"max_record_ms"`
	MaxDelayMs  int `json:"max_delay_ms" yaml:"max_delay_ms"`
	MaxLoopMs   int `json:"max_loop_ms" yaml:"max_loop_ms"`
	MaxSeekMs   int `json:"max_seek_ms" yaml:"max_seek_ms"`

	// MaxUsefulDelayMs is the delay reached at full amplitude in
	// audio-reactive mode.
	MaxUsefulDelayMs int `json:"max_useful_delay_ms" yaml:"max_useful_delay_ms"`

	// AmplitudeCeiling is the amplitude treated as "loud" by the
	// amplitude-to-delay mapping. Input range is [0, AmplitudeCeiling].
	AmplitudeCeiling float64 `json:"amplitude_ceiling" yaml:"amplitude_ceiling"`
}

// DefaultLimits derives every maximum from a 15 s record ceiling.
func DefaultLimits() Limits {
	return LimitsFor(15000)
}

// LimitsFor derives delay, loop and seek maxima as twice maxRecordMs.
func LimitsFor(maxRecordMs int) Limits {
	return Limits{
		MaxRecordMs:      maxRecordMs,
		MaxDelayMs:       maxRecordMs * 2,
		MaxLoopMs:        maxRecordMs * 2,
		MaxSeekMs:        maxRecordMs * 2,
		MaxUsefulDelayMs: 5000,
		AmplitudeCeiling: 0.5,
	}
}

// MaxBufferMs is the upper bound of the buffer parameter.
func (l Limits) MaxBufferMs() int {
	return l.MaxRecordMs * 2
}

// Change is emitted for every parameter write.
type Change struct {
	Name    string  `json:"name"`
	Old     float64 `json:"old"`
	New     float64 `json:"new"`
	Clamped bool    `json:"clamped"` // requested value was out of range
	Resize  bool    `json:"resize"`  // buffer duration changed
}

// Changed reports whether the write altered the stored value.
func (c Change) Changed() bool {
	return c.Old != c.New
}

// Preset is a named (loop, delay, seek) combination.
type Preset struct {
	LoopMs  int `json:"loop_ms"`
	DelayMs int `json:"delay_ms"`
	SeekMs  int `json:"seek_ms"`
}

// Preset names.
const (
	PresetRealtime = "realtime"
	PresetDelay    = "delay"
	PresetRewind   = "rewind"
	PresetStutter  = "stutter"
	PresetEcho     = "echo"
)

// Presets returns the built-in presets.
func Presets() map[string]Preset {
	return map[string]Preset{
		PresetRealtime: {LoopMs: 10000, DelayMs: 0, SeekMs: 0},
		PresetDelay:    {LoopMs: 10000, DelayMs: 2000, SeekMs: 0},
		PresetRewind:   {LoopMs: 3000, DelayMs: 0, SeekMs: -6000},
		PresetStutter:  {LoopMs: 250, DelayMs: 0, SeekMs: -250},
		PresetEcho:     {LoopMs: 6000, DelayMs: 1000, SeekMs: -3000},
	}
}

// PresetNames returns the preset names sorted alphabetically.
func PresetNames() []string {
	presets := Presets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Controller owns the bounded runtime parameters.
//
// Controller is not safe for concurrent use; Engine serializes access.
type Controller struct {
	params Params
	limits Limits
}

// NewController returns a controller holding p clamped to limits.
func NewController(p Params, limits Limits) *Controller {
	c := &Controller{limits: limits}
	c.params = c.clampAll(p)
	return c
}

// Params returns the current parameters.
func (c *Controller) Params() Params {
	return c.params
}

// Limits returns the configured bounds.
func (c *Controller) Limits() Limits {
	return c.limits
}

// Snapshot returns a copy suitable for persistence.
func (c *Controller) Snapshot() Params {
	return c.params
}

// Restore replaces every parameter from a snapshot, clamping each field.
func (c *Controller) Restore(p Params) []Change {
	var changes []Change
	for _, name := range ParamNames() {
		v, _ := fieldValue(p, name)
		ch, _ := c.Set(name, v)
		changes = append(changes, ch)
	}
	return changes
}

// Set writes one parameter, clamping it into its legal range.
func (c *Controller) Set(name string, value float64) (Change, error) {
	old, ok := fieldValue(c.params, name)
	if !ok {
		return Change{}, fmt.Errorf("unknown parameter: %s", name)
	}
	if math.IsNaN(value) {
		value = old
	}

	lo, hi := c.Range(name)
	clamped := clamp(value, lo, hi)

	ch := Change{Name: name, Old: old, Clamped: clamped != value}

	switch name {
	case ParamDelay:
		c.params.DelayMs = int(clamped)
	case ParamLoop:
		c.params.LoopMs = int(clamped)
	case ParamSeek:
		c.params.SeekMs = int(clamped)
	case ParamBuffer:
		c.params.BufferMs = int(clamped)
	case ParamSync:
		c.params.Sync = clamped != 0
	case ParamAudioReactive:
		c.params.AudioReactive = clamped != 0
	case ParamDirection:
		if clamped < 0 {
			c.params.Direction = Backward
		} else {
			c.params.Direction = Forward
		}
	}

	ch.New, _ = fieldValue(c.params, name)
	ch.Resize = name == ParamBuffer && ch.Changed()
	return ch, nil
}

// Range returns the inclusive bounds of a parameter.
func (c *Controller) Range(name string) (lo, hi float64) {
	switch name {
	case ParamDelay:
		return 0, float64(c.limits.MaxDelayMs)
	case ParamLoop:
		return 0, float64(c.limits.MaxLoopMs)
	case ParamSeek:
		return -float64(c.limits.MaxSeekMs), float64(c.limits.MaxSeekMs)
	case ParamBuffer:
		return 0, float64(c.limits.MaxBufferMs())
	case ParamDirection:
		return Backward, Forward
	default:
		return 0, 1
	}
}

// SetNormalized rescales v from [0,1] into the parameter's range and sets it.
// Boolean parameters switch on at 0.5 and above; direction is backward below 0.5.
func (c *Controller) SetNormalized(name string, v float64) (Change, error) {
	v = clamp(v, 0, 1)
	switch name {
	case ParamSync, ParamAudioReactive:
		if v >= 0.5 {
			return c.Set(name, 1)
		}
		return c.Set(name, 0)
	case ParamDirection:
		if v >= 0.5 {
			return c.Set(name, Forward)
		}
		return c.Set(name, Backward)
	}
	lo, hi := c.Range(name)
	return c.Set(name, math.Round(lo+v*(hi-lo)))
}

// Normalized returns the parameter value rescaled into [0,1].
func (c *Controller) Normalized(name string) (float64, error) {
	v, ok := fieldValue(c.params, name)
	if !ok {
		return 0, fmt.Errorf("unknown parameter: %s", name)
	}
	lo, hi := c.Range(name)
	if hi <= lo {
		return 0, nil
	}
	return clamp((v-lo)/(hi-lo), 0, 1), nil
}

// Randomize draws loop, seek and delay independently and uniformly from
// their legal ranges.
func (c *Controller) Randomize(rng *rand.Rand) []Change {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	draw := func(name string) float64 {
		lo, hi := c.Range(name)
		return lo + float64(rng.IntN(int(hi-lo)+1))
	}

	loop, _ := c.Set(ParamLoop, draw(ParamLoop))
	seek, _ := c.Set(ParamSeek, draw(ParamSeek))
	delay, _ := c.Set(ParamDelay, draw(ParamDelay))
	return []Change{loop, seek, delay}
}

// ApplyPreset sets loop, delay and seek from a named preset.
func (c *Controller) ApplyPreset(name string) ([]Change, error) {
	p, ok := Presets()[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset: %s", name)
	}
	loop, _ := c.Set(ParamLoop, float64(p.LoopMs))
	delay, _ := c.Set(ParamDelay, float64(p.DelayMs))
	seek, _ := c.Set(ParamSeek, float64(p.SeekMs))
	return []Change{loop, delay, seek}, nil
}

// MapAmplitudeToDelay moves current one fifth of the way toward the delay
// that amplitude maps to. Silence maps to no delay and AmplitudeCeiling or
// louder maps to MaxUsefulDelayMs. Every call moves at least 1 ms until the
// target is reached, so the delay settles on it exactly.
func (c *Controller) MapAmplitudeToDelay(current int, amplitude float64) int {
	ceiling := c.limits.AmplitudeCeiling
	if ceiling <= 0 {
		ceiling = 1
	}
	maxDelay := c.limits.MaxUsefulDelayMs
	if maxDelay > c.limits.MaxDelayMs {
		maxDelay = c.limits.MaxDelayMs
	}

	target := clamp(math.Abs(amplitude), 0, ceiling) / ceiling * float64(maxDelay)
	diff := target - float64(current)
	next := float64(current) + math.Round(diff/5)
	switch {
	case math.Abs(diff) < 1:
		next = math.Round(target)
	case next == float64(current):
		next += math.Copysign(1, diff)
	}
	return int(clamp(next, 0, float64(c.limits.MaxDelayMs)))
}

func (c *Controller) clampAll(p Params) Params {
	out := p
	out.DelayMs = int(clamp(float64(p.DelayMs), 0, float64(c.limits.MaxDelayMs)))
	out.LoopMs = int(clamp(float64(p.LoopMs), 0, float64(c.limits.MaxLoopMs)))
	out.SeekMs = int(clamp(float64(p.SeekMs), -float64(c.limits.MaxSeekMs), float64(c.limits.MaxSeekMs)))
	out.BufferMs = int(clamp(float64(p.BufferMs), 0, float64(c.limits.MaxBufferMs())))
	if p.Direction < 0 {
		out.Direction = Backward
	} else {
		out.Direction = Forward
	}
	return out
}

func fieldValue(p Params, name string) (float64, bool) {
	switch name {
	case ParamDelay:
		return float64(p.DelayMs), true
	case ParamLoop:
		return float64(p.LoopMs), true
	case ParamSeek:
		return float64(p.SeekMs), true
	case ParamBuffer:
		return float64(p.BufferMs), true
	case ParamSync:
		return boolValue(p.Sync), true
	case ParamAudioReactive:
		return boolValue(p.AudioReactive), true
	case ParamDirection:
		if p.Direction < 0 {
			return Backward, true
		}
		return Forward, true
	}
	return 0, false
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
