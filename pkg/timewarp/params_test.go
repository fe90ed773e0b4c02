package timewarp

import (
	"math/rand/v2"
	"testing"
)

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.MaxRecordMs != 15000 {
		t.Errorf("MaxRecordMs: got %d, want 15000", l.MaxRecordMs)
	}
	if l.MaxDelayMs != 30000 || l.MaxLoopMs != 30000 || l.MaxSeekMs != 30000 {
		t.Errorf("maxima should be twice MaxRecordMs, got %+v", l)
	}
	if l.MaxBufferMs() != 30000 {
		t.Errorf("MaxBufferMs: got %d, want 30000", l.MaxBufferMs())
	}
}

func TestController_SetClamps(t *testing.T) {
	tests := []struct {
		name    string
		param   string
		value   float64
		want    float64
		clamped bool
	}{
		{"delay above max", ParamDelay, 99999, 30000, true},
		{"delay below zero", ParamDelay, -5, 0, true},
		{"delay in range", ParamDelay, 1200, 1200, false},
		{"loop above max", ParamLoop, 40000, 30000, true},
		{"seek below min", ParamSeek, -40000, -30000, true},
		{"seek negative in range", ParamSeek, -3000, -3000, false},
		{"buffer above max", ParamBuffer, 31000, 30000, true},
		{"sync on", ParamSync, 1, 1, false},
		{"sync clamps", ParamSync, 7, 1, true},
		{"direction backward", ParamDirection, -1, -1, false},
		{"direction clamps", ParamDirection, -9, -1, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewController(DefaultParams(), DefaultLimits())
			ch, err := c.Set(tc.param, tc.value)
			if err != nil {
				t.Fatalf("Set: %v", err)
			}
			if ch.New != tc.want {
				t.Errorf("New: got %v, want %v", ch.New, tc.want)
			}
			if ch.Clamped != tc.clamped {
				t.Errorf("Clamped: got %v, want %v", ch.Clamped, tc.clamped)
			}
		})
	}
}

func TestController_SetUnknown(t *testing.T) {
	c := NewController(DefaultParams(), DefaultLimits())
	if _, err := c.Set("speed", 1); err == nil {
		t.Error("expected error for unknown parameter")
	}
	if _, err := c.Normalized("speed"); err == nil {
		t.Error("expected error for unknown parameter")
	}
}

func TestController_BufferChangeFlagsResize(t *testing.T) {
	c := NewController(DefaultParams(), DefaultLimits())

	ch, _ := c.Set(ParamBuffer, 1000)
	if !ch.Resize {
		t.Error("buffer change should flag a resize")
	}

	ch, _ = c.Set(ParamBuffer, 1000)
	if ch.Resize {
		t.Error("unchanged buffer should not flag a resize")
	}

	ch, _ = c.Set(ParamDelay, 1000)
	if ch.Resize {
		t.Error("delay change should not flag a resize")
	}
}

func TestController_SetNormalized(t *testing.T) {
	tests := []struct {
		param string
		v     float64
		want  float64
	}{
		{ParamDelay, 0, 0},
		{ParamDelay, 0.5, 15000},
		{ParamDelay, 1, 30000},
		{ParamDelay, 2, 30000},
		{ParamSeek, 0, -30000},
		{ParamSeek, 0.5, 0},
		{ParamSeek, 1, 30000},
		{ParamLoop, 0.25, 7500},
		{ParamSync, 0.7, 1},
		{ParamSync, 0.2, 0},
		{ParamDirection, 0.1, -1},
		{ParamDirection, 0.9, 1},
	}

	for _, tc := range tests {
		c := NewController(DefaultParams(), DefaultLimits())
		ch, err := c.SetNormalized(tc.param, tc.v)
		if err != nil {
			t.Fatalf("SetNormalized(%s): %v", tc.param, err)
		}
		if ch.New != tc.want {
			t.Errorf("SetNormalized(%s, %v): got %v, want %v", tc.param, tc.v, ch.New, tc.want)
		}

		back, _ := c.Normalized(tc.param)
		again, _ := NewController(c.Params(), DefaultLimits()).SetNormalized(tc.param, back)
		if again.New != ch.New {
			t.Errorf("%s: normalized value %v does not map back to %v", tc.param, back, ch.New)
		}
	}
}

func TestController_Randomize(t *testing.T) {
	c := NewController(DefaultParams(), DefaultLimits())
	rng := rand.New(rand.NewPCG(42, 7))
	l := c.Limits()

	sawNegativeSeek := false
	for i := 0; i < 200; i++ {
		changes := c.Randomize(rng)
		if len(changes) != 3 {
			t.Fatalf("changes: got %d, want 3", len(changes))
		}
		p := c.Params()
		if p.LoopMs < 0 || p.LoopMs > l.MaxLoopMs {
			t.Fatalf("loop out of range: %d", p.LoopMs)
		}
		if p.DelayMs < 0 || p.DelayMs > l.MaxDelayMs {
			t.Fatalf("delay out of range: %d", p.DelayMs)
		}
		if p.SeekMs < -l.MaxSeekMs || p.SeekMs > l.MaxSeekMs {
			t.Fatalf("seek out of range: %d", p.SeekMs)
		}
		if p.SeekMs < 0 {
			sawNegativeSeek = true
		}
		if p.BufferMs != 15000 {
			t.Fatalf("Randomize must not touch buffer, got %d", p.BufferMs)
		}
	}
	if !sawNegativeSeek {
		t.Error("seek should be drawn from the signed range")
	}
}

func TestController_ApplyPreset(t *testing.T) {
	c := NewController(DefaultParams(), DefaultLimits())

	if _, err := c.ApplyPreset(PresetRewind); err != nil {
		t.Fatalf("ApplyPreset: %v", err)
	}
	p := c.Params()
	want := Presets()[PresetRewind]
	if p.LoopMs != want.LoopMs || p.DelayMs != want.DelayMs || p.SeekMs != want.SeekMs {
		t.Errorf("params %+v do not match preset %+v", p, want)
	}

	if _, err := c.ApplyPreset("nope"); err == nil {
		t.Error("expected error for unknown preset")
	}

	names := PresetNames()
	if len(names) != len(Presets()) || names[0] != PresetDelay {
		t.Errorf("PresetNames not sorted: %v", names)
	}
}

func TestController_MapAmplitudeToDelay(t *testing.T) {
	c := NewController(DefaultParams(), DefaultLimits())

	// Silence pulls the delay toward zero by a fifth each step
	if got := c.MapAmplitudeToDelay(1000, 0); got != 800 {
		t.Errorf("silence: got %d, want 800", got)
	}

	// Full amplitude pulls toward MaxUsefulDelayMs
	if got := c.MapAmplitudeToDelay(0, 0.5); got != 1000 {
		t.Errorf("loud: got %d, want 1000", got)
	}

	// Above the ceiling behaves like the ceiling
	if got := c.MapAmplitudeToDelay(0, 3); got != 1000 {
		t.Errorf("clipped: got %d, want 1000", got)
	}

	// Monotonic in amplitude
	prev := -1
	for a := 0.0; a <= 0.5; a += 0.05 {
		got := c.MapAmplitudeToDelay(0, a)
		if got < prev {
			t.Fatalf("not monotonic at amplitude %v: %d < %d", a, got, prev)
		}
		prev = got
	}

	// Converges on the target
	d := 0
	for i := 0; i < 100; i++ {
		d = c.MapAmplitudeToDelay(d, 0.25)
	}
	if d != 2500 {
		t.Errorf("converged delay: got %d, want 2500", d)
	}

	// Small distances still move by at least 1 ms and settle on the target
	tests := []struct {
		current int
		amp     float64
		want    int
	}{
		{2, 0, 1},
		{1, 0, 0},
		{0, 0, 0},
		{4998, 0.5, 4999},
		{4999, 0.5, 5000},
	}
	for _, tc := range tests {
		if got := c.MapAmplitudeToDelay(tc.current, tc.amp); got != tc.want {
			t.Errorf("MapAmplitudeToDelay(%d, %v): got %d, want %d", tc.current, tc.amp, got, tc.want)
		}
	}
}

func TestController_SnapshotRestore(t *testing.T) {
	c := NewController(DefaultParams(), DefaultLimits())
	c.Set(ParamDelay, 2500)
	c.Set(ParamSeek, -4000)
	c.Set(ParamSync, 1)

	snap := c.Snapshot()

	restored := NewController(DefaultParams(), DefaultLimits())
	restored.Restore(snap)
	if restored.Params() != snap {
		t.Errorf("restored %+v, want %+v", restored.Params(), snap)
	}

	// Restore clamps
	bad := snap
	bad.DelayMs = 1 << 20
	bad.BufferMs = -1
	restored.Restore(bad)
	if restored.Params().DelayMs != 30000 {
		t.Errorf("DelayMs not clamped: %d", restored.Params().DelayMs)
	}
	if restored.Params().BufferMs != 0 {
		t.Errorf("BufferMs not clamped: %d", restored.Params().BufferMs)
	}
}

func TestNewController_ClampsInput(t *testing.T) {
	c := NewController(Params{DelayMs: -100, SeekMs: 90000, Direction: 0}, DefaultLimits())
	p := c.Params()
	if p.DelayMs != 0 || p.SeekMs != 30000 || p.Direction != Forward {
		t.Errorf("unexpected params %+v", p)
	}
}

func TestParams_ValuesRoundTrip(t *testing.T) {
	p := Params{DelayMs: 1500, LoopMs: 3000, SeekMs: -250, BufferMs: 9000, Sync: true, Direction: Backward}

	values := p.Values()
	if len(values) != len(ParamNames()) {
		t.Fatalf("Values: got %d entries, want %d", len(values), len(ParamNames()))
	}
	if values[ParamSeek] != -250 || values[ParamSync] != 1 || values[ParamAudioReactive] != 0 {
		t.Errorf("unexpected values %v", values)
	}

	got := DefaultParams().WithValues(values)
	if got != p {
		t.Errorf("WithValues: got %+v, want %+v", got, p)
	}

	partial := p.WithValues(map[string]float64{ParamDelay: 10.6, "bogus": 3})
	if partial.DelayMs != 11 || partial.LoopMs != 3000 {
		t.Errorf("partial WithValues: got %+v", partial)
	}
}
