package timewarp

// NextInRange moves current by steps inside the inclusive range [start, end],
// wrapping around at either bound.
//
// steps is first reduced modulo the range width, so a single correction is
// enough to bring the result back into range. The result is periodic in steps
// with period end-start+1.
func NextInRange(current, steps, start, end int) int {
	width := end - start + 1
	if width < 0 {
		width = -width
	}
	if width == 0 {
		return current
	}

	steps %= width

	next := current + steps
	if next < start {
		next += width
	} else if next > end {
		next -= width
	}
	return next
}

// SeekEvent describes one fired seek.
type SeekEvent struct {
	From     int // playback index before the jump
	To       int // playback index after the jump
	Frames   int // signed seek distance in frames
	Traveled int // frames played since the previous seek
}

// SeekScheduler fires a playback jump every time a loop interval elapses.
//
// framesTraveled lives on the struct and survives across ticks; it is reset
// only by construction, by a fired seek or by Reset.
type SeekScheduler struct {
	framesTraveled int
}

// NewSeekScheduler returns a scheduler with no elapsed frames.
func NewSeekScheduler() *SeekScheduler {
	return &SeekScheduler{}
}

// FramesTraveled returns the number of ticks since the last seek.
func (s *SeekScheduler) FramesTraveled() int {
	return s.framesTraveled
}

// Reset clears the elapsed frame count.
func (s *SeekScheduler) Reset() {
	s.framesTraveled = 0
}

// Tick counts one frame and, once loopMs worth of frames have elapsed, jumps
// playback by seekMs worth of frames. With sync set, record is re-anchored
// to the new playback position.
//
// loopMs = 0 fires on every tick.
func (s *SeekScheduler) Tick(playback, record *Cursor, capacity int, fps float64, loopMs, seekMs int, sync bool) (SeekEvent, bool) {
	s.framesTraveled++

	loopFrames := MillisecondsToFrames(loopMs, fps)
	if s.framesTraveled < loopFrames {
		return SeekEvent{}, false
	}

	seekFrames := MillisecondsToFrames(seekMs, fps)
	ev := SeekEvent{
		From:     playback.Index(),
		Frames:   seekFrames,
		Traveled: s.framesTraveled,
	}
	ev.To = NextInRange(ev.From, seekFrames, 0, capacity-1)

	s.framesTraveled = 0
	playback.Set(ev.To)
	if sync {
		record.Set(ev.To)
	}
	return ev, true
}
