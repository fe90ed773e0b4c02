package timewarp

import "math"

// stepEpsilon absorbs float error when a delay lands exactly on a frame boundary.
const stepEpsilon = 1e-9

// ResolveDelay returns the slot that lags current by delayMs.
//
// The delay is quantized to whole frames: the index steps back one slot for
// every started frame period (1000/fps ms), wrapping from 0 to capacity-1.
// A partial period counts as a full step, so fractional delays round toward
// more delay. delayMs <= 0 returns current unchanged.
func ResolveDelay(current, capacity int, fps float64, delayMs int) int {
	if delayMs <= 0 || capacity < 1 || fps <= 0 {
		return current
	}

	steps := delaySteps(delayMs, fps)
	idx := (current - steps) % capacity
	if idx < 0 {
		idx += capacity
	}
	return idx
}

// delaySteps is the number of slots ResolveDelay steps back for delayMs.
func delaySteps(delayMs int, fps float64) int {
	if delayMs <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Ceil(float64(delayMs)*fps/1000 - stepEpsilon))
}

// MillisecondsToFrames converts a duration to a whole number of frames,
// rounding toward negative infinity.
func MillisecondsToFrames(ms int, fps float64) int {
	return int(math.Floor(float64(ms)*fps/1000 + stepEpsilon))
}

// FramesToMilliseconds is the inverse of MillisecondsToFrames for display.
func FramesToMilliseconds(frames int, fps float64) int {
	if fps <= 0 {
		return 0
	}
	return int(math.Round(float64(frames) * 1000 / fps))
}
