// Package timewarp implements the time-manipulation core: a circular frame
// store, record/playback cursors, delay resolution and the periodic seek
// state machine, plus the runtime parameters that drive them.
//
// The core never blocks and never touches devices. Capture sources, render
// sinks and recorders are supplied by the caller (see Runner).
package timewarp

import "time"

// Frame is one captured pixel grid.
//
// Pix MUST NOT be modified after the frame is handed to a Ring. The ring and
// every reader share the same backing array.
type Frame struct {
	Width    int
	Height   int
	Channels int // bytes per pixel (3 for BGR)
	Pix      []byte

	// Captured is the time the source produced the frame.
	Captured time.Time
}

// Empty reports whether the frame carries no pixel data.
func (f Frame) Empty() bool {
	return len(f.Pix) == 0
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	out := f
	if f.Pix != nil {
		out.Pix = make([]byte, len(f.Pix))
		copy(out.Pix, f.Pix)
	}
	return out
}

// Stride returns the number of bytes per row.
func (f Frame) Stride() int {
	return f.Width * f.Channels
}
