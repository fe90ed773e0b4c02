package timewarp

// Ring is a fixed-capacity circular store of frames.
//
// Every slot is either empty (never written since the last resize) or holds
// exactly one frame. A single owner writes; readers get the stored value,
// whose pixels stay valid because written frames are never mutated.
type Ring struct {
	slots    []Frame
	written  []bool
	occupied int
}

// NewRing allocates a ring with capacity empty slots.
// A capacity below 1 is coerced to 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		slots:   make([]Frame, capacity),
		written: make([]bool, capacity),
	}
}

// Capacity returns the number of slots.
func (r *Ring) Capacity() int {
	return len(r.slots)
}

// Occupied returns how many slots hold a frame.
func (r *Ring) Occupied() int {
	return r.occupied
}

// Write replaces the content of slot index. The previous frame is released.
// Returns false if index is out of range.
func (r *Ring) Write(index int, f Frame) bool {
	if index < 0 || index >= len(r.slots) {
		return false
	}
	if !r.written[index] {
		r.written[index] = true
		r.occupied++
	}
	r.slots[index] = f
	return true
}

// Read returns the frame stored at index, or false if the slot was never
// written or index is out of range.
func (r *Ring) Read(index int) (Frame, bool) {
	if index < 0 || index >= len(r.slots) || !r.written[index] {
		return Frame{}, false
	}
	return r.slots[index], true
}

// Resize discards every slot and reallocates capacity empty slots.
// A non-positive capacity is rejected and the current contents are kept.
func (r *Ring) Resize(capacity int) bool {
	if capacity <= 0 {
		return false
	}
	r.slots = make([]Frame, capacity)
	r.written = make([]bool, capacity)
	r.occupied = 0
	return true
}
