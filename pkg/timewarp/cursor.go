package timewarp

// Direction of cursor travel.
const (
	Forward  = 1
	Backward = -1
)

// Cursor is a position in [0, capacity) that advances with wraparound.
type Cursor struct {
	index     int
	capacity  int
	direction int
}

// NewCursor returns a forward cursor at index 0.
func NewCursor(capacity int) *Cursor {
	if capacity < 1 {
		capacity = 1
	}
	return &Cursor{capacity: capacity, direction: Forward}
}

// Index returns the current position.
func (c *Cursor) Index() int {
	return c.index
}

// Direction returns +1 or -1.
func (c *Cursor) Direction() int {
	return c.direction
}

// Advance moves one step in the current direction, wrapping at the bounds.
func (c *Cursor) Advance() {
	c.index += c.direction
	if c.index >= c.capacity {
		c.index = 0
	} else if c.index < 0 {
		c.index = c.capacity - 1
	}
}

// SetDirection changes the direction of future advances without moving.
// Only the sign of d is used; zero is ignored.
func (c *Cursor) SetDirection(d int) {
	switch {
	case d > 0:
		c.direction = Forward
	case d < 0:
		c.direction = Backward
	}
}

// Set moves the cursor to index, wrapped into range.
func (c *Cursor) Set(index int) {
	index %= c.capacity
	if index < 0 {
		index += c.capacity
	}
	c.index = index
}

// SetCapacity rebinds the cursor to a resized ring and rewinds it to 0.
func (c *Cursor) SetCapacity(capacity int) {
	if capacity < 1 {
		return
	}
	c.capacity = capacity
	c.index = 0
}
