package camera

import (
	"sync"
	"time"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// Pattern is a synthetic capture source for headless runs and tests. Each
// frame carries a bright vertical bar that moves one step per frame, so
// delays and seeks are visible in the output.
type Pattern struct {
	mu     sync.Mutex
	width  int
	height int
	n      int
}

// NewPattern returns a BGR pattern source of the given size.
func NewPattern(width, height int) *Pattern {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &Pattern{width: width, height: height}
}

// LatestFrame renders the next pattern frame.
func (p *Pattern) LatestFrame() (timewarp.Frame, error) {
	p.mu.Lock()
	n := p.n
	p.n++
	p.mu.Unlock()

	f := timewarp.Frame{
		Width:    p.width,
		Height:   p.height,
		Channels: 3,
		Pix:      make([]byte, p.width*p.height*3),
		Captured: time.Now(),
	}

	bar := n % p.width
	shade := byte(n)
	stride := f.Stride()
	for y := 0; y < p.height; y++ {
		row := f.Pix[y*stride : (y+1)*stride]
		for x := 0; x < p.width; x++ {
			px := row[x*3 : x*3+3]
			px[0] = shade
			if x == bar {
				px[0], px[1], px[2] = 255, 255, 255
			}
		}
	}
	return f, nil
}

// Sequence returns the number of the next frame, which equals the blue
// channel of its first pixel modulo 256.
func (p *Pattern) Sequence() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

var _ timewarp.CaptureSource = (*Pattern)(nil)
