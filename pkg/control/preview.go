package control

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// EncodeFunc turns a frame into a preview image.
type EncodeFunc func(f timewarp.Frame) ([]byte, error)

// Viewer is a connected preview client.
type Viewer struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu sync.Mutex
}

// Send writes one JPEG to the viewer.
func (v *Viewer) Send(jpeg []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.Conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return v.Conn.WriteMessage(websocket.BinaryMessage, jpeg)
}

// Preview streams rendered frames as JPEG to every viewer, at most fps
// times per second. Encoding runs on its own goroutine and only the newest
// offered frame is kept.
type Preview struct {
	fps    int
	encode EncodeFunc
	logger *slog.Logger

	mu      sync.RWMutex
	viewers map[string]*Viewer

	frames chan timewarp.Frame
	last   atomic.Int64 // unix nanos of the last accepted frame

	framesSent    atomic.Uint64
	encodeErrors  atomic.Uint64
	droppedOffers atomic.Uint64
}

// PreviewStats contains preview counters.
type PreviewStats struct {
	Viewers       int    `json:"viewers"`
	FramesSent    uint64 `json:"frames_sent"`
	EncodeErrors  uint64 `json:"encode_errors"`
	DroppedOffers uint64 `json:"dropped_offers"`
}

// NewPreview creates a preview feed. fps <= 0 disables it.
func NewPreview(fps int, encode EncodeFunc, logger *slog.Logger) *Preview {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preview{
		fps:     fps,
		encode:  encode,
		logger:  logger.With("component", "preview"),
		viewers: make(map[string]*Viewer),
		frames:  make(chan timewarp.Frame, 1),
	}
}

// Enabled reports whether frames are accepted.
func (p *Preview) Enabled() bool {
	return p.fps > 0 && p.encode != nil
}

// Offer hands the latest rendered frame to the encoder. It never blocks
// and skips frames while nobody watches or the rate limit is reached.
func (p *Preview) Offer(f timewarp.Frame) {
	if !p.Enabled() || f.Empty() || p.ViewerCount() == 0 {
		return
	}

	now := time.Now().UnixNano()
	interval := int64(time.Second) / int64(p.fps)
	if now-p.last.Load() < interval {
		return
	}
	p.last.Store(now)

	select {
	case p.frames <- f:
	default:
		p.droppedOffers.Add(1)
	}
}

// Run encodes and sends offered frames until ctx is cancelled.
func (p *Preview) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.closeAll()
			return
		case f := <-p.frames:
			data, err := p.encode(f)
			if err != nil {
				if p.encodeErrors.Add(1) == 1 {
					p.logger.Warn("preview encode failed", "error", err)
				}
				continue
			}
			p.broadcast(data)
		}
	}
}

// Handle serves one viewer connection.
func (p *Preview) Handle(c *websocket.Conn) {
	viewer := &Viewer{
		ID:        uuid.NewString()[:8],
		Conn:      c,
		Connected: time.Now(),
	}

	p.mu.Lock()
	p.viewers[viewer.ID] = viewer
	count := len(p.viewers)
	p.mu.Unlock()
	p.logger.Info("viewer connected", "viewer", viewer.ID, "total", count)

	defer func() {
		p.mu.Lock()
		delete(p.viewers, viewer.ID)
		count := len(p.viewers)
		p.mu.Unlock()
		p.logger.Info("viewer disconnected", "viewer", viewer.ID, "remaining", count)
	}()

	// Viewers send nothing; reading detects the disconnect.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// ViewerCount returns the number of connected viewers.
func (p *Preview) ViewerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.viewers)
}

// Stats returns preview counters.
func (p *Preview) Stats() PreviewStats {
	return PreviewStats{
		Viewers:       p.ViewerCount(),
		FramesSent:    p.framesSent.Load(),
		EncodeErrors:  p.encodeErrors.Load(),
		DroppedOffers: p.droppedOffers.Load(),
	}
}

func (p *Preview) broadcast(data []byte) {
	p.mu.RLock()
	viewers := make([]*Viewer, 0, len(p.viewers))
	for _, v := range p.viewers {
		viewers = append(viewers, v)
	}
	p.mu.RUnlock()

	for _, v := range viewers {
		if err := v.Send(data); err != nil {
			p.logger.Debug("preview send failed", "viewer", v.ID, "error", err)
			v.Conn.Close()
			continue
		}
		p.framesSent.Add(1)
	}
}

func (p *Preview) closeAll() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, v := range p.viewers {
		v.Conn.Close()
	}
}
