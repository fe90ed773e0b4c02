package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// ErrNoFrame is returned when the device delivered no image.
var ErrNoFrame = errors.New("camera: no frame")

// Capture reads frames from an OpenCV video device.
type Capture struct {
	mu     sync.Mutex // Protects dev and mat
	dev    *gocv.VideoCapture
	mat    gocv.Mat
	cfg    Config
	logger *slog.Logger
}

// OpenCapture opens the device selected by cfg.Device and requests the
// configured resolution and frame rate.
func OpenCapture(cfg Config, logger *slog.Logger) (*Capture, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}

	c := &Capture{
		mat:    gocv.NewMat(),
		logger: logger,
	}
	if err := c.open(cfg); err != nil {
		c.mat.Close()
		return nil, err
	}
	return c, nil
}

func (c *Capture) open(cfg Config) error {
	dev, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", cfg.Device, err)
	}
	if !dev.IsOpened() {
		dev.Close()
		return fmt.Errorf("open camera %d: device not available", cfg.Device)
	}

	dev.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	dev.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	dev.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	c.dev = dev
	c.cfg = cfg

	c.logger.Info("camera opened",
		"device", cfg.Device,
		"requested", fmt.Sprintf("%dx%d@%d", cfg.Width, cfg.Height, cfg.Framerate),
		"actual", fmt.Sprintf("%.0fx%.0f@%.0f",
			dev.Get(gocv.VideoCaptureFrameWidth),
			dev.Get(gocv.VideoCaptureFrameHeight),
			dev.Get(gocv.VideoCaptureFPS)),
	)
	return nil
}

// LatestFrame reads the next frame from the device as packed BGR.
func (c *Capture) LatestFrame() (timewarp.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return timewarp.Frame{}, errors.New("camera: closed")
	}
	if ok := c.dev.Read(&c.mat); !ok || c.mat.Empty() {
		return timewarp.Frame{}, ErrNoFrame
	}
	return FrameFromMat(c.mat, time.Now()), nil
}

// Reconfigure reopens the device with cfg. It is used as the Manager's
// OnConfigChange callback. On failure the previous device stays open.
func (c *Capture) Reconfigure(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dev
	oldCfg := c.cfg
	if old != nil {
		// Most backends refuse a second handle on the same device.
		old.Close()
		c.dev = nil
	}

	if err := c.open(cfg); err != nil {
		c.logger.Warn("camera reconfigure failed, restoring previous settings", "error", err)
		if rerr := c.open(oldCfg); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// Config returns the active configuration.
func (c *Capture) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.dev != nil {
		err = c.dev.Close()
		c.dev = nil
	}
	c.mat.Close()
	return err
}

// FrameFromMat copies an 8-bit Mat into a Frame the caller owns.
func FrameFromMat(m gocv.Mat, captured time.Time) timewarp.Frame {
	return timewarp.Frame{
		Width:    m.Cols(),
		Height:   m.Rows(),
		Channels: m.Channels(),
		Pix:      m.ToBytes(),
		Captured: captured,
	}
}

// MatFromFrame builds a Mat over the frame's pixels. The caller must Close
// it and keep the frame alive until then.
func MatFromFrame(f timewarp.Frame) (gocv.Mat, error) {
	if f.Empty() {
		return gocv.NewMat(), ErrNoFrame
	}

	var typ gocv.MatType
	switch f.Channels {
	case 1:
		typ = gocv.MatTypeCV8UC1
	case 3:
		typ = gocv.MatTypeCV8UC3
	case 4:
		typ = gocv.MatTypeCV8UC4
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, typ, f.Pix)
}

var _ timewarp.CaptureSource = (*Capture)(nil)
