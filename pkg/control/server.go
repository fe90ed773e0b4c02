package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-timewarp/pkg/hub"
	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// Options configures a Server.
type Options struct {
	Listen     string
	PreviewFPS int
	Encode     EncodeFunc // nil disables the preview feed
}

// CameraConfigurer reconfigures the capture device at runtime.
// *camera.Manager implements it.
type CameraConfigurer interface {
	GetConfigJSON() map[string]any
	UpdateConfig(map[string]any) error
}

// Server is the remote-control endpoint for one engine.
type Server struct {
	app     *fiber.App
	engine  *timewarp.Engine
	opts    Options
	logger  *slog.Logger
	control *hub.Hub
	preview *Preview

	mu      sync.RWMutex
	cameras CameraConfigurer
	extra   func() any
}

// NewServer builds the fiber app and routes. Nothing listens until Run or
// Serve.
func NewServer(engine *timewarp.Engine, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "control")

	s := &Server{
		engine:  engine,
		opts:    opts,
		logger:  logger,
		control: hub.New("control", logger),
		preview: NewPreview(opts.PreviewFPS, opts.Encode, logger),
	}
	s.control.OnConnect(s.snapshot)
	s.control.OnMessage(s.handleWS)

	app := fiber.New(fiber.Config{
		AppName:               "timewarp",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/params", s.handleGetParams)
	api.Post("/params/:name", s.handleSetParam)
	api.Get("/presets", s.handleListPresets)
	api.Post("/presets/:name", s.handleApplyPreset)
	api.Post("/randomize", s.handleRandomize)
	api.Post("/realtime", s.handleRealtime)
	api.Get("/status", s.handleStatus)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleSetCamera)

	app.Use("/ws", hub.UpgradeRequired)
	app.Get("/ws/control", s.control.Handler())
	app.Get("/ws/preview", websocket.New(s.preview.Handle))

	s.app = app
	return s
}

// App returns the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Preview returns the preview feed.
func (s *Server) Preview() *Preview {
	return s.preview
}

// SetCamera enables the /api/camera routes.
func (s *Server) SetCamera(m CameraConfigurer) {
	s.mu.Lock()
	s.cameras = m
	s.mu.Unlock()
}

// SetStatusExtra adds a value under "runtime" in /api/status.
func (s *Server) SetStatusExtra(fn func() any) {
	s.mu.Lock()
	s.extra = fn
	s.mu.Unlock()
}

// OfferFrame passes a rendered frame to the preview feed. Safe to call from
// the tick loop.
func (s *Server) OfferFrame(f timewarp.Frame) {
	s.preview.Offer(f)
}

// Run listens on opts.Listen until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes, unsubscribe := s.engine.Subscribe(64)
	defer unsubscribe()

	go s.control.Run(ctx)
	go s.preview.Run(ctx)
	go s.echo(ctx, changes)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()
	s.logger.Info("control server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
		s.logger.Warn("control server shutdown", "error", err)
	}
	return nil
}

// echo broadcasts every parameter change as a normalized value.
func (s *Server) echo(ctx context.Context, changes <-chan timewarp.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			v, err := s.engine.Normalized(ch.Name)
			if err != nil {
				continue
			}
			s.broadcast(NewValueMessage(ch.Name, v))
		}
	}
}

func (s *Server) broadcast(msg *Message) {
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	s.control.Broadcast(hub.NewJSONMessage(data))
}

func (s *Server) reply(c *hub.Client, msg *Message) {
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	c.Send(hub.NewJSONMessage(data))
}

// snapshot is sent to each new control client.
func (s *Server) snapshot() []hub.Message {
	values := s.engine.NormalizedAll()
	out := make([]hub.Message, 0, len(values))
	for _, name := range timewarp.ParamNames() {
		data, err := NewValueMessage(name, values[name]).Bytes()
		if err != nil {
			continue
		}
		out = append(out, hub.NewJSONMessage(data))
	}
	return out
}

// handleWS applies one inbound control message.
func (s *Server) handleWS(c *hub.Client, data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		s.reply(c, NewErrorMessage(err))
		return
	}

	for _, out := range s.Apply(msg) {
		s.reply(c, out)
	}
}

// Apply executes a control message against the engine and returns the
// replies meant for the sender only. Parameter changes reach every client
// through the echo.
func (s *Server) Apply(msg *Message) []*Message {
	if name, ok := msg.Param(); ok {
		if msg.Value == nil {
			return []*Message{NewErrorMessage(fmt.Errorf("%s: missing value", msg.Address))}
		}
		ch, err := s.engine.SetNormalized(name, *msg.Value)
		if err != nil {
			return []*Message{NewErrorMessage(err)}
		}
		if !ch.Changed() {
			// Nothing is echoed; tell the sender where the value landed.
			v, _ := s.engine.Normalized(name)
			return []*Message{NewValueMessage(name, v)}
		}
		return nil
	}

	switch msg.Address {
	case AddressPreset:
		if _, err := s.engine.ApplyPreset(msg.Preset); err != nil {
			return []*Message{NewErrorMessage(err)}
		}
	case AddressRandomize:
		s.engine.Randomize()
	case AddressRealtime:
		s.engine.BackToRealtime()
	case AddressStatus:
		return []*Message{NewStatusMessage(s.engine.Status())}
	case AddressPing:
		return []*Message{{Address: AddressPong, Timestamp: time.Now().UnixMilli()}}
	default:
		return []*Message{NewErrorMessage(fmt.Errorf("unknown address: %s", msg.Address))}
	}
	return nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
