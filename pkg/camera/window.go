package camera

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// ErrWindowClosed is returned by Present after the window has been closed.
var ErrWindowClosed = errors.New("camera: window closed")

// KeyFullscreen toggles fullscreen in every Window.
const KeyFullscreen = 'f'

// Window is an OpenCV display window used as the engine's render sink.
//
// OpenCV's HighGUI is not thread safe. Create the window and call Present
// from the same goroutine, locked to its OS thread.
type Window struct {
	mu         sync.Mutex
	win        *gocv.Window
	fullscreen bool

	// OnKey, when set, receives every key pressed while the window has focus.
	OnKey func(key int)
}

// NewWindow opens a named window.
func NewWindow(name string, fullscreen bool) *Window {
	w := &Window{win: gocv.NewWindow(name)}
	w.SetFullscreen(fullscreen)
	return w
}

// Present shows the frame and services the window's event loop.
func (w *Window) Present(f timewarp.Frame) error {
	w.mu.Lock()
	if w.win == nil {
		w.mu.Unlock()
		return ErrWindowClosed
	}

	mat, err := MatFromFrame(f)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.win.IMShow(mat)
	key := w.win.WaitKey(1)
	mat.Close()
	w.mu.Unlock()

	if key < 0 {
		return nil
	}
	if key == KeyFullscreen {
		w.SetFullscreen(!w.Fullscreen())
	}
	if w.OnKey != nil {
		w.OnKey(key)
	}
	return nil
}

// SetFullscreen switches between a fullscreen and a normal window.
func (w *Window) SetFullscreen(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.win == nil {
		return
	}
	flag := gocv.WindowNormal
	if on {
		flag = gocv.WindowFullscreen
	}
	w.win.SetWindowProperty(gocv.WindowPropertyFullscreen, flag)
	w.fullscreen = on
}

// Fullscreen reports the current mode.
func (w *Window) Fullscreen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fullscreen
}

// Close destroys the window.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.win == nil {
		return nil
	}
	err := w.win.Close()
	w.win = nil
	return err
}

var _ timewarp.RenderSink = (*Window)(nil)
