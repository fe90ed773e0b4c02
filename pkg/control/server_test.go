package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-timewarp/internal/log"
	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

func newTestServer(t *testing.T, opts Options) (*Server, *timewarp.Engine) {
	t.Helper()
	engine := timewarp.NewEngine(timewarp.DefaultEngineConfig(), nil, log.Discard())
	return NewServer(engine, opts, log.Discard()), engine
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, out any) int {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestGetParams(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	var resp ParamsResponse
	if code := doJSON(t, s.App(), "GET", "/api/params", "", &resp); code != 200 {
		t.Fatalf("status %d", code)
	}
	if resp.Params.LoopMs != 10000 || resp.Limits.MaxDelayMs != 30000 {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.Normalized) != len(timewarp.ParamNames()) {
		t.Errorf("normalized: got %d entries", len(resp.Normalized))
	}
}

func TestSetParam(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantDelay  int
		clamped    bool
	}{
		{"normalized", "/api/params/delay", `{"value":0.5}`, 200, 15000, false},
		{"raw", "/api/params/delay", `{"raw":1200}`, 200, 1200, false},
		{"raw clamped", "/api/params/delay", `{"raw":99999}`, 200, 30000, true},
		{"normalized clamped", "/api/params/delay", `{"value":3}`, 200, 30000, false},
		{"missing value", "/api/params/delay", `{}`, 400, 0, false},
		{"unknown param", "/api/params/speed", `{"value":0.5}`, 404, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, engine := newTestServer(t, Options{})

			var resp SetParamResponse
			var out any
			if tc.wantStatus == 200 {
				out = &resp
			}
			code := doJSON(t, s.App(), "POST", tc.path, tc.body, out)
			if code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d", code, tc.wantStatus)
			}
			if got := engine.Params().DelayMs; got != tc.wantDelay {
				t.Errorf("DelayMs: got %d, want %d", got, tc.wantDelay)
			}
			if tc.wantStatus == 200 && resp.Change.Clamped != tc.clamped {
				t.Errorf("Clamped: got %v, want %v", resp.Change.Clamped, tc.clamped)
			}
		})
	}
}

func TestPresetsAndActions(t *testing.T) {
	s, engine := newTestServer(t, Options{})
	app := s.App()

	var changes ChangesResponse
	if code := doJSON(t, app, "POST", "/api/presets/rewind", "", &changes); code != 200 {
		t.Fatalf("preset status %d", code)
	}
	if changes.Params.LoopMs != 3000 || changes.Params.SeekMs != -6000 {
		t.Errorf("rewind preset: got %+v", changes.Params)
	}
	if len(changes.Changes) != 3 {
		t.Errorf("preset changes: got %d, want 3", len(changes.Changes))
	}

	if code := doJSON(t, app, "POST", "/api/presets/slowmo", "", nil); code != 404 {
		t.Errorf("unknown preset status: got %d, want 404", code)
	}

	var presets struct {
		Names []string `json:"names"`
	}
	doJSON(t, app, "GET", "/api/presets", "", &presets)
	if len(presets.Names) != len(timewarp.PresetNames()) {
		t.Errorf("preset names: got %v", presets.Names)
	}

	if code := doJSON(t, app, "POST", "/api/randomize", "", &changes); code != 200 {
		t.Fatalf("randomize status %d", code)
	}

	engine.Set(timewarp.ParamDelay, 4000)
	if code := doJSON(t, app, "POST", "/api/realtime", "", &changes); code != 200 {
		t.Fatalf("realtime status %d", code)
	}
	if engine.Params().DelayMs != 0 {
		t.Errorf("realtime should clear delay, got %d", engine.Params().DelayMs)
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	s.SetStatusExtra(func() any { return map[string]int{"ticks": 7} })

	var resp map[string]json.RawMessage
	if code := doJSON(t, s.App(), "GET", "/api/status", "", &resp); code != 200 {
		t.Fatalf("status %d", code)
	}
	for _, key := range []string{"engine", "control", "preview", "runtime"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("status missing %q", key)
		}
	}

	var st timewarp.Status
	if err := json.Unmarshal(resp["engine"], &st); err != nil {
		t.Fatal(err)
	}
	if st.Capacity != 450 {
		t.Errorf("Capacity: got %d, want 450", st.Capacity)
	}
}

type fakeCamera struct {
	cfg map[string]any
	err error
}

func (f *fakeCamera) GetConfigJSON() map[string]any { return f.cfg }

func (f *fakeCamera) UpdateConfig(m map[string]any) error {
	if f.err != nil {
		return f.err
	}
	for k, v := range m {
		f.cfg[k] = v
	}
	return nil
}

func TestCameraRoutes(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	app := s.App()

	if code := doJSON(t, app, "GET", "/api/camera", "", nil); code != 404 {
		t.Errorf("without camera: got %d, want 404", code)
	}

	cam := &fakeCamera{cfg: map[string]any{"width": float64(1920)}}
	s.SetCamera(cam)

	var cfg map[string]any
	if code := doJSON(t, app, "POST", "/api/camera", `{"preset":"720p"}`, &cfg); code != 200 {
		t.Fatalf("update status %d", code)
	}
	if cfg["preset"] != "720p" {
		t.Errorf("update not applied: %v", cfg)
	}

	cam.err = errors.New("device busy")
	if code := doJSON(t, app, "POST", "/api/camera", `{"device":3}`, nil); code != 400 {
		t.Errorf("rejected update: got %d, want 400", code)
	}
}

func TestApply(t *testing.T) {
	s, engine := newTestServer(t, Options{})
	half := 0.5

	tests := []struct {
		name    string
		msg     Message
		replies int
		address string
	}{
		{"param change", Message{Address: "/loop", Value: &half}, 0, ""},
		{"param unchanged", Message{Address: "/loop", Value: &half}, 1, "/loop"},
		{"param without value", Message{Address: "/loop"}, 1, AddressError},
		{"preset", Message{Address: AddressPreset, Preset: "stutter"}, 0, ""},
		{"bad preset", Message{Address: AddressPreset, Preset: "nope"}, 1, AddressError},
		{"randomize", Message{Address: AddressRandomize}, 0, ""},
		{"realtime", Message{Address: AddressRealtime}, 0, ""},
		{"status", Message{Address: AddressStatus}, 1, AddressStatus},
		{"ping", Message{Address: AddressPing}, 1, AddressPong},
		{"unknown", Message{Address: "/warp"}, 1, AddressError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			replies := s.Apply(&tc.msg)
			if len(replies) != tc.replies {
				t.Fatalf("replies: got %d, want %d", len(replies), tc.replies)
			}
			if tc.replies > 0 && replies[0].Address != tc.address {
				t.Errorf("reply address: got %q, want %q", replies[0].Address, tc.address)
			}
		})
	}

	if engine.Params().DelayMs != 0 {
		t.Errorf("realtime should leave delay at 0, got %d", engine.Params().DelayMs)
	}
}

func startServer(t *testing.T, s *Server) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func readMessage(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestControlWebSocket(t *testing.T) {
	s, engine := newTestServer(t, Options{})
	addr := startServer(t, s)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/control", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	// Snapshot of every parameter on connect
	seen := make(map[string]bool)
	for range timewarp.ParamNames() {
		msg := readMessage(t, ws)
		if msg.Value == nil {
			t.Fatalf("snapshot message without value: %+v", msg)
		}
		seen[msg.Address] = true
	}
	if !seen["/delay"] || !seen["/buffer"] {
		t.Errorf("snapshot addresses: %v", seen)
	}

	if err := ws.WriteJSON(map[string]any{"address": "/delay", "value": 0.25}); err != nil {
		t.Fatal(err)
	}
	echo := readMessage(t, ws)
	if echo.Address != "/delay" || echo.Value == nil || *echo.Value != 0.25 {
		t.Errorf("echo: got %+v", echo)
	}
	if engine.Params().DelayMs != 7500 {
		t.Errorf("DelayMs: got %d, want 7500", engine.Params().DelayMs)
	}

	// Changes from other sources are echoed too
	engine.Set(timewarp.ParamSeek, 0)
	engine.Set(timewarp.ParamLoop, 15000)
	echo = readMessage(t, ws)
	if echo.Address != "/loop" || *echo.Value != 0.5 {
		t.Errorf("loop echo: got %+v", echo)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, ws); msg.Address != AddressError {
		t.Errorf("garbage reply: got %+v", msg)
	}
}

func TestPreviewWebSocket(t *testing.T) {
	encode := func(f timewarp.Frame) ([]byte, error) {
		return []byte{0xff, 0xd8, byte(f.Width)}, nil
	}
	s, _ := newTestServer(t, Options{PreviewFPS: 1000, Encode: encode})
	addr := startServer(t, s)

	frame := timewarp.Frame{Width: 4, Height: 1, Channels: 3, Pix: make([]byte, 12)}

	// No viewers, nothing is encoded
	s.OfferFrame(frame)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/preview", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Preview().ViewerCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.OfferFrame(frame)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.BinaryMessage || len(data) != 3 || data[2] != 4 {
		t.Errorf("preview frame: type %d data %v", typ, data)
	}
	if s.Preview().Stats().FramesSent != 1 {
		t.Errorf("FramesSent: got %d", s.Preview().Stats().FramesSent)
	}
}

func TestPreviewDisabled(t *testing.T) {
	p := NewPreview(0, nil, log.Discard())
	if p.Enabled() {
		t.Error("preview without fps should be disabled")
	}
	p.Offer(timewarp.Frame{Pix: []byte{1}})
	if p.Stats().DroppedOffers != 0 {
		t.Error("disabled preview should ignore offers")
	}
}
