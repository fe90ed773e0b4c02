package main

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-timewarp/internal/log"
	"github.com/teslashibe/go-timewarp/pkg/control"
	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

func startTimewarp(t *testing.T, opts control.Options) (*remote, *timewarp.Engine, *control.Server) {
	t.Helper()

	engine := timewarp.NewEngine(timewarp.DefaultEngineConfig(), nil, log.Discard())
	srv := control.NewServer(engine, opts, log.Discard())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &remote{addr: ln.Addr().String()}, engine, srv
}

func TestRemoteCommands(t *testing.T) {
	r, engine, _ := startTimewarp(t, control.Options{})
	ctx := context.Background()

	if err := r.run(ctx, []string{"set", "delay", "0.5"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if engine.Params().DelayMs != 15000 {
		t.Errorf("DelayMs: got %d, want 15000", engine.Params().DelayMs)
	}

	r.raw = true
	if err := r.run(ctx, []string{"set", "seek", "-3000"}); err != nil {
		t.Fatalf("raw set: %v", err)
	}
	if engine.Params().SeekMs != -3000 {
		t.Errorf("SeekMs: got %d, want -3000", engine.Params().SeekMs)
	}

	if err := r.run(ctx, []string{"preset", "stutter"}); err != nil {
		t.Fatalf("preset: %v", err)
	}
	if engine.Params().LoopMs != 250 {
		t.Errorf("LoopMs: got %d, want 250", engine.Params().LoopMs)
	}

	for _, cmd := range [][]string{{"params"}, {"status"}, {"randomize"}, {"realtime"}} {
		if err := r.run(ctx, cmd); err != nil {
			t.Errorf("%v: %v", cmd, err)
		}
	}
	if engine.Params().DelayMs != 0 {
		t.Errorf("realtime should clear delay, got %d", engine.Params().DelayMs)
	}

	if err := r.run(ctx, []string{"preset", "nope"}); err == nil {
		t.Error("unknown preset should fail")
	}
}

func TestRemoteUsage(t *testing.T) {
	r := &remote{addr: "127.0.0.1:1"}
	for _, args := range [][]string{nil, {"set", "delay"}, {"dance"}, {"sweep", "delay"}} {
		if err := r.run(context.Background(), args); !errors.Is(err, errUsage) {
			t.Errorf("%v: got %v, want usage error", args, err)
		}
	}
}

func TestRemoteSweep(t *testing.T) {
	r, engine, _ := startTimewarp(t, control.Options{})

	if err := r.run(context.Background(), []string{"sweep", "loop", "0", "0.5", "100ms"}); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for engine.Params().LoopMs != 15000 {
		if time.Now().After(deadline) {
			t.Fatalf("LoopMs: got %d, want 15000", engine.Params().LoopMs)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := r.run(context.Background(), []string{"sweep", "speed", "0", "1", "1s"}); err == nil {
		t.Error("unknown parameter should fail")
	}
}

func TestRemoteSnapshot(t *testing.T) {
	encode := func(timewarp.Frame) ([]byte, error) { return []byte{0xff, 0xd8, 0xff}, nil }
	r, _, srv := startTimewarp(t, control.Options{PreviewFPS: 1000, Encode: encode})

	out := filepath.Join(t.TempDir(), "frame.jpg")
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.run(context.Background(), []string{"snapshot", out})
	}()

	frame := timewarp.Frame{Width: 2, Height: 2, Channels: 3, Pix: make([]byte, 12)}
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatal(err)
			}
			if len(data) != 3 {
				t.Errorf("snapshot size: got %d, want 3", len(data))
			}
			return
		case <-ticker.C:
			srv.OfferFrame(frame)
		}
	}
}
