// timewarp-remote drives a running timewarp instance over its control API.
//
//	timewarp-remote params
//	timewarp-remote set delay 0.4
//	timewarp-remote -raw set seek -3000
//	timewarp-remote preset rewind
//	timewarp-remote sweep delay 0 1 10s
//	timewarp-remote watch
//	timewarp-remote snapshot out.jpg
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-timewarp/internal/httpc"
	"github.com/teslashibe/go-timewarp/internal/log"
	"github.com/teslashibe/go-timewarp/pkg/control"
	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

func main() {
	addr := flag.String("addr", envOr("TIMEWARP_REMOTE", "localhost:8090"), "timewarp control address (host:port)")
	raw := flag.Bool("raw", false, "set: write the value unscaled instead of as a 0-1 control value")
	flag.Usage = usage
	flag.Parse()

	log.Init("info", "")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := &remote{addr: *addr, raw: *raw}
	if err := r.run(ctx, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			usage()
			os.Exit(2)
		}
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func usage() {
	fmt.Fprintf(os.Stderr, `usage: timewarp-remote [flags] <command> [args]

commands:
  params                      show current parameters
  set <param> <value>         set a parameter (0-1, or unscaled with -raw)
  preset <name>               apply a preset (%v)
  randomize                   draw random loop, seek and delay
  realtime                    jump back to the live position
  status                      show engine and runtime status
  sweep <param> <from> <to> <duration>
                              move a parameter smoothly over the websocket
  watch                       print every parameter change
  snapshot <file>             save one preview frame as JPEG

parameters: %v

flags:
`, timewarp.PresetNames(), timewarp.ParamNames())
	flag.PrintDefaults()
}

type remote struct {
	addr string
	raw  bool
}

func (r *remote) api(path string) string {
	return "http://" + r.addr + "/api" + path
}

func (r *remote) ws(path string) string {
	u := url.URL{Scheme: "ws", Host: r.addr, Path: path}
	return u.String()
}

func (r *remote) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "params":
		return r.params(ctx)
	case "set":
		if len(rest) != 2 {
			return errUsage
		}
		return r.set(ctx, rest[0], rest[1])
	case "preset":
		if len(rest) != 1 {
			return errUsage
		}
		return r.post(ctx, "/presets/"+url.PathEscape(rest[0]))
	case "randomize":
		return r.post(ctx, "/randomize")
	case "realtime":
		return r.post(ctx, "/realtime")
	case "status":
		var st map[string]any
		if err := httpc.GetJSON(ctx, r.api("/status"), &st); err != nil {
			return err
		}
		return printJSON(st)
	case "sweep":
		if len(rest) != 4 {
			return errUsage
		}
		return r.sweep(ctx, rest)
	case "watch":
		return r.watch(ctx)
	case "snapshot":
		if len(rest) != 1 {
			return errUsage
		}
		return r.snapshot(ctx, rest[0])
	}
	return errUsage
}

func (r *remote) params(ctx context.Context) error {
	var resp control.ParamsResponse
	if err := httpc.GetJSON(ctx, r.api("/params"), &resp); err != nil {
		return err
	}

	values := resp.Params.Values()
	names := timewarp.ParamNames()
	for _, name := range names {
		fmt.Printf("%-15s %8.0f  (%.3f)\n", name, values[name], resp.Normalized[name])
	}
	return nil
}

func (r *remote) set(ctx context.Context, name, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("value %q: %w", value, err)
	}

	req := control.SetParamRequest{Value: &v}
	if r.raw {
		req = control.SetParamRequest{Raw: &v}
	}

	var resp control.SetParamResponse
	if err := httpc.PostJSON(ctx, r.api("/params/"+url.PathEscape(name)), req, &resp); err != nil {
		return err
	}

	note := ""
	if resp.Change.Clamped {
		note = " (clamped)"
	}
	fmt.Printf("%s: %.0f -> %.0f%s\n", name, resp.Change.Old, resp.Change.New, note)
	return nil
}

func (r *remote) post(ctx context.Context, path string) error {
	var resp control.ChangesResponse
	if err := httpc.PostJSON(ctx, r.api(path), nil, &resp); err != nil {
		return err
	}
	for _, ch := range resp.Changes {
		if ch.Changed() {
			fmt.Printf("%s: %.0f -> %.0f\n", ch.Name, ch.Old, ch.New)
		}
	}
	return printJSON(resp.Params)
}

// sweep sends normalized values over the control websocket at 30 Hz, the
// way a hardware fader would.
func (r *remote) sweep(ctx context.Context, args []string) error {
	name := args[0]
	if _, ok := control.ParamForAddress(control.AddressForParam(name)); !ok {
		return fmt.Errorf("unknown parameter: %s", name)
	}
	from, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}
	to, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("to: %w", err)
	}
	dur, err := time.ParseDuration(args[3])
	if err != nil || dur <= 0 {
		return fmt.Errorf("duration %q: must be positive like 5s", args[3])
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.ws("/ws/control"), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Replies and echoes are not needed; drain them so pings are answered.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()

	start := time.Now()
	for {
		frac := float64(time.Since(start)) / float64(dur)
		if frac > 1 {
			frac = 1
		}
		msg := control.NewValueMessage(name, from+(to-from)*frac)
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		if frac == 1 {
			fmt.Printf("%s swept %.3f -> %.3f over %s\n", name, from, to, dur)
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *remote) watch(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.ws("/ws/control"), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Printf("watching %s (ctrl-c to stop)\n", r.addr)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg, err := control.ParseMessage(data)
		if err != nil {
			log.Warn("unparseable message", "error", err)
			continue
		}
		switch {
		case msg.Value != nil:
			fmt.Printf("%s %-16s %.3f\n", time.Now().Format("15:04:05.000"), msg.Address, *msg.Value)
		case msg.Error != "":
			fmt.Printf("%s %-16s %s\n", time.Now().Format("15:04:05.000"), msg.Address, msg.Error)
		}
	}
}

func (r *remote) snapshot(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.ws("/ws/preview"), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("no preview frame received: %w", err)
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
		fmt.Printf("saved %d bytes to %s\n", len(data), path)
		return nil
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
