//go:build integration

package settings

import (
	"context"
	"os"
	"testing"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// TestRedisStoreIntegration needs a reachable Redis.
// Run with: TIMEWARP_REDIS_ADDR=localhost:6379 go test -tags=integration ./pkg/settings/...
func TestRedisStoreIntegration(t *testing.T) {
	addr := os.Getenv("TIMEWARP_REDIS_ADDR")
	if addr == "" {
		t.Skip("TIMEWARP_REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisOptions{Addr: addr, Key: "timewarp:test:" + t.Name()})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer func() {
		store.rdb.Del(ctx, store.key)
		store.Close()
	}()

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("empty Load: ok=%v err=%v", ok, err)
	}

	want := timewarp.DefaultParams()
	want.DelayMs = 4200
	want.AudioReactive = true
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("Load: got %+v, want %+v", got, want)
	}
}
