package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-timewarp/internal/config"
	"github.com/teslashibe/go-timewarp/pkg/settings"
	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

func TestLoudHook(t *testing.T) {
	p := timewarp.DefaultParams()
	p.DelayMs = 2500

	tests := []struct {
		action string
		want   map[string]float64
	}{
		{config.LoudNone, nil},
		{"", nil},
		{config.LoudReverse, map[string]float64{timewarp.ParamDirection: timewarp.Backward}},
		{config.LoudRealtime, map[string]float64{timewarp.ParamDelay: 0}},
	}

	for _, tc := range tests {
		t.Run(tc.action, func(t *testing.T) {
			hook := loudHook(tc.action)
			if tc.want == nil {
				if hook != nil {
					t.Error("expected no hook")
				}
				return
			}
			got := hook(timewarp.Level{Loud: true}, p)
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("%s: got %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, err := openStore(ctx, config.SettingsConfig{Backend: config.StoreNone})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(settings.Nop); !ok {
		t.Errorf("none backend: got %T", store)
	}

	store, err = openStore(ctx, config.SettingsConfig{
		Backend: config.StoreJSON,
		Path:    filepath.Join(t.TempDir(), "settings.json"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*settings.JSONStore); !ok {
		t.Errorf("json backend: got %T", store)
	}

	if store, err := openStore(ctx, config.SettingsConfig{Backend: "s3"}); err == nil || store != nil {
		t.Errorf("unknown backend: got %v, %v", store, err)
	}
}
