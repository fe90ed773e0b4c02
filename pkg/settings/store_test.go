package settings

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

func testStore(t *testing.T) *JSONStore {
	t.Helper()
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "nested", "settings.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	return store
}

func TestJSONStore_LoadMissing(t *testing.T) {
	store := testStore(t)

	_, ok, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("Load should report nothing saved")
	}
}

func TestJSONStore_SaveLoad(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	want := timewarp.Params{
		DelayMs:       2000,
		LoopMs:        3000,
		SeekMs:        -6000,
		BufferMs:      12000,
		Sync:          true,
		AudioReactive: true,
		Direction:     timewarp.Backward,
	}
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

	if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away")
	}

	// Second store on the same file sees the saved data.
	other, err := NewJSONStore(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	got, ok, _ = other.Load(ctx)
	if !ok || got.SeekMs != -6000 {
		t.Errorf("reopened store: got %+v ok=%v", got, ok)
	}
}

func TestJSONStore_FileFormat(t *testing.T) {
	store := testStore(t)
	if err := store.Save(context.Background(), timewarp.DefaultParams()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("settings file is not JSON: %v", err)
	}
	if stored.Version != currentVersion {
		t.Errorf("version: got %d, want %d", stored.Version, currentVersion)
	}
	if _, err := time.Parse(time.RFC3339, stored.UpdatedAt); err != nil {
		t.Errorf("updated_at: %v", err)
	}
	if stored.Params.LoopMs != 10000 {
		t.Errorf("params: got %+v", stored.Params)
	}
}

func TestJSONStore_Errors(t *testing.T) {
	if _, err := NewJSONStore(""); err == nil {
		t.Error("empty path should fail")
	}

	tests := []struct {
		name    string
		content string
	}{
		{"corrupt", "{not json"},
		{"future version", `{"version": 99, "params": {}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := testStore(t)
			if err := os.WriteFile(store.Path(), []byte(tc.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, ok, err := store.Load(context.Background()); err == nil || ok {
				t.Errorf("Load: ok=%v err=%v, want error", ok, err)
			}
		})
	}
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	if err := s.Save(context.Background(), timewarp.DefaultParams()); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Load(context.Background()); ok {
		t.Error("Nop should never load a snapshot")
	}
}

func TestRedisFieldCodec(t *testing.T) {
	p := timewarp.Params{DelayMs: 1500, LoopMs: 250, SeekMs: -250, BufferMs: 15000, Sync: true, Direction: timewarp.Forward}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	encoded := encodeFields(p, now)
	if encoded[fieldUpdatedAt] != "2026-01-02T03:04:05Z" {
		t.Errorf("updated_at: got %v", encoded[fieldUpdatedAt])
	}

	fields := make(map[string]string, len(encoded))
	for k, v := range encoded {
		fields[k] = v.(string)
	}
	values, err := decodeFields(fields)
	if err != nil {
		t.Fatalf("decodeFields: %v", err)
	}
	if got := timewarp.DefaultParams().WithValues(values); got != p {
		t.Errorf("round trip: got %+v, want %+v", got, p)
	}

	if _, err := decodeFields(map[string]string{timewarp.ParamDelay: "soon"}); err == nil {
		t.Error("non-numeric field should fail")
	}
}
