// Package settings persists the engine parameters between runs.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// Store loads and saves a parameter snapshot.
type Store interface {
	// Load returns the saved snapshot. ok is false when nothing has been
	// saved yet.
	Load(ctx context.Context) (p timewarp.Params, ok bool, err error)

	// Save replaces the saved snapshot.
	Save(ctx context.Context, p timewarp.Params) error

	// Close releases the backend.
	Close() error
}

// Nop is a Store that never remembers anything.
type Nop struct{}

// Load reports that nothing is saved.
func (Nop) Load(context.Context) (timewarp.Params, bool, error) {
	return timewarp.Params{}, false, nil
}

// Save discards p.
func (Nop) Save(context.Context, timewarp.Params) error {
	return nil
}

// Close is a no-op.
func (Nop) Close() error {
	return nil
}

// JSONStore keeps the snapshot in a JSON file.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// storeData is the JSON structure for the settings file.
type storeData struct {
	Version   int             `json:"version"`
	UpdatedAt string          `json:"updated_at"`
	Params    timewarp.Params `json:"params"`
}

const currentVersion = 1

// NewJSONStore creates a store at path. The file is created on first save.
func NewJSONStore(path string) (*JSONStore, error) {
	if path == "" {
		return nil, errors.New("settings: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &JSONStore{path: path}, nil
}

// Path returns the settings file location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the snapshot from disk.
func (s *JSONStore) Load(ctx context.Context) (timewarp.Params, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return timewarp.Params{}, false, nil
	}
	if err != nil {
		return timewarp.Params{}, false, fmt.Errorf("failed to read file: %w", err)
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return timewarp.Params{}, false, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if stored.Version > currentVersion {
		return timewarp.Params{}, false, fmt.Errorf("unsupported settings version %d", stored.Version)
	}
	return stored.Params, true, nil
}

// Save writes the snapshot to disk.
func (s *JSONStore) Save(ctx context.Context, p timewarp.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := storeData{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Params:    p,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to temp file first, then rename (atomic write)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *JSONStore) Close() error {
	return nil
}

var (
	_ Store = Nop{}
	_ Store = (*JSONStore)(nil)
)
