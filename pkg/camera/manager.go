package camera

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Manager holds the active camera configuration and applies updates
// received from the control API.
type Manager struct {
	mu     sync.RWMutex
	config Config

	// OnConfigChange reopens the device. A returned error rejects the new
	// configuration and the previous one stays active.
	OnConfigChange func(cfg Config) error
}

// NewManager returns a Manager holding cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the active configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates cfg, hands it to OnConfigChange and stores it once
// accepted.
func (m *Manager) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OnConfigChange != nil {
		if err := m.OnConfigChange(cfg); err != nil {
			return fmt.Errorf("apply camera config: %w", err)
		}
	}
	m.config = cfg
	return nil
}

// UpdateConfig merges a JSON-style patch into the active configuration.
// "preset" is applied first and keeps the current device; integer fields
// then override it. Unknown keys are ignored.
func (m *Manager) UpdateConfig(patch map[string]any) error {
	cfg := m.GetConfig()

	if name, ok := patch["preset"].(string); ok {
		preset := GetPreset(name)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", name)
		}
		preset.Device = cfg.Device
		cfg = *preset
	}

	fields := map[string]*int{
		"device":    &cfg.Device,
		"width":     &cfg.Width,
		"height":    &cfg.Height,
		"framerate": &cfg.Framerate,
	}
	for key, value := range patch {
		dst, ok := fields[key]
		if !ok {
			continue
		}
		v, ok := toInt(value)
		if !ok {
			return fmt.Errorf("%s: not a number: %v", key, value)
		}
		*dst = v
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the active configuration as a JSON object.
func (m *Manager) GetConfigJSON() map[string]any {
	cfg := m.GetConfig()
	return map[string]any{
		"device":    float64(cfg.Device),
		"width":     float64(cfg.Width),
		"height":    float64(cfg.Height),
		"framerate": float64(cfg.Framerate),
		"presets":   PresetNames(),
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
