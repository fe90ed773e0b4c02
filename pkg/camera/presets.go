package camera

import "sort"

// Preset names.
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	Preset4K      = "4k"
)

// A 720p ring holds about twice the history of a 1080p ring in the same
// memory. 4K drops to 15 fps and needs a short buffer.
var presets = map[string]Config{
	PresetDefault: DefaultConfig(),
	PresetLegacy:  LegacyConfig(),
	Preset720p:    {Width: 1280, Height: 720, Framerate: 30},
	Preset1080p:   {Width: 1920, Height: 1080, Framerate: 30},
	Preset4K:      {Width: 3840, Height: 2160, Framerate: 15},
}

// Presets returns a copy of the named configurations.
func Presets() map[string]Config {
	out := make(map[string]Config, len(presets))
	for name, cfg := range presets {
		out[name] = cfg
	}
	return out
}

// PresetNames returns the preset names sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := presets[name]
	if !ok {
		return nil
	}
	return &cfg
}
