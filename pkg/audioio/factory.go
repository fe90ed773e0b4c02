package audioio

import (
	"fmt"
	"log/slog"
	"runtime"
)

// NewSource validates cfg and returns a stopped source for its backend.
// BackendAuto picks ALSA on Linux and the mock elsewhere. The mock options
// are ignored by real backends.
func NewSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto || backend == "" {
		backend = BackendMock
		if runtime.GOOS == "linux" {
			backend = BackendALSA
		}
	}
	logger.Debug("audio source", "backend", backend, "device", cfg.Device, "block", cfg.BufferDuration())

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger, opts...), nil
	case BackendALSA:
		return newALSASource(cfg, logger)
	}
	return nil, fmt.Errorf("unsupported backend: %s", backend)
}
