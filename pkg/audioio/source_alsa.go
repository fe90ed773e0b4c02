//go:build linux

package audioio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
)

// ALSASource reads PCM16 from a persistent arecord process.
type ALSASource struct {
	cfg    Config
	logger *slog.Logger
	device string
	queue  chunkQueue

	procMu sync.Mutex
	cmd    *exec.Cmd
	stderr bytes.Buffer
}

func newALSASource(cfg Config, logger *slog.Logger) (Source, error) {
	if _, err := exec.LookPath("arecord"); err != nil {
		return nil, fmt.Errorf("arecord not found (install alsa-utils): %w", err)
	}
	return &ALSASource{cfg: cfg, logger: logger, device: cfg.ALSADevice()}, nil
}

// Start launches arecord on the configured device.
func (s *ALSASource) Start(ctx context.Context) error {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	ch, err := s.queue.open()
	if err != nil || ch == nil {
		return err
	}

	cmd := exec.CommandContext(ctx, "arecord", "-q",
		"-D", s.device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(s.cfg.SampleRate),
		"-c", strconv.Itoa(s.cfg.Channels),
		"-t", "raw",
	)
	s.stderr.Reset()
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		s.queue.shutdown()
		return fmt.Errorf("start arecord: %w", err)
	}
	s.cmd = cmd

	go s.capture(stdout, ch)

	s.logger.Info("ALSA audio source started",
		"device", s.device,
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
	)
	return nil
}

func (s *ALSASource) capture(r io.Reader, ch chan AudioChunk) {
	defer s.Stop()

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Warn("ALSA read failed", "error", err)
			}
			return
		}
		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		if !s.queue.push(ch, chunk) {
			return
		}
	}
}

// Stop kills arecord and closes the stream.
func (s *ALSASource) Stop() error {
	stopped := s.queue.shutdown()
	s.kill()
	if stopped {
		s.logger.Info("ALSA audio source stopped")
	}
	return nil
}

func (s *ALSASource) kill() {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	s.cmd.Process.Kill()
	s.cmd.Wait()
	if msg := s.stderr.String(); msg != "" {
		s.logger.Debug("arecord stderr", "output", msg)
	}
	s.cmd = nil
}

// Stream returns the current chunk channel.
func (s *ALSASource) Stream() <-chan AudioChunk { return s.queue.stream() }

// Name returns "alsa".
func (s *ALSASource) Name() string { return string(BackendALSA) }

// Close stops capture for good.
func (s *ALSASource) Close() error {
	s.queue.seal()
	s.kill()
	return nil
}

// Stats returns delivery counters.
func (s *ALSASource) Stats() SourceStats { return s.queue.stats(s.Name()) }

var _ SourceWithStats = (*ALSASource)(nil)
