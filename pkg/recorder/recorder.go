// Package recorder writes the rendered output and captured audio of a
// session to disk.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-timewarp/pkg/camera"
	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// Config holds recorder settings.
type Config struct {
	Dir        string  `yaml:"dir" json:"dir"`
	Codec      string  `yaml:"codec" json:"codec"` // FourCC, e.g. MJPG
	FPS        float64 `yaml:"fps" json:"fps"`
	SampleRate int     `yaml:"sample_rate" json:"sample_rate"`
	Channels   int     `yaml:"channels" json:"channels"`
}

// DefaultConfig returns MJPG video at 30 fps and 44.1 kHz mono audio.
func DefaultConfig() Config {
	return Config{
		Dir:        "recordings",
		Codec:      "MJPG",
		FPS:        30,
		SampleRate: 44100,
		Channels:   1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Dir == "" {
		errs = append(errs, errors.New("dir is required"))
	}
	if len(c.Codec) != 4 {
		errs = append(errs, fmt.Errorf("codec must be a FourCC, got %q", c.Codec))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %v", c.FPS))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.Channels < 1 || c.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", c.Channels))
	}
	return errors.Join(errs...)
}

// VideoWriter encodes frames into a container.
type VideoWriter interface {
	Write(timewarp.Frame) error
	Close() error
}

// VideoOpener opens a VideoWriter for frames of the given size.
type VideoOpener func(path, codec string, fps float64, width, height int) (VideoWriter, error)

// FileRecorder writes one session as <dir>/<stamp>-<id>.avi plus a matching
// .wav file. Video is opened on the first frame, when the size is known.
//
// AddFrame and AddAudio may be called from different goroutines.
type FileRecorder struct {
	cfg    Config
	id     string
	base   string
	logger *slog.Logger

	openVideo VideoOpener

	videoMu     sync.Mutex
	video       VideoWriter
	videoWidth  int
	videoHeight int
	videoClosed bool
	frames      int64

	audioMu     sync.Mutex
	audioFile   *os.File
	audioEnc    *wav.Encoder
	audioBuf    *audio.IntBuffer
	samples     int64
	audioClosed bool

	videoErr atomic.Bool
	audioErr atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// Option configures a FileRecorder.
type Option func(*FileRecorder)

// WithVideoOpener replaces the gocv video writer.
func WithVideoOpener(open VideoOpener) Option {
	return func(r *FileRecorder) {
		r.openVideo = open
	}
}

// New starts a session in cfg.Dir. The audio file is created immediately.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*FileRecorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recorder config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	id := uuid.New().String()
	r := &FileRecorder{
		cfg:       cfg,
		id:        id,
		base:      filepath.Join(cfg.Dir, time.Now().Format("20060102-150405")+"-"+id[:8]),
		openVideo: openGocvVideo,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.With("component", "recorder", "session", id)

	f, err := os.Create(r.AudioPath())
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", r.AudioPath(), err)
	}
	r.audioFile = f
	r.audioEnc = wav.NewEncoder(f, cfg.SampleRate, 16, cfg.Channels, 1)
	r.audioBuf = &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: cfg.SampleRate, NumChannels: cfg.Channels},
		SourceBitDepth: 16,
	}

	r.logger.Info("recording started", "video", r.VideoPath(), "audio", r.AudioPath())
	return r, nil
}

// ID returns the session id.
func (r *FileRecorder) ID() string {
	return r.id
}

// VideoPath returns the video file location.
func (r *FileRecorder) VideoPath() string {
	return r.base + ".avi"
}

// AudioPath returns the audio file location.
func (r *FileRecorder) AudioPath() string {
	return r.base + ".wav"
}

// AddFrame appends a frame to the video. It returns false and flags a video
// error when the frame cannot be written.
func (r *FileRecorder) AddFrame(f timewarp.Frame) bool {
	if f.Empty() {
		return false
	}

	r.videoMu.Lock()
	defer r.videoMu.Unlock()

	if r.videoClosed {
		return false
	}
	if r.video == nil {
		vw, err := r.openVideo(r.VideoPath(), r.cfg.Codec, r.cfg.FPS, f.Width, f.Height)
		if err != nil {
			r.fail(&r.videoErr, "video", err)
			return false
		}
		r.video = vw
		r.videoWidth, r.videoHeight = f.Width, f.Height
	}

	if f.Width != r.videoWidth || f.Height != r.videoHeight {
		r.fail(&r.videoErr, "video", fmt.Errorf("frame size %dx%d, recording %dx%d",
			f.Width, f.Height, r.videoWidth, r.videoHeight))
		return false
	}
	if err := r.video.Write(f); err != nil {
		r.fail(&r.videoErr, "video", err)
		return false
	}
	r.frames++
	r.videoErr.Store(false)
	return true
}

// AddAudio appends PCM16 samples to the audio file. It returns false and
// flags an audio error when the samples cannot be written.
func (r *FileRecorder) AddAudio(pcm []int16) bool {
	if len(pcm) == 0 {
		return true
	}

	r.audioMu.Lock()
	defer r.audioMu.Unlock()

	if r.audioClosed {
		return false
	}

	data := r.audioBuf.Data[:0]
	for _, s := range pcm {
		data = append(data, int(s))
	}
	r.audioBuf.Data = data

	if err := r.audioEnc.Write(r.audioBuf); err != nil {
		r.fail(&r.audioErr, "audio", err)
		return false
	}
	r.samples += int64(len(pcm))
	r.audioErr.Store(false)
	return true
}

// Errors reports the current failure flags.
func (r *FileRecorder) Errors() timewarp.RecorderErrors {
	return timewarp.RecorderErrors{
		Video: r.videoErr.Load(),
		Audio: r.audioErr.Load(),
	}
}

// Stats returns how much has been written.
func (r *FileRecorder) Stats() (frames, samples int64) {
	r.videoMu.Lock()
	frames = r.frames
	r.videoMu.Unlock()

	r.audioMu.Lock()
	samples = r.samples
	r.audioMu.Unlock()
	return frames, samples
}

// Close finalizes both files. Later writes are rejected.
func (r *FileRecorder) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.close()
	})
	return r.closeErr
}

func (r *FileRecorder) close() error {
	var errs []error

	r.videoMu.Lock()
	frames := r.frames
	if r.video != nil {
		if err := r.video.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close video: %w", err))
		}
		r.video = nil
	}
	r.videoClosed = true
	r.videoMu.Unlock()

	r.audioMu.Lock()
	samples := r.samples
	if !r.audioClosed {
		r.audioClosed = true
		if err := r.audioEnc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close wav encoder: %w", err))
		}
		if err := r.audioFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audio: %w", err))
		}
	}
	r.audioMu.Unlock()

	r.logger.Info("recording stopped",
		"frames", frames,
		"audio_seconds", float64(samples)/float64(r.cfg.SampleRate*r.cfg.Channels),
	)
	return errors.Join(errs...)
}

func (r *FileRecorder) fail(flag *atomic.Bool, kind string, err error) {
	if !flag.Swap(true) {
		r.logger.Warn("recording "+kind+" write failed", "error", err)
	}
}

// gocvVideo writes frames through OpenCV.
type gocvVideo struct {
	vw *gocv.VideoWriter
}

func openGocvVideo(path, codec string, fps float64, width, height int) (VideoWriter, error) {
	vw, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("open video writer %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("open video writer %s: codec %s not available", path, codec)
	}
	return &gocvVideo{vw: vw}, nil
}

func (g *gocvVideo) Write(f timewarp.Frame) error {
	mat, err := camera.MatFromFrame(f)
	if err != nil {
		return err
	}
	defer mat.Close()
	return g.vw.Write(mat)
}

func (g *gocvVideo) Close() error {
	return g.vw.Close()
}

var _ timewarp.Recorder = (*FileRecorder)(nil)
