package audioio

import (
	"context"
	"io"
	"testing"
	"time"
)

// fastConfig produces a block every 10ms.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.BufferSamples = 441
	return cfg
}

func recv(t *testing.T, ch <-chan AudioChunk) AudioChunk {
	t.Helper()
	select {
	case chunk, ok := <-ch:
		if !ok {
			t.Fatal("stream closed")
		}
		return chunk
	case <-time.After(time.Second):
		t.Fatal("no chunk within 1s")
	}
	return AudioChunk{}
}

func TestMockSource_Lifecycle(t *testing.T) {
	src := NewMockSource(fastConfig(), nil)
	ctx := context.Background()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := src.Stream()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if src.Stream() != first {
		t.Error("second Start replaced the stream")
	}

	src.Stop()
	src.Stop()
	for range first {
	}
	if src.Stats().Running {
		t.Error("still running after Stop")
	}

	// A stopped source restarts with a fresh stream.
	if err := src.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	recv(t, src.Stream())

	src.Close()
	if err := src.Start(ctx); err != io.ErrClosedPipe {
		t.Errorf("Start after Close: got %v, want ErrClosedPipe", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestMockSource_ChunkShape(t *testing.T) {
	cfg := fastConfig()
	cfg.Channels = 2
	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	chunk := recv(t, src.Stream())

	if len(chunk.Samples) != 441*2 || chunk.SampleRate != 44100 || chunk.Channels != 2 {
		t.Fatalf("unexpected chunk: %d samples, %d Hz, %d ch", len(chunk.Samples), chunk.SampleRate, chunk.Channels)
	}
	var nonZero bool
	for i := 0; i < len(chunk.Samples); i += 2 {
		if chunk.Samples[i] != chunk.Samples[i+1] {
			t.Fatalf("frame %d: channels differ", i/2)
		}
		nonZero = nonZero || chunk.Samples[i] != 0
	}
	if !nonZero {
		t.Error("tone produced silence")
	}
}

func TestMockSource_Bursts(t *testing.T) {
	src := NewMockSource(fastConfig(), nil, WithBursts(3, 0.9))

	for i := 1; i <= 6; i++ {
		var peak float32
		for _, s := range src.generateChunk().Float32() {
			peak = max(peak, s)
		}
		switch loud := i%3 == 0; {
		case loud && peak < 0.8:
			t.Errorf("block %d: burst peak %v", i, peak)
		case !loud && peak != 0:
			t.Errorf("block %d: expected silence, peak %v", i, peak)
		}
	}
}

func TestMockSource_ContextStops(t *testing.T) {
	src := NewMockSource(fastConfig(), nil)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}
	stream := src.Stream()
	recv(t, stream)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream not closed after cancel")
		}
	}
}

func TestMockSource_Stats(t *testing.T) {
	src := NewMockSource(fastConfig(), nil)
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		recv(t, src.Stream())
	}

	st := src.Stats()
	if st.ChunksRead < 3 || st.SamplesRead < 3*441 {
		t.Errorf("counters too low: %+v", st)
	}
	if st.Backend != "mock" || !st.Running {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestChunkQueue_Overrun(t *testing.T) {
	var q chunkQueue
	ch, err := q.open()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < queueDepth+3; i++ {
		if !q.push(ch, AudioChunk{Samples: make([]int16, 4)}) {
			t.Fatalf("push %d rejected", i)
		}
	}
	st := q.stats("test")
	if st.ChunksRead != queueDepth || st.Overruns != 3 {
		t.Errorf("got %d delivered, %d overruns", st.ChunksRead, st.Overruns)
	}

	q.shutdown()
	if q.push(ch, AudioChunk{}) {
		t.Error("push after shutdown accepted")
	}
}

func TestBlocks(t *testing.T) {
	src := NewMockSource(fastConfig(), nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}

	blocks := Blocks(ctx, src)
	block, ok := <-blocks
	if !ok {
		t.Fatal("block stream closed early")
	}
	if len(block.Samples) != 441 || len(block.PCM) != 441 {
		t.Errorf("block sizes: %d samples, %d pcm", len(block.Samples), len(block.PCM))
	}

	src.Stop()
	for range blocks {
	}
}

func TestToBlock_Stereo(t *testing.T) {
	block := ToBlock(AudioChunk{
		Samples:    []int16{16384, 0, -16384, -16384},
		SampleRate: 44100,
		Channels:   2,
	})
	if len(block.PCM) != 2 || block.PCM[0] != 8192 || block.PCM[1] != -16384 {
		t.Fatalf("mono mix: %v", block.PCM)
	}
	if block.Samples[0] != 0.25 || block.Samples[1] != -0.5 {
		t.Errorf("float samples: %v", block.Samples)
	}
}

func TestAudioChunk_PCM(t *testing.T) {
	var chunk AudioChunk
	chunk.FromBytes([]byte{0x02, 0x01, 0x04, 0x03, 0xFF, 0xFF}, 44100, 1)

	want := []int16{0x0102, 0x0304, -1}
	if len(chunk.Samples) != len(want) {
		t.Fatalf("got %d samples", len(chunk.Samples))
	}
	for i := range want {
		if chunk.Samples[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, chunk.Samples[i], want[i])
		}
	}
	if b := SamplesToBytes(chunk.Samples); b[0] != 0x02 || b[1] != 0x01 || len(b) != 6 {
		t.Errorf("SamplesToBytes: %v", b)
	}

	chunk = AudioChunk{Samples: make([]int16, 441), SampleRate: 44100, Channels: 1}
	if d := chunk.Duration(); d < 0.0099 || d > 0.0101 {
		t.Errorf("Duration: got %v, want 0.01", d)
	}
}
