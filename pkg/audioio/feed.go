package audioio

import (
	"io"
	"sync"
	"sync/atomic"
)

// chunkQueue is the delivery channel shared by every backend. A full queue
// drops the newest chunk and counts an overrun; the capture side never
// blocks on a slow consumer.
type chunkQueue struct {
	mu      sync.Mutex
	ch      chan AudioChunk
	running bool
	closed  bool

	chunks   atomic.Int64
	samples  atomic.Int64
	overruns atomic.Int64
}

const queueDepth = 10

// open starts a new delivery generation and returns its channel. It returns
// (nil, nil) when already running.
func (q *chunkQueue) open() (chan AudioChunk, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, io.ErrClosedPipe
	}
	if q.running {
		return nil, nil
	}
	q.ch = make(chan AudioChunk, queueDepth)
	q.running = true
	return q.ch, nil
}

// push delivers chunk on ch. It reports false once ch's generation has been
// shut down, which tells the producer to exit.
func (q *chunkQueue) push(ch chan AudioChunk, chunk AudioChunk) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running || q.ch != ch {
		return false
	}
	select {
	case ch <- chunk:
		q.chunks.Add(1)
		q.samples.Add(int64(len(chunk.Samples)))
	default:
		q.overruns.Add(1)
	}
	return true
}

// shutdown closes the current generation. It reports whether anything was
// running.
func (q *chunkQueue) shutdown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return false
	}
	q.running = false
	close(q.ch)
	return true
}

// seal marks the queue closed for good and shuts it down.
func (q *chunkQueue) seal() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.shutdown()
}

func (q *chunkQueue) stream() <-chan AudioChunk {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch
}

func (q *chunkQueue) stats(backend string) SourceStats {
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()

	return SourceStats{
		ChunksRead:  q.chunks.Load(),
		SamplesRead: q.samples.Load(),
		Overruns:    q.overruns.Load(),
		Running:     running,
		Backend:     backend,
	}
}
