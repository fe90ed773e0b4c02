package audioio

import (
	"context"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// Blocks adapts a started Source into the engine's audio block stream.
// The returned channel is closed when ctx is done or the source stops.
func Blocks(ctx context.Context, src Source) <-chan timewarp.AudioBlock {
	out := make(chan timewarp.AudioBlock, 4)
	stream := src.Stream()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-stream:
				if !ok {
					return
				}
				block := ToBlock(chunk)
				select {
				case out <- block:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// ToBlock converts a chunk into a mono engine block.
func ToBlock(chunk AudioChunk) timewarp.AudioBlock {
	mono := chunk.Mono()
	return timewarp.AudioBlock{
		Samples: SamplesToFloat32(mono),
		PCM:     mono,
	}
}
