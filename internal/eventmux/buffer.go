package eventmux

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// idleDrainPoll bounds how long drain waits for a notify signal before
// re-checking the buffer anyway, so a missed or coalesced notify can never
// stall delivery indefinitely.
const idleDrainPoll = 50 * time.Millisecond

// frameBuffer is a bounded, per-subscriber backlog keyed by frame seq. A
// slow subscriber falls behind the producer rather than stalling it: once
// the backlog is full, the oldest unread frame is evicted to make room for
// the newest one.
type frameBuffer struct {
	cache *lru.Cache[int64, Frame]
}

func newFrameBuffer(capacity int) *frameBuffer {
	cache, _ := lru.New[int64, Frame](capacity) // error only for capacity <= 0
	return &frameBuffer{cache: cache}
}

func (b *frameBuffer) push(f Frame) {
	b.cache.Add(f.Seq, f)
}

// popFrom returns the frame at seq if it is still buffered, along with the
// seq to resume from next. If seq itself was evicted (the reader fell far
// enough behind), it instead returns the lowest buffered seq at or above
// seq, skipping the gap. ok is false when nothing at or above seq is
// buffered yet.
func (b *frameBuffer) popFrom(seq int64) (f Frame, next int64, ok bool) {
	if v, present := b.cache.Peek(seq); present {
		b.cache.Remove(seq)
		return v, seq + 1, true
	}

	keys := b.cache.Keys()
	found := false
	var lowest int64
	for _, k := range keys {
		if k < seq {
			continue
		}
		if !found || k < lowest {
			lowest = k
			found = true
		}
	}
	if !found {
		return Frame{}, seq, false
	}
	v, _ := b.cache.Peek(lowest)
	b.cache.Remove(lowest)
	return v, lowest + 1, true
}

// drain delivers buffered frames to out in seq order, starting at 1,
// waking on notify whenever the producer pushes, and otherwise polling at
// idleDrainPoll so a coalesced notify can't stall delivery. Returns (closing
// out) once ctx is cancelled.
func (b *frameBuffer) drain(ctx context.Context, notify <-chan struct{}, out chan<- Frame) {
	defer close(out)
	var next int64 = 1
	for {
		if f, advanced, ok := b.popFrom(next); ok {
			select {
			case out <- f:
				next = advanced
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-notify:
		case <-time.After(idleDrainPoll):
		case <-ctx.Done():
			return
		}
	}
}
