// Package ring implements the bounded frame buffer that decouples Capture
// from the Segmenter (SPEC_FULL.md §4.2).
package ring

import (
	"context"
	"errors"
	"io"
	"sync"

	"voxstream/internal/audioio"
)

// ErrTimeout is returned by PopOrWait when no frame arrives before the
// deadline.
var ErrTimeout = errors.New("ring: pop timed out")

// Buffer is a fixed-capacity circular store of audioio.Frame. It is safe
// for one producer and one consumer (or several read-only tappers such as
// Persistence) to use concurrently. The teacher never reaches for
// lock-free structures; a short critical section under a single mutex,
// guarded the same way as the hub's subscriber map, is enough here.
type Buffer struct {
	mu          sync.Mutex
	frames      []audioio.Frame
	capacity    int
	head        int // index of the oldest frame
	size        int
	overwritten int64
	closed      bool

	notify chan struct{} // closed and replaced whenever a frame is pushed
}

// New constructs a Buffer with room for capacity frames.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		frames:   make([]audioio.Frame, capacity),
		capacity: capacity,
		notify:   make(chan struct{}),
	}
}

// Push inserts a frame, overwriting the oldest frame if the buffer is at
// capacity. It never blocks. It returns 1 if a frame was overwritten, 0
// otherwise, so callers can maintain an "overwritten frames" counter.
func (b *Buffer) Push(f audioio.Frame) (overwritten int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.size) % b.capacity
	if b.size == b.capacity {
		b.head = (b.head + 1) % b.capacity
		b.overwritten++
		overwritten = 1
	} else {
		b.size++
	}
	b.frames[tail] = f

	close(b.notify)
	b.notify = make(chan struct{})
	return overwritten
}

// SnapshotLast copies up to n of the most recently pushed frames, oldest
// first. Used to seed a segment's pre-speech pad.
func (b *Buffer) SnapshotLast(n int) []audioio.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.size {
		n = b.size
	}
	out := make([]audioio.Frame, n)
	start := b.head + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.frames[(start+i)%b.capacity]
	}
	return out
}

// PopOrWait removes and returns the oldest frame, blocking until one is
// available, the buffer is closed and drained, or ctx is done. It returns
// io.EOF once Close has been called and no buffered frames remain, so a
// consumer can distinguish "no more frames will ever arrive" from a mere
// wait timeout (ErrTimeout).
func (b *Buffer) PopOrWait(ctx context.Context) (audioio.Frame, error) {
	for {
		b.mu.Lock()
		if b.size > 0 {
			f := b.frames[b.head]
			b.head = (b.head + 1) % b.capacity
			b.size--
			b.mu.Unlock()
			return f, nil
		}
		if b.closed {
			b.mu.Unlock()
			return audioio.Frame{}, io.EOF
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-wait:
			// a frame may now be available; loop and re-check.
		case <-ctx.Done():
			return audioio.Frame{}, ErrTimeout
		}
	}
}

// Close marks the buffer closed: once drained of any remaining frames,
// PopOrWait returns io.EOF instead of blocking. Safe to call once the
// producer (Capture) has stopped pushing.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
	b.notify = make(chan struct{})
}

// Overwritten returns the total number of frames overwritten across the
// buffer's lifetime (SPEC_FULL.md invariant 5).
func (b *Buffer) Overwritten() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overwritten
}

// Len returns the number of frames currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
