package audio

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alkime/parley/pkg/channels"
)

// ChunkBuffer is the bounded handoff between the hardware capture
// callback and the session send loop: a FIFO of chunks with a
// drop-oldest overflow policy. It has exactly one producer (the
// callback thread) and one consumer (the send loop).
//
// Overflow is diagnostic, never an error: the buffer always holds the
// most recently captured chunks up to its capacity, and Dropped counts
// what was discarded to make room.
type ChunkBuffer struct {
	ch      chan Chunk
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// NewChunkBuffer creates a buffer holding up to capacity chunks.
func NewChunkBuffer(capacity int) *ChunkBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferChunks
	}

	return &ChunkBuffer{
		ch:   make(chan Chunk, capacity),
		done: make(chan struct{}),
	}
}

// Push appends a chunk, discarding the oldest buffered chunk if the
// buffer is full. Pushes after Close are ignored.
func (b *ChunkBuffer) Push(c Chunk) {
	select {
	case <-b.done:
		return
	default:
	}

	for {
		if err := channels.SendNonBlock(b.ch, c); err == nil {
			return
		}

		if _, ok := channels.RecvNonBlock(b.ch); ok {
			b.dropped.Add(1)
		}
	}
}

// Next blocks until a chunk is available, the buffer is closed, or ctx
// is cancelled. After Close it returns ErrBufferClosed without
// yielding chunks buffered before the close.
func (b *ChunkBuffer) Next(ctx context.Context) (Chunk, error) {
	// Closed wins over buffered data: stale chunks are not replayed.
	select {
	case <-b.done:
		return Chunk{}, ErrBufferClosed
	default:
	}

	select {
	case c := <-b.ch:
		return c, nil
	case <-b.done:
		return Chunk{}, ErrBufferClosed
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

// Close terminates the buffer. Idempotent.
func (b *ChunkBuffer) Close() {
	b.once.Do(func() { close(b.done) })
}

// Len returns the number of buffered chunks.
func (b *ChunkBuffer) Len() int {
	return len(b.ch)
}

// Dropped returns the number of chunks discarded by the drop-oldest
// policy since the buffer was created.
func (b *ChunkBuffer) Dropped() uint64 {
	return b.dropped.Load()
}
