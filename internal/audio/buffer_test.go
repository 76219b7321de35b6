package audio_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alkime/parley/internal/audio"
	"github.com/stretchr/testify/require"
)

func testChunk(seq int) audio.Chunk {
	return audio.Chunk{Data: []byte{byte(seq), byte(seq >> 8)}, Rate: 16000}
}

func TestChunkBuffer_FIFO(t *testing.T) {
	t.Parallel()

	buf := audio.NewChunkBuffer(8)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		buf.Push(testChunk(i))
	}

	for i := 0; i < 5; i++ {
		got, err := buf.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, testChunk(i), got)
	}

	require.Zero(t, buf.Dropped())
}

func TestChunkBuffer_DropOldest(t *testing.T) {
	t.Parallel()

	const (
		capacity = 4
		fed      = 11
	)

	buf := audio.NewChunkBuffer(capacity)

	for i := 0; i < fed; i++ {
		buf.Push(testChunk(i))
	}

	// Fed beyond capacity before any read: exactly the most recent
	// `capacity` chunks remain and the rest were counted as dropped.
	require.Equal(t, capacity, buf.Len())
	require.Equal(t, uint64(fed-capacity), buf.Dropped())

	ctx := context.Background()
	for i := fed - capacity; i < fed; i++ {
		got, err := buf.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, testChunk(i), got)
	}
}

func TestChunkBuffer_NextBlocksUntilPush(t *testing.T) {
	t.Parallel()

	buf := audio.NewChunkBuffer(4)

	go func() {
		time.Sleep(20 * time.Millisecond)
		buf.Push(testChunk(7))
	}()

	got, err := buf.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, testChunk(7), got)
}

func TestChunkBuffer_NextAfterClose(t *testing.T) {
	t.Parallel()

	buf := audio.NewChunkBuffer(4)
	buf.Push(testChunk(1))
	buf.Close()

	// Closed wins: buffered chunks are stale and not replayed.
	_, err := buf.Next(context.Background())
	require.ErrorIs(t, err, audio.ErrBufferClosed)
}

func TestChunkBuffer_CloseUnblocksNext(t *testing.T) {
	t.Parallel()

	buf := audio.NewChunkBuffer(4)

	errC := make(chan error, 1)
	go func() {
		_, err := buf.Next(context.Background())
		errC <- err
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	select {
	case err := <-errC:
		require.ErrorIs(t, err, audio.ErrBufferClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Close")
	}
}

func TestChunkBuffer_CloseIdempotent(t *testing.T) {
	t.Parallel()

	buf := audio.NewChunkBuffer(4)
	buf.Close()
	buf.Close()

	buf.Push(testChunk(1)) // ignored after close
	require.Zero(t, buf.Len())
}

func TestChunkBuffer_NextHonorsContext(t *testing.T) {
	t.Parallel()

	buf := audio.NewChunkBuffer(4)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := buf.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChunkBuffer_ProducerConsumer(t *testing.T) {
	t.Parallel()

	const total = 500

	buf := audio.NewChunkBuffer(16)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		for i := 0; i < total; i++ {
			buf.Push(audio.Chunk{Data: fmt.Appendf(nil, "%04d", i), Rate: 16000})
			time.Sleep(time.Millisecond / 5)
		}
		buf.Close()
	}()

	var received int
	var last string
	for {
		chunk, err := buf.Next(ctx)
		if err != nil {
			break
		}

		// Drop-oldest never reorders: sequence numbers stay increasing.
		got := string(chunk.Data)
		require.Greater(t, got, last)
		last = got
		received++
	}

	// Every pushed chunk was delivered, dropped by overflow, or still
	// buffered when the producer closed.
	require.Equal(t, total, received+int(buf.Dropped())+buf.Len())
}
