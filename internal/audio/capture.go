package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alkime/parley/pkg/channels"
	"github.com/gen2brain/malgo"
)

// Capture owns the input hardware stream. The malgo data callback runs
// on a hardware-driven thread independent of any goroutine scheduling;
// it slices incoming bytes into exact fixed-size chunks and hands them
// to a ChunkBuffer, so no consumer ever observes a partial chunk.
type Capture struct {
	conf *DeviceConfig

	// Optional taps, invoked on the callback thread. Both are
	// non-blocking: Levels writes into a lock-guarded ring, Tap uses a
	// non-blocking channel send.
	levels *LevelRing
	tap    chan<- []byte

	mu       sync.Mutex
	mgCtx    *malgo.AllocatedContext
	mgDevice *malgo.Device
	buf      *ChunkBuffer
	pending  []byte
	started  bool
}

// NewCapture creates a capture device for the given config. The device
// is not opened until Start.
func NewCapture(conf *DeviceConfig) *Capture {
	return &Capture{conf: conf.withDefaults()}
}

// SetLevels installs a ring that receives every captured sample, used
// as the waveform data source. Must be called before Start.
func (c *Capture) SetLevels(ring *LevelRing) {
	c.levels = ring
}

// SetTap installs a channel that receives a copy of every raw capture
// packet (for the MP3 tap). Packets are dropped if the channel is
// full. Must be called before Start.
func (c *Capture) SetTap(tap chan<- []byte) {
	c.tap = tap
}

// Start opens the input stream and registers the data callback.
// Idempotent if already started. Each Start begins a fresh chunk
// sequence: buffered chunks from a previous run are not replayed.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	buf := c.beginRun()

	mgCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	devCnf := malgo.DefaultDeviceConfig(malgo.Capture)
	devCnf.Capture.Format = malgo.FormatS16
	devCnf.Capture.Channels = uint32(c.conf.Channels)
	devCnf.SampleRate = uint32(c.conf.SampleRate)
	devCnf.PeriodSizeInFrames = uint32(c.conf.ChunkFrames)

	if c.conf.DeviceIndex != UseDefaultDevice {
		id, err := deviceID(mgCtx, malgo.Capture, c.conf.DeviceIndex)
		if err != nil {
			uninitContext(mgCtx)
			return err
		}
		devCnf.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, samples []byte, _ uint32) {
			c.onData(buf, samples)
		},
	}

	mgDevice, err := malgo.InitDevice(mgCtx.Context, devCnf, callbacks)
	if err != nil {
		uninitContext(mgCtx)
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	if err := mgDevice.Start(); err != nil {
		mgDevice.Uninit()
		uninitContext(mgCtx)
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	c.mgCtx = mgCtx
	c.mgDevice = mgDevice
	c.buf = buf
	c.started = true

	slog.Debug("capture started",
		"rate", c.conf.SampleRate,
		"chunkFrames", c.conf.ChunkFrames,
		"device", c.conf.DeviceIndex)

	return nil
}

// beginRun resets the per-run callback state. It must complete before
// the device starts delivering callbacks: once the stream is running,
// pending belongs to the callback thread.
func (c *Capture) beginRun() *ChunkBuffer {
	c.pending = c.pending[:0]
	return NewChunkBuffer(DefaultBufferChunks)
}

// onData runs on the hardware callback thread. malgo reuses the sample
// buffer between invocations, so bytes are copied before they are
// retained anywhere.
func (c *Capture) onData(buf *ChunkBuffer, samples []byte) {
	if c.levels != nil {
		c.levels.Write(BytesToInt16(samples))
	}

	if c.tap != nil {
		packet := make([]byte, len(samples))
		copy(packet, samples)
		_ = channels.SendNonBlock(c.tap, packet)
	}

	c.pending = append(c.pending, samples...)

	chunkBytes := c.conf.ChunkFrames * BytesPerSample
	off := 0
	for len(c.pending)-off >= chunkBytes {
		data := make([]byte, chunkBytes)
		copy(data, c.pending[off:off+chunkBytes])
		off += chunkBytes
		buf.Push(Chunk{Data: data, Rate: c.conf.SampleRate})
	}

	// Keep the residue at the front of the same backing array.
	c.pending = append(c.pending[:0], c.pending[off:]...)
}

// Stream yields captured chunks in capture order, blocking while the
// buffer is empty. The sequence ends when Stop is called, the buffer
// closes, or ctx is cancelled. One consumer at a time.
func (c *Capture) Stream(ctx context.Context) <-chan Chunk {
	out := make(chan Chunk)

	c.mu.Lock()
	buf := c.buf
	c.mu.Unlock()

	go func() {
		defer close(out)

		if buf == nil {
			return
		}

		for {
			chunk, err := buf.Next(ctx)
			if err != nil {
				return
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Next returns the next captured chunk, blocking until one is
// available, the buffer closes, or ctx is cancelled. Unlike Stream it
// hands chunks over without an intermediate goroutine, so a consumer
// that stops calling it leaves nothing in flight.
func (c *Capture) Next(ctx context.Context) (Chunk, error) {
	c.mu.Lock()
	buf := c.buf
	c.mu.Unlock()

	if buf == nil {
		return Chunk{}, ErrNotStarted
	}
	return buf.Next(ctx)
}

// Dropped reports how many chunks the overflow policy has discarded in
// the current run. Diagnostic only.
func (c *Capture) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf == nil {
		return 0
	}
	return c.buf.Dropped()
}

// Stop unregisters the callback and releases the stream. Idempotent.
// Any blocked Stream consumer terminates without stale chunks.
func (c *Capture) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	if err := c.mgDevice.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}

	c.mgDevice.Uninit()
	uninitContext(c.mgCtx)
	c.mgDevice = nil
	c.mgCtx = nil
	c.buf.Close()
	c.started = false

	slog.Debug("capture stopped", "dropped", c.buf.Dropped())

	return nil
}

// IsStarted reports whether the input stream is open.
func (c *Capture) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func deviceID(mgCtx *malgo.AllocatedContext, devType malgo.DeviceType, index int) (malgo.DeviceID, error) {
	devices, err := mgCtx.Devices(devType)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	if index < 0 || index >= len(devices) {
		return malgo.DeviceID{}, fmt.Errorf("device index %d out of range (have %d devices)", index, len(devices))
	}

	return devices[index].ID, nil
}

func uninitContext(mgCtx *malgo.AllocatedContext) {
	if mgCtx == nil {
		return
	}

	if err := mgCtx.Uninit(); err != nil {
		slog.Error("failed to uninitialize malgo context", "error", err)
	}
	mgCtx.Free()
}
