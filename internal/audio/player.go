package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// playSegment is one in-flight PlaySync buffer. done is closed by the
// hardware callback once the final byte has been handed to the device.
type playSegment struct {
	data []byte
	done chan struct{}
}

// Player owns the output hardware stream. PlaySync is the only write
// path and blocks until the hardware has consumed the buffer; that
// blocking is the pipeline's back-pressure mechanism, so the player
// keeps no queue beyond the segments currently being drained.
type Player struct {
	conf *DeviceConfig

	mu       sync.Mutex
	mgCtx    *malgo.AllocatedContext
	mgDevice *malgo.Device
	queue    []*playSegment
	stopC    chan struct{}
	started  bool
}

// NewPlayer creates a playback device for the given config. The device
// is not opened until Start.
func NewPlayer(conf *DeviceConfig) *Player {
	return &Player{conf: conf.withDefaults()}
}

// Start opens the output stream. Idempotent if already started.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	mgCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	devCnf := malgo.DefaultDeviceConfig(malgo.Playback)
	devCnf.Playback.Format = malgo.FormatS16
	devCnf.Playback.Channels = uint32(p.conf.Channels)
	devCnf.SampleRate = uint32(p.conf.SampleRate)

	if p.conf.DeviceIndex != UseDefaultDevice {
		id, err := deviceID(mgCtx, malgo.Playback, p.conf.DeviceIndex)
		if err != nil {
			uninitContext(mgCtx)
			return err
		}
		devCnf.Playback.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			p.fill(out)
		},
	}

	mgDevice, err := malgo.InitDevice(mgCtx.Context, devCnf, callbacks)
	if err != nil {
		uninitContext(mgCtx)
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := mgDevice.Start(); err != nil {
		mgDevice.Uninit()
		uninitContext(mgCtx)
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	p.mgCtx = mgCtx
	p.mgDevice = mgDevice
	p.stopC = make(chan struct{})
	p.started = true

	slog.Debug("player started",
		"rate", p.conf.SampleRate,
		"device", p.conf.DeviceIndex)

	return nil
}

// fill runs on the hardware callback thread: it drains queued segments
// into the device buffer in FIFO order and zero-fills any remainder.
func (p *Player) fill(out []byte) {
	p.mu.Lock()

	n := 0
	for n < len(out) && len(p.queue) > 0 {
		seg := p.queue[0]
		copied := copy(out[n:], seg.data)
		seg.data = seg.data[copied:]
		n += copied

		if len(seg.data) == 0 {
			close(seg.done)
			p.queue = p.queue[1:]
		}
	}
	p.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

// PlaySync writes S16LE mono PCM to the hardware, resampling from
// srcRate to the device rate first when they differ. It returns only
// once the hardware has consumed the buffer, Stop is called, or ctx is
// cancelled. Returns ErrNotStarted before Start.
func (p *Player) PlaySync(ctx context.Context, pcm []byte, srcRate int) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	stopC := p.stopC
	p.mu.Unlock()

	// Resample outside the lock; the data callback contends on p.mu.
	if srcRate != p.conf.SampleRate {
		pcm = Int16ToBytes(Resample(BytesToInt16(pcm), srcRate, p.conf.SampleRate))
	}

	if len(pcm) == 0 {
		return nil
	}

	seg := &playSegment{data: pcm, done: make(chan struct{})}

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPlayerStopped
	}
	p.queue = append(p.queue, seg)
	p.mu.Unlock()

	select {
	case <-seg.done:
		return nil
	case <-stopC:
		return ErrPlayerStopped
	case <-ctx.Done():
		p.discard(seg)
		return ctx.Err()
	}
}

// discard removes a segment that will no longer be waited on so the
// callback does not play audio nobody asked for.
func (p *Player) discard(seg *playSegment) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.queue {
		if s == seg {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

// Stop releases the output stream and unblocks any in-flight PlaySync.
// Idempotent.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}

	mgDevice, mgCtx := p.mgDevice, p.mgCtx
	p.mgDevice = nil
	p.mgCtx = nil
	p.queue = nil
	close(p.stopC)
	p.started = false
	// Device teardown happens outside the lock: the data callback takes
	// p.mu, and malgo's Stop joins the callback thread.
	p.mu.Unlock()

	stopErr := mgDevice.Stop()
	mgDevice.Uninit()
	uninitContext(mgCtx)

	if stopErr != nil {
		return fmt.Errorf("failed to stop playback device: %w", stopErr)
	}

	slog.Debug("player stopped")

	return nil
}

// IsStarted reports whether the output stream is open.
func (p *Player) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// DeviceRate returns the negotiated hardware sample rate.
func (p *Player) DeviceRate() int {
	return p.conf.SampleRate
}
