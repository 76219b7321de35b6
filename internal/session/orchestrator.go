package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alkime/parley/internal/audio"
)

// State is the session lifecycle machine:
//
//	Idle --Connect--> Connected --Stream--> Streaming
//	Streaming --failure or Stop--> Closing --released--> Closed
type State int32

const (
	StateIdle State = iota
	StateConnected
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Capture is the session's view of the input device.
type Capture interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Stream(ctx context.Context) <-chan audio.Chunk
	Dropped() uint64
}

// Player is the session's view of the output device.
type Player interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	PlaySync(ctx context.Context, pcm []byte, srcRate int) error
}

// Config carries the read-only session parameters.
type Config struct {
	// RemoteOutputRate is the fixed sample rate of frames the remote
	// service synthesizes, independent of the device rate.
	RemoteOutputRate int
}

// Orchestrator owns one remote channel plus the capture and player
// devices for the lifetime of a session. It is not reusable: one
// orchestrator runs one Idle-to-Closed lifecycle.
type Orchestrator struct {
	conf    Config
	capture Capture
	player  Player
	dialer  Dialer

	onState func(State)

	mu     sync.Mutex
	state  State
	ch     Channel
	cancel context.CancelFunc

	errOnce  sync.Once
	firstErr error

	teardown sync.Once
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStateFunc installs an observer invoked on every state
// transition. Called from orchestrator goroutines; must not block.
func WithStateFunc(fn func(State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// New creates an orchestrator in StateIdle.
func New(conf Config, capture Capture, player Player, dialer Dialer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		conf:    conf,
		capture: capture,
		player:  player,
		dialer:  dialer,
		state:   StateIdle,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()

	if o.onState != nil {
		o.onState(s)
	}
}

// Connect dials the remote channel, moving Idle to Connected.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("connect from state %s", state)
	}
	o.mu.Unlock()

	ch, err := o.dialer.Dial(ctx)
	if err != nil {
		return &ChannelError{Err: fmt.Errorf("dial: %w", err)}
	}

	o.mu.Lock()
	o.ch = ch
	o.mu.Unlock()
	o.setState(StateConnected)

	return nil
}

// Stream runs the duplex loops until a terminal condition: a device or
// channel failure, remote closure, ctx cancellation, or Stop. It
// releases the channel and both devices exactly once and always leaves
// the session in StateClosed.
//
// The return value is the single terminal result: nil for an explicit
// stop or clean remote closure, otherwise a *DeviceError or
// *ChannelError for the first failure observed.
func (o *Orchestrator) Stream(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateConnected {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("stream from state %s", state)
	}
	ch := o.ch
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	if err := o.capture.Start(ctx); err != nil {
		o.release(ch)
		o.setState(StateClosed)
		return &DeviceError{Err: fmt.Errorf("start capture: %w", err)}
	}

	if err := o.player.Start(ctx); err != nil {
		o.release(ch)
		o.setState(StateClosed)
		return &DeviceError{Err: fmt.Errorf("start player: %w", err)}
	}

	o.setState(StateStreaming)

	wg := sync.WaitGroup{}
	wg.Go(func() {
		defer cancel() // first loop out cancels the sibling
		o.sendLoop(ctx, ch)
	})
	wg.Go(func() {
		defer cancel()
		o.receiveLoop(ctx, ch)
	})
	wg.Wait()

	o.setState(StateClosing)
	o.release(ch)
	o.setState(StateClosed)

	slog.Debug("session closed", "droppedChunks", o.capture.Dropped())

	// Loops are done (wg.Wait), so firstErr is stable here.
	return o.firstErr
}

// sendLoop forwards captured chunks to the remote channel in strict
// capture order.
func (o *Orchestrator) sendLoop(ctx context.Context, ch Channel) {
	for chunk := range o.capture.Stream(ctx) {
		if err := ch.Send(ctx, chunk.Data); err != nil {
			if !isCancellation(err) {
				o.fail(&ChannelError{Err: fmt.Errorf("send: %w", err)})
			}
			return
		}
	}
}

// receiveLoop plays remote frames in strict arrival order. PlaySync
// blocking on the hardware is the only back-pressure on the remote
// stream.
func (o *Orchestrator) receiveLoop(ctx context.Context, ch Channel) {
	for {
		frame, err := ch.Receive(ctx)
		if err != nil {
			if !errors.Is(err, ErrChannelClosed) && !isCancellation(err) {
				o.fail(&ChannelError{Err: fmt.Errorf("receive: %w", err)})
			}
			return
		}

		if err := o.player.PlaySync(ctx, frame, o.conf.RemoteOutputRate); err != nil {
			if !errors.Is(err, audio.ErrPlayerStopped) && !isCancellation(err) {
				o.fail(&DeviceError{Err: fmt.Errorf("playback: %w", err)})
			}
			return
		}
	}
}

// Stop requests cooperative teardown of a streaming session.
// Idempotent; any number of calls produce exactly one release.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	state := o.state
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		return
	}

	// Connected but never streamed: release the channel directly.
	if state == StateConnected {
		o.mu.Lock()
		ch := o.ch
		o.mu.Unlock()
		o.release(ch)
		o.setState(StateClosed)
	}
}

// release closes the channel and both devices exactly once, regardless
// of how many stop signals arrive or which loop failed first.
func (o *Orchestrator) release(ch Channel) {
	o.teardown.Do(func() {
		if ch != nil {
			if err := ch.Close(); err != nil {
				slog.Warn("failed to close remote channel", "error", err)
			}
		}

		ctx := context.Background()
		if err := o.capture.Stop(ctx); err != nil {
			slog.Warn("failed to stop capture", "error", err)
		}
		if err := o.player.Stop(ctx); err != nil {
			slog.Warn("failed to stop player", "error", err)
		}
	})
}

// fail records the first terminal failure; later failures lose.
func (o *Orchestrator) fail(err error) {
	o.errOnce.Do(func() {
		o.firstErr = err
		slog.Debug("session failure", "error", err)
	})
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
