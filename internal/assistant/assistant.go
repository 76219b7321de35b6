// Package assistant runs the always-on loop of the voice assistant:
// listen for speech, open a live session, converse until the speaker
// goes quiet, return to listening.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/alkime/parley/internal/audio"
	"github.com/alkime/parley/internal/config"
	"github.com/alkime/parley/internal/gemini"
	"github.com/alkime/parley/internal/session"
	"github.com/alkime/parley/internal/vad"
	"github.com/alkime/parley/pkg/channels"
)

// Phase is what the assistant is doing right now.
type Phase int

const (
	PhaseListening Phase = iota
	PhaseConnecting
	PhaseConversing
)

func (p Phase) String() string {
	switch p {
	case PhaseListening:
		return "listening"
	case PhaseConnecting:
		return "connecting"
	case PhaseConversing:
		return "conversing"
	default:
		return "unknown"
	}
}

// EventKind discriminates assistant events.
type EventKind int

const (
	// EventPhase reports a phase transition; Event.Phase is set.
	EventPhase EventKind = iota
	// EventTurnComplete reports the model finished a response turn.
	EventTurnComplete
	// EventSessionError reports a session that ended in failure;
	// Event.Err is set. The assistant keeps running.
	EventSessionError
)

// Event is a notification for the UI. Delivery is best-effort: a slow
// consumer loses events rather than stalling the assistant.
type Event struct {
	Kind  EventKind
	Phase Phase
	Err   error
}

// DialFunc builds the remote channel dialer for one session. The
// onTurnComplete callback must be wired into the returned dialer.
type DialFunc func(onTurnComplete func()) session.Dialer

// Capture is the input device as the assistant needs it: the session
// streaming surface plus direct chunk delivery for the activation
// loop. Next hands chunks over without an intermediate goroutine, so
// every chunk dequeued before activation reaches the gate and the
// rest stay buffered for the session.
type Capture interface {
	session.Capture
	Next(ctx context.Context) (audio.Chunk, error)
}

// retryDelay spaces out reconnect attempts after a failed dial.
const retryDelay = 2 * time.Second

// activityTick is how often the inactivity watchdog checks the clock.
const activityTick = time.Second

// Assistant owns the shared capture and playback devices across all
// sessions and drives the listen/converse cycle.
type Assistant struct {
	conf    *config.Config
	capture Capture
	player  session.Player
	dial    DialFunc

	gateFeed func([]int16) bool

	events chan Event

	tap        *audio.TapEncoder
	tapC       chan []byte
	lastActive atomic.Int64 // unix nanos of the last model turn
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithDialFunc replaces the Gemini dialer, for tests.
func WithDialFunc(dial DialFunc) Option {
	return func(a *Assistant) { a.dial = dial }
}

// New builds an assistant around the given devices. apiKey
// authenticates the live service.
func New(conf *config.Config, apiKey string, capture Capture, player session.Player, opts ...Option) *Assistant {
	a := &Assistant{
		conf:    conf,
		capture: capture,
		player:  player,
		events:  make(chan Event, 16),
	}

	gate := vad.New(vad.Config{
		Threshold:     conf.GateThreshold,
		ActiveWindows: conf.GateWindows,
	})
	a.gateFeed = gate.Feed

	a.dial = func(onTurnComplete func()) session.Dialer {
		return &gemini.Dialer{
			APIKey:            apiKey,
			Model:             conf.Model,
			SystemInstruction: conf.SystemInstruction,
			InputRate:         conf.CaptureRate,
			OnTurnComplete:    onTurnComplete,
		}
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Events is the UI notification stream. Closed when Run returns.
func (a *Assistant) Events() <-chan Event {
	return a.events
}

// Run cycles between listening and conversing until ctx is canceled.
// Session failures are reported as events and retried; only setup
// failures that cannot recover (the capture tap, the capture device
// itself) end the loop early.
func (a *Assistant) Run(ctx context.Context) error {
	if err := a.startTap(ctx); err != nil {
		return err
	}
	defer a.closeTap()
	defer close(a.events)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if !a.conf.AlwaysActive {
			if err := a.listen(ctx); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
		}

		a.runSession(ctx)
	}
}

// listen feeds the activation gate chunk by chunk until sustained
// speech arrives. The device keeps running afterwards and nothing is
// dequeued past the firing chunk, so the rest of the utterance stays
// buffered for the session.
func (a *Assistant) listen(ctx context.Context) error {
	a.emit(Event{Kind: EventPhase, Phase: PhaseListening})

	if err := a.capture.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	for {
		chunk, err := a.capture.Next(ctx)
		if err != nil {
			// No activation: ctx canceled or the buffer closed. Run
			// owns the shutdown path.
			if stopErr := a.capture.Stop(context.Background()); stopErr != nil {
				slog.Warn("failed to stop capture", "error", stopErr)
			}
			return nil
		}

		if a.gateFeed(audio.BytesToInt16(chunk.Data)) {
			slog.Info("speech detected, opening session")
			return nil
		}
	}
}

// runSession drives one live conversation to its terminal state.
func (a *Assistant) runSession(ctx context.Context) {
	a.emit(Event{Kind: EventPhase, Phase: PhaseConnecting})

	a.touch()
	dialer := a.dial(func() {
		a.touch()
		a.emit(Event{Kind: EventTurnComplete})
	})

	o := session.New(
		session.Config{RemoteOutputRate: a.conf.RemoteOutputRate},
		a.capture, a.player, dialer,
	)

	if err := o.Connect(ctx); err != nil {
		slog.Error("session connect failed", "error", err)
		a.emit(Event{Kind: EventSessionError, Err: err})
		a.stopDevices()
		a.sleep(ctx, retryDelay)
		return
	}

	a.emit(Event{Kind: EventPhase, Phase: PhaseConversing})

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go a.watchdog(watchCtx, o)

	if err := o.Stream(ctx); err != nil {
		slog.Error("session ended with failure", "error", err)
		a.emit(Event{Kind: EventSessionError, Err: err})
		a.sleep(ctx, retryDelay)
		return
	}

	slog.Info("session closed")
}

// watchdog stops the session once the model has been quiet for the
// configured timeout.
func (a *Assistant) watchdog(ctx context.Context, o *session.Orchestrator) {
	ticker := time.NewTicker(activityTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.Stop()
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, a.lastActive.Load()))
			if idle >= a.conf.SessionTimeout {
				slog.Info("session idle, closing", "idle", idle.Round(time.Second))
				o.Stop()
				return
			}
		}
	}
}

func (a *Assistant) touch() {
	a.lastActive.Store(time.Now().UnixNano())
}

// stopDevices cleans up after a failure path where no orchestrator
// teardown ran.
func (a *Assistant) stopDevices() {
	ctx := context.Background()
	if err := a.capture.Stop(ctx); err != nil {
		slog.Warn("failed to stop capture", "error", err)
	}
	if err := a.player.Stop(ctx); err != nil {
		slog.Warn("failed to stop player", "error", err)
	}
}

func (a *Assistant) emit(ev Event) {
	_ = channels.SendNonBlock(a.events, ev)
}

func (a *Assistant) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// startTap wires the MP3 capture tap when configured. The encoder
// runs for the whole assistant lifetime and spans sessions.
func (a *Assistant) startTap(ctx context.Context) error {
	if a.conf.TapPath == "" {
		return nil
	}

	dev, ok := a.capture.(*audio.Capture)
	if !ok {
		return nil
	}

	f, err := os.OpenFile(a.conf.TapPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open tap file: %w", err)
	}

	a.tapC = make(chan []byte, 64)
	enc, err := audio.NewTapEncoder(a.conf.CaptureRate, a.tapC, f)
	if err != nil {
		f.Close()
		return fmt.Errorf("create tap encoder: %w", err)
	}
	if err := enc.Start(ctx); err != nil {
		f.Close()
		return fmt.Errorf("start tap encoder: %w", err)
	}

	dev.SetTap(a.tapC)
	a.tap = enc

	slog.Info("capture tap enabled", "path", a.conf.TapPath)
	return nil
}

func (a *Assistant) closeTap() {
	if a.tap == nil {
		return
	}
	close(a.tapC)
	if err := a.tap.Wait(); err != nil {
		slog.Warn("tap encoder finished with error", "error", err)
	}
}
