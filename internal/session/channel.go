// Package session orchestrates one connected lifetime of the remote
// speech channel: two duplex loops move captured chunks out and
// synthesized frames back, with single teardown on the first failure
// or stop.
package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrChannelClosed is returned by Channel.Receive when the remote side
// has closed the stream cleanly.
var ErrChannelClosed = errors.New("remote channel closed")

// Channel is a connected bidirectional stream of binary PCM frames.
// The handshake that produces it belongs to the Dialer; the session
// core needs only send, receive, and close.
type Channel interface {
	// Send writes one PCM frame. It must honor ctx cancellation.
	Send(ctx context.Context, frame []byte) error

	// Receive blocks for the next synthesized PCM frame. Returns
	// ErrChannelClosed on clean remote closure and must honor ctx
	// cancellation.
	Receive(ctx context.Context) ([]byte, error)

	// Close tears the connection down. Idempotent.
	Close() error
}

// Dialer produces a connected Channel. Authentication and handshake
// live behind this boundary.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DeviceError marks a hardware open/read/write failure. Fatal to the
// session: the orchestrator initiates Closing for the whole session.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error: %v", e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ChannelError marks a remote disconnect or protocol violation. Fatal;
// retry policy belongs to the caller, never to the session core.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel error: %v", e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }
