// Package channels provides small helpers for non-blocking channel use.
package channels

import (
	"errors"
	"time"
)

var (
	ErrChannelClosed  = errors.New("channel closed")
	ErrChannelTimeout = errors.New("send timeout")
	ErrChannelFull    = errors.New("channel full")
)

// SendNonBlock attempts to send a message without blocking.
// Returns error if the channel is full or closed.
func SendNonBlock[T any](ch chan<- T, msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrChannelClosed
		}
	}()

	select {
	case ch <- msg:
		return nil
	default:
		return ErrChannelFull
	}
}

// SendWithTimeout sends a message with a timeout.
// Returns error if the timeout expires or channel is closed.
func SendWithTimeout[T any](ch chan<- T, msg T, timeout time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrChannelClosed
		}
	}()

	select {
	case ch <- msg:
		return nil
	case <-time.After(timeout):
		return ErrChannelTimeout
	}
}

// RecvNonBlock attempts to receive a message without blocking.
// The second return reports whether a message was received.
func RecvNonBlock[T any](ch <-chan T) (T, bool) {
	select {
	case msg, ok := <-ch:
		return msg, ok
	default:
		var zero T
		return zero, false
	}
}
