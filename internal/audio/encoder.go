package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	mp3encoder "github.com/braheezy/shine-mp3/pkg/mp3"
)

const (
	// tapBufferThreshold batches PCM before each MP3 encode pass.
	// 4KB = 2048 mono samples = 128ms at 16kHz.
	tapBufferThreshold = 4096
)

// TapEncoder drains raw capture packets from a channel and streams
// them to an MP3 writer. It is the diagnostic recording path: the
// capture device feeds it with non-blocking sends, so a slow disk can
// never back-pressure the live pipeline.
type TapEncoder struct {
	sampleRate int
	input      <-chan []byte
	output     io.Writer

	encoder *mp3encoder.Encoder
	buffer  []byte

	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

// NewTapEncoder creates an MP3 tap for S16LE mono PCM at sampleRate.
func NewTapEncoder(sampleRate int, input <-chan []byte, output io.Writer) (*TapEncoder, error) {
	if input == nil {
		return nil, errors.New("input channel cannot be nil")
	}
	if output == nil {
		return nil, errors.New("output writer cannot be nil")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	return &TapEncoder{
		sampleRate: sampleRate,
		input:      input,
		output:     output,
		buffer:     make([]byte, 0, tapBufferThreshold),
	}, nil
}

// Start begins the encoding goroutine. The tap runs until the input
// channel closes or ctx is cancelled.
func (e *TapEncoder) Start(ctx context.Context) error {
	if e.encoder != nil {
		return errors.New("tap encoder already started")
	}

	// shine-mp3's Write miscounts samples for mono input, so the
	// encoder is created as stereo and fed duplicated channels.
	e.encoder = mp3encoder.NewEncoder(e.sampleRate, 2)

	e.wg.Go(func() {
		defer func() {
			if err := e.flush(); err != nil {
				e.setError(fmt.Errorf("failed to flush tap on shutdown: %w", err))
			}
		}()

		for {
			select {
			case packet, ok := <-e.input:
				if !ok {
					return
				}

				e.buffer = append(e.buffer, packet...)
				if len(e.buffer) >= tapBufferThreshold {
					if err := e.encodeBatch(); err != nil {
						e.setError(err)
						return
					}
				}

			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (e *TapEncoder) encodeBatch() error {
	if len(e.buffer) == 0 {
		return nil
	}

	mono := BytesToInt16(e.buffer)

	stereo := make([]int16, len(mono)*2)
	for i, s := range mono {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}

	if err := e.encoder.Write(e.output, stereo); err != nil {
		return fmt.Errorf("failed to encode MP3 batch: %w", err)
	}

	e.buffer = e.buffer[:0]

	return nil
}

func (e *TapEncoder) flush() error {
	return e.encodeBatch()
}

// Wait blocks until encoding completes and returns the first error
// that occurred, if any.
func (e *TapEncoder) Wait() error {
	e.wg.Wait()
	return e.err
}

func (e *TapEncoder) setError(err error) {
	e.errOnce.Do(func() {
		e.err = err
		slog.Debug("tap encoder error", "error", err)
	})
}
