// Package gemini implements the remote speech channel over the Gemini
// Live websocket API. A Dialer performs the setup handshake and the
// resulting Channel exchanges raw S16LE PCM frames, hiding the JSON
// and base64 framing from the session layer.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alkime/parley/internal/session"
)

const liveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// frameQueueSize bounds decoded frames awaiting Receive. The session
// layer applies back-pressure by playing synchronously, so this only
// absorbs multi-part server messages.
const frameQueueSize = 32

// Dialer connects to the Live API. One Dialer can open any number of
// independent channels.
type Dialer struct {
	// APIKey authenticates the websocket handshake.
	APIKey string

	// Model is the bare model name, e.g. "gemini-2.0-flash-exp".
	Model string

	// SystemInstruction seeds the conversation, empty for none.
	SystemInstruction string

	// InputRate is the sample rate stamped on outgoing PCM frames.
	InputRate int

	// Endpoint overrides the production websocket URL. Empty means
	// the real service.
	Endpoint string

	// OnTurnComplete, if set, is invoked each time the model finishes
	// a response turn. Called from the channel's reader goroutine.
	OnTurnComplete func()
}

// Dial opens the websocket, performs the setup exchange and starts the
// reader. The returned channel is live once Dial returns.
func (d *Dialer) Dial(ctx context.Context) (session.Channel, error) {
	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = liveEndpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", d.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial live api: %w", err)
	}

	if err := d.handshake(conn); err != nil {
		conn.Close()
		return nil, err
	}

	ch := &Channel{
		conn:      conn,
		inputRate: d.InputRate,
		onTurn:    d.OnTurnComplete,
		frames:    make(chan []byte, frameQueueSize),
		done:      make(chan struct{}),
	}
	go ch.readLoop()

	return ch, nil
}

func (d *Dialer) handshake(conn *websocket.Conn) error {
	setup := setupMessage{
		Setup: setupPayload{
			Model: "models/" + d.Model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}
	if d.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &contentBlock{
			Parts: []contentPart{{Text: d.SystemInstruction}},
		}
	}

	if err := conn.WriteJSON(setup); err != nil {
		return fmt.Errorf("send setup: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read setup response: %w", err)
	}

	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("parse setup response: %w", err)
	}
	if msg.SetupComplete == nil {
		return fmt.Errorf("unexpected setup response: %s", raw)
	}

	slog.Debug("live session established", "model", d.Model)
	return nil
}

// Channel is one live duplex conversation. Safe for one concurrent
// sender and one concurrent receiver.
type Channel struct {
	conn      *websocket.Conn
	inputRate int
	onTurn    func()

	writeMu sync.Mutex

	frames chan []byte
	// readErr is set by readLoop before frames is closed, so a
	// Receive that observes the closed channel sees the final error.
	readErr error

	done      chan struct{}
	closeOnce sync.Once
}

// Send transmits one PCM frame as a realtime media chunk.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return session.ErrChannelClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// A stalled remote can wedge the write on a full TCP buffer;
	// cancellation and Close must still unblock it within a bounded
	// interval. The watcher expires the write deadline to abort the
	// in-flight write.
	c.conn.SetWriteDeadline(time.Time{})
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now())
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now())
		case <-watchDone:
		}
	}()

	err := c.conn.WriteJSON(newAudioInput(frame, c.inputRate))
	close(watchDone)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		select {
		case <-c.done:
			return session.ErrChannelClosed
		default:
		}
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// Receive returns the next synthesized PCM frame. It returns
// session.ErrChannelClosed after a clean remote or local closure.
func (c *Channel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-c.frames:
		if !ok {
			return nil, c.readErr
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears down the websocket. Idempotent. It must not wait on
// writeMu: closing c.done aborts a wedged Send, and WriteControl is
// safe to call concurrently with other writers.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			slog.Debug("close message not delivered", "error", err)
		}

		c.conn.Close()
	})
	return nil
}

// readLoop decodes server messages into the frame queue until the
// connection ends, then records the terminal error and closes frames.
func (c *Channel) readLoop() {
	defer close(c.frames)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = c.terminalError(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.readErr = fmt.Errorf("parse server message: %w", err)
			return
		}

		frames, err := msg.audioFrames()
		if err != nil {
			c.readErr = err
			return
		}

		for _, frame := range frames {
			select {
			case c.frames <- frame:
			case <-c.done:
				c.readErr = session.ErrChannelClosed
				return
			}
		}

		if msg.turnComplete() && c.onTurn != nil {
			c.onTurn()
		}
	}
}

func (c *Channel) terminalError(err error) error {
	select {
	case <-c.done:
		return session.ErrChannelClosed
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return session.ErrChannelClosed
	}
	return fmt.Errorf("read server message: %w", err)
}
