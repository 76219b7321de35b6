// Package audio implements the realtime audio pipeline: hardware capture
// and playback via malgo, rate conversion, and the bounded chunk handoff
// between the hardware callback thread and the session loops.
package audio

import (
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"
)

// Errors returned by the capture and playback devices.
var (
	ErrNotStarted    = errors.New("device not started")
	ErrBufferClosed  = errors.New("capture buffer closed")
	ErrPlayerStopped = errors.New("player stopped")
)

const (
	// BytesPerSample is the width of one S16LE mono sample.
	BytesPerSample = 2

	// DefaultChunkFrames is the capture chunk size in frames (64ms at 16kHz).
	DefaultChunkFrames = 1024

	// DefaultBufferChunks bounds the capture handoff buffer. At 1024-frame
	// chunks and 16kHz this is roughly four seconds of backlog before the
	// drop-oldest policy kicks in.
	DefaultBufferChunks = 64

	// UseDefaultDevice selects the system default device instead of an
	// enumerated index.
	UseDefaultDevice = -1
)

// Chunk is one fixed-size unit of PCM moved through the pipeline:
// S16LE mono samples tagged with their sample rate. Data length is
// always an exact multiple of BytesPerSample; partial chunks are
// never delivered.
type Chunk struct {
	Data []byte
	Rate int
}

// Frames returns the number of samples in the chunk.
func (c Chunk) Frames() int {
	return len(c.Data) / BytesPerSample
}

// DeviceConfig describes one side of the duplex hardware boundary.
// Capture and playback must share the same negotiated sample rate;
// that invariant is enforced by config validation, not here.
type DeviceConfig struct {
	SampleRate  int
	Channels    int
	ChunkFrames int
	DeviceIndex int // UseDefaultDevice or an index into the enumeration order
}

func (c *DeviceConfig) withDefaults() *DeviceConfig {
	out := *c
	if out.Channels == 0 {
		out.Channels = 1
	}
	if out.ChunkFrames == 0 {
		out.ChunkFrames = DefaultChunkFrames
	}
	return &out
}

// Info describes an enumerated hardware device.
type Info struct {
	Index     int
	Name      string
	IsDefault bool
}

// ListDevices enumerates capture and playback devices in the order
// used by DeviceConfig.DeviceIndex.
func ListDevices() (inputs, outputs []Info, err error) {
	devCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer uninitContext(devCtx)

	capture, err := devCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	playback, err := devCtx.Devices(malgo.Playback)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	return deviceInfos(capture), deviceInfos(playback), nil
}

func deviceInfos(devices []malgo.DeviceInfo) []Info {
	infos := make([]Info, len(devices))
	for i, d := range devices {
		infos[i] = Info{
			Index:     i,
			Name:      d.Name(),
			IsDefault: d.IsDefault != 0,
		}
	}
	return infos
}
