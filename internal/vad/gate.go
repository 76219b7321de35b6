// Package vad detects voice activity on the capture stream with an
// RMS energy gate. The assistant uses it to decide when idle listening
// should turn into a live session.
package vad

import "math"

const (
	// DefaultWindowSamples is 80ms at 16kHz, the analysis granularity.
	DefaultWindowSamples = 1280

	// DefaultThreshold separates breathing-room noise from speech on
	// a typical near-field microphone.
	DefaultThreshold = 500.0

	// DefaultActiveWindows is how many consecutive loud windows arm
	// the gate. Two windows rejects single transients like a door
	// slam.
	DefaultActiveWindows = 2
)

// Config tunes the gate. Zero values select the defaults.
type Config struct {
	Threshold     float64
	WindowSamples int
	ActiveWindows int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.WindowSamples <= 0 {
		c.WindowSamples = DefaultWindowSamples
	}
	if c.ActiveWindows <= 0 {
		c.ActiveWindows = DefaultActiveWindows
	}
	return c
}

// Gate accumulates capture samples and fires once sustained energy
// crosses the threshold. Not safe for concurrent use; feed it from a
// single goroutine.
type Gate struct {
	conf    Config
	pending []int16
	run     int
}

func New(conf Config) *Gate {
	return &Gate{conf: conf.withDefaults()}
}

// Feed consumes capture samples in arrival order and reports whether
// the gate fired. Partial analysis windows carry over to the next
// call, so chunk boundaries do not have to align with windows. After
// firing, the gate re-arms from silence.
func (g *Gate) Feed(samples []int16) bool {
	g.pending = append(g.pending, samples...)

	fired := false
	for len(g.pending) >= g.conf.WindowSamples {
		window := g.pending[:g.conf.WindowSamples]
		g.pending = g.pending[g.conf.WindowSamples:]

		if RMS(window) >= g.conf.Threshold {
			g.run++
			if g.run >= g.conf.ActiveWindows {
				fired = true
				g.run = 0
			}
		} else {
			g.run = 0
		}
	}

	if len(g.pending) == 0 {
		g.pending = nil
	}
	return fired
}

// Reset drops buffered samples and the consecutive-window count.
func (g *Gate) Reset() {
	g.pending = nil
	g.run = 0
}

// RMS is the root-mean-square amplitude of the samples, 0 for an
// empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
