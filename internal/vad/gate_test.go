package vad_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alkime/parley/internal/vad"
)

func constant(n int, v int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func sine(n int, amp float64) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(amp * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return s
}

func TestRMS(t *testing.T) {
	t.Parallel()

	require.Zero(t, vad.RMS(nil))
	require.Zero(t, vad.RMS(constant(100, 0)))
	require.InDelta(t, 1000.0, vad.RMS(constant(100, 1000)), 0.01)
	// A full-scale sine has RMS amp/sqrt(2).
	require.InDelta(t, 8000/math.Sqrt2, vad.RMS(sine(16000, 8000)), 80)
}

func TestGate_SilenceNeverFires(t *testing.T) {
	t.Parallel()

	g := vad.New(vad.Config{})
	for i := 0; i < 100; i++ {
		require.False(t, g.Feed(constant(vad.DefaultWindowSamples, 3)))
	}
}

func TestGate_SustainedSpeechFires(t *testing.T) {
	t.Parallel()

	g := vad.New(vad.Config{Threshold: 500, ActiveWindows: 2})

	require.False(t, g.Feed(sine(vad.DefaultWindowSamples, 4000)), "one window is not sustained")
	require.True(t, g.Feed(sine(vad.DefaultWindowSamples, 4000)), "second loud window fires")
}

func TestGate_TransientIsRejected(t *testing.T) {
	t.Parallel()

	g := vad.New(vad.Config{Threshold: 500, ActiveWindows: 2})

	require.False(t, g.Feed(sine(vad.DefaultWindowSamples, 4000)))
	require.False(t, g.Feed(constant(vad.DefaultWindowSamples, 0)), "silence resets the run")
	require.False(t, g.Feed(sine(vad.DefaultWindowSamples, 4000)))
	require.True(t, g.Feed(sine(vad.DefaultWindowSamples, 4000)))
}

func TestGate_WindowsSpanChunkBoundaries(t *testing.T) {
	t.Parallel()

	g := vad.New(vad.Config{Threshold: 500, ActiveWindows: 1, WindowSamples: 1280})

	// 1024-sample chunks, as the capture device delivers them. The
	// first chunk is short of a window; the second completes it.
	loud := sine(1024, 4000)
	require.False(t, g.Feed(loud))
	require.True(t, g.Feed(loud))
}

func TestGate_RearmsAfterFiring(t *testing.T) {
	t.Parallel()

	g := vad.New(vad.Config{Threshold: 500, ActiveWindows: 1})

	require.True(t, g.Feed(sine(vad.DefaultWindowSamples, 4000)))
	require.False(t, g.Feed(constant(vad.DefaultWindowSamples, 0)))
	require.True(t, g.Feed(sine(vad.DefaultWindowSamples, 4000)), "gate fires again after re-arming")
}

func TestGate_Reset(t *testing.T) {
	t.Parallel()

	g := vad.New(vad.Config{Threshold: 500, ActiveWindows: 2})

	require.False(t, g.Feed(sine(vad.DefaultWindowSamples, 4000)))
	g.Reset()
	require.False(t, g.Feed(sine(vad.DefaultWindowSamples, 4000)), "reset clears the consecutive run")
}
