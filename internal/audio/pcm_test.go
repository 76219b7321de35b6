package audio_test

import (
	"testing"

	"github.com/alkime/parley/internal/audio"
	"github.com/stretchr/testify/require"
)

func TestBytesToInt16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    []byte
		expected []int16
	}{
		{
			name:     "empty",
			input:    []byte{},
			expected: nil,
		},
		{
			name:     "single sample",
			input:    []byte{0x00, 0x01}, // 256 little-endian
			expected: []int16{256},
		},
		{
			name:     "negative sample",
			input:    []byte{0xFF, 0xFF},
			expected: []int16{-1},
		},
		{
			name:     "extremes",
			input:    []byte{0xFF, 0x7F, 0x00, 0x80},
			expected: []int16{32767, -32768},
		},
		{
			name:     "odd byte count truncates",
			input:    []byte{0x01, 0x00, 0x02},
			expected: []int16{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, audio.BytesToInt16(tt.input))
		})
	}
}

func TestInt16ToBytes(t *testing.T) {
	t.Parallel()

	require.Nil(t, audio.Int16ToBytes(nil))
	require.Equal(t,
		[]byte{0x00, 0x01, 0xFF, 0xFF},
		audio.Int16ToBytes([]int16{256, -1}))
}

func TestPCMRoundTrip(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	require.Equal(t, samples, audio.BytesToInt16(audio.Int16ToBytes(samples)))
}
