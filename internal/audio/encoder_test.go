package audio_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/alkime/parley/internal/audio"
	"github.com/stretchr/testify/require"
)

func TestTapEncoder_Validation(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	input := make(chan []byte)

	_, err := audio.NewTapEncoder(16000, nil, &out)
	require.Error(t, err)

	_, err = audio.NewTapEncoder(16000, input, nil)
	require.Error(t, err)

	_, err = audio.NewTapEncoder(0, input, &out)
	require.Error(t, err)
}

func TestTapEncoder_EncodesStream(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	input := make(chan []byte, 8)

	enc, err := audio.NewTapEncoder(16000, input, &out)
	require.NoError(t, err)
	require.NoError(t, enc.Start(context.Background()))

	// One second of silence in 2048-byte packets.
	packet := make([]byte, 2048)
	for i := 0; i < 16; i++ {
		input <- packet
	}
	close(input)

	require.NoError(t, enc.Wait())
	require.NotZero(t, out.Len(), "expected MP3 frames to be written")
}

func TestTapEncoder_DoubleStart(t *testing.T) {
	t.Parallel()

	input := make(chan []byte)
	enc, err := audio.NewTapEncoder(16000, input, &bytes.Buffer{})
	require.NoError(t, err)

	require.NoError(t, enc.Start(context.Background()))
	require.Error(t, enc.Start(context.Background()))

	close(input)
	require.NoError(t, enc.Wait())
}
