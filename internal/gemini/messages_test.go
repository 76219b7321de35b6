package gemini

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAudioInput_WireShape(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	raw, err := json.Marshal(newAudioInput(pcm, 16000))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	input, ok := decoded["realtimeInput"].(map[string]any)
	require.True(t, ok, "top-level key must be realtimeInput")

	chunks, ok := input["mediaChunks"].([]any)
	require.True(t, ok)
	require.Len(t, chunks, 1)

	chunk := chunks[0].(map[string]any)
	require.Equal(t, "audio/pcm;rate=16000", chunk["mimeType"])
	require.Equal(t, base64.StdEncoding.EncodeToString(pcm), chunk["data"])
}

func TestServerMessage_AudioFrames(t *testing.T) {
	t.Parallel()

	raw := `{
		"serverContent": {
			"modelTurn": {
				"parts": [
					{"text": "thinking out loud"},
					{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "AAEAAg=="}},
					{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "AAM="}}
				]
			},
			"turnComplete": true
		}
	}`

	var msg serverMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	frames, err := msg.audioFrames()
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x00, 0x01, 0x00, 0x02}, {0x00, 0x03}}, frames)
	require.True(t, msg.turnComplete())
}

func TestServerMessage_NoContent(t *testing.T) {
	t.Parallel()

	var msg serverMessage
	require.NoError(t, json.Unmarshal([]byte(`{"setupComplete": {}}`), &msg))

	frames, err := msg.audioFrames()
	require.NoError(t, err)
	require.Empty(t, frames)
	require.False(t, msg.turnComplete())
	require.NotNil(t, msg.SetupComplete)
}

func TestServerMessage_BadBase64(t *testing.T) {
	t.Parallel()

	raw := `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"!!!"}}]}}}`

	var msg serverMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	_, err := msg.audioFrames()
	require.Error(t, err)
}

func TestSetupMessage_WireShape(t *testing.T) {
	t.Parallel()

	setup := setupMessage{
		Setup: setupPayload{
			Model:            "models/gemini-2.0-flash-exp",
			GenerationConfig: generationConfig{ResponseModalities: []string{"AUDIO"}},
			SystemInstruction: &contentBlock{
				Parts: []contentPart{{Text: "be brief"}},
			},
		},
	}

	raw, err := json.Marshal(setup)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"setup": {
			"model": "models/gemini-2.0-flash-exp",
			"generationConfig": {"responseModalities": ["AUDIO"]},
			"systemInstruction": {"parts": [{"text": "be brief"}]}
		}
	}`, string(raw))
}
