package gemini

import (
	"encoding/base64"
	"fmt"
)

// Wire types for the BidiGenerateContent websocket protocol. Field
// names follow the service's camelCase JSON; only the subset this
// client exchanges is modeled.

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model             string           `json:"model"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	SystemInstruction *contentBlock    `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type contentBlock struct {
	Parts []contentPart `json:"parts"`
}

type contentPart struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []blob `json:"mediaChunks"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
}

type serverContent struct {
	ModelTurn    *contentBlock `json:"modelTurn,omitempty"`
	TurnComplete bool          `json:"turnComplete,omitempty"`
	Interrupted  bool          `json:"interrupted,omitempty"`
}

// newAudioInput wraps one PCM frame as a realtime media chunk.
func newAudioInput(pcm []byte, rate int) realtimeInputMessage {
	return realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []blob{{
				MimeType: fmt.Sprintf("audio/pcm;rate=%d", rate),
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
}

// audioFrames decodes the PCM payloads of a model turn, in part
// order. Text-only parts are skipped.
func (m *serverMessage) audioFrames() ([][]byte, error) {
	if m.ServerContent == nil || m.ServerContent.ModelTurn == nil {
		return nil, nil
	}

	var frames [][]byte
	for _, p := range m.ServerContent.ModelTurn.Parts {
		if p.InlineData == nil {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline audio: %w", err)
		}
		frames = append(frames, pcm)
	}

	return frames, nil
}

func (m *serverMessage) turnComplete() bool {
	return m.ServerContent != nil && m.ServerContent.TurnComplete
}
