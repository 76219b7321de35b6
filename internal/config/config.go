// Package config loads the assistant's settings from the environment,
// with an optional .env file for development.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	// Audio device settings. The playback rate must equal the capture
	// rate: the codec shares one clock for both directions, so remote
	// audio is resampled to the capture rate before it reaches the
	// device.
	CaptureRate  int `envconfig:"PARLEY_CAPTURE_RATE" default:"16000"`
	PlaybackRate int `envconfig:"PARLEY_PLAYBACK_RATE" default:"16000"`
	ChunkFrames  int `envconfig:"PARLEY_CHUNK_FRAMES" default:"1024"`
	InputDevice  int `envconfig:"PARLEY_INPUT_DEVICE" default:"-1"`
	OutputDevice int `envconfig:"PARLEY_OUTPUT_DEVICE" default:"-1"`

	// Remote service settings.
	Model             string `envconfig:"PARLEY_MODEL" default:"gemini-2.0-flash-exp"`
	SystemInstruction string `envconfig:"PARLEY_SYSTEM_INSTRUCTION" default:"You are a helpful voice assistant. Keep your answers short and conversational."`
	RemoteOutputRate  int    `envconfig:"PARLEY_REMOTE_OUTPUT_RATE" default:"24000"`

	// Activation settings.
	GateThreshold  float64       `envconfig:"PARLEY_GATE_THRESHOLD" default:"500"`
	GateWindows    int           `envconfig:"PARLEY_GATE_WINDOWS" default:"2"`
	SessionTimeout time.Duration `envconfig:"PARLEY_SESSION_TIMEOUT" default:"30s"`
	AlwaysActive   bool          `envconfig:"PARLEY_ALWAYS_ACTIVE" default:"false"`

	// Capture tap: when set, every session's microphone audio is
	// appended to this MP3 file.
	TapPath string `envconfig:"PARLEY_TAP_PATH" default:""`

	// Logging settings
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from .env file and environment variables.
func LoadConfig() (*Config, error) {
	// Try to load .env file (optional for development)
	if err := godotenv.Load(); err != nil {
		// Not an error if file doesn't exist (expected in production)
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	// Parse environment variables into config struct
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the audio hardware cannot honor.
func (c *Config) Validate() error {
	if c.CaptureRate <= 0 {
		return fmt.Errorf("capture rate must be positive, got %d", c.CaptureRate)
	}
	if c.PlaybackRate != c.CaptureRate {
		return fmt.Errorf("playback rate %d must equal capture rate %d: the device runs both directions off one clock",
			c.PlaybackRate, c.CaptureRate)
	}
	if c.RemoteOutputRate <= 0 {
		return fmt.Errorf("remote output rate must be positive, got %d", c.RemoteOutputRate)
	}
	if c.ChunkFrames <= 0 {
		return fmt.Errorf("chunk frames must be positive, got %d", c.ChunkFrames)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive, got %s", c.SessionTimeout)
	}
	return nil
}
