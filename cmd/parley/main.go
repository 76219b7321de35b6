package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alkime/parley/internal/assistant"
	"github.com/alkime/parley/internal/audio"
	"github.com/alkime/parley/internal/config"
	"github.com/alkime/parley/internal/keyring"
	"github.com/alkime/parley/internal/logger"
	"github.com/alkime/parley/internal/tui"
)

// CLI defines the parley command structure.
type CLI struct {
	// Default command (runs when no subcommand given)
	Run RunCmd `cmd:"" default:"withargs" help:"Run the voice assistant"`

	// Subcommands
	Devices DevicesCmd `cmd:"" help:"List available audio devices"`
	Config  ConfigCmd  `cmd:"" help:"Manage configuration"`
}

// RunCmd is the default command that runs the assistant.
type RunCmd struct {
	GeminiAPIKey string `flag:"" env:"GEMINI_API_KEY" help:"Gemini API key for the live session"`
	Headless     bool   `flag:"" help:"Run without the terminal UI"`
	Record       string `flag:"" optional:"" help:"Record microphone audio to this MP3 file"`
}

// levelWindow is roughly 50ms of samples at 16kHz, enough for the
// waveform display.
const levelWindow = 800

// Run executes the assistant command.
func (c *RunCmd) Run() error {
	conf, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupLogger(conf)

	if c.Record != "" {
		conf.TapPath = c.Record
	}

	// Resolve API key: flag and environment take priority, fallback
	// to keychain.
	if c.GeminiAPIKey == "" {
		secret, err := keyring.Get(keyring.Gemini)
		if err != nil {
			return errors.New(
				"missing Gemini API key: set GEMINI_API_KEY or run 'parley config set-key gemini <key>'")
		}
		c.GeminiAPIKey = secret
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	levels := audio.NewLevelRing(conf.CaptureRate) // one second of history

	capture := audio.NewCapture(&audio.DeviceConfig{
		SampleRate:  conf.CaptureRate,
		ChunkFrames: conf.ChunkFrames,
		DeviceIndex: conf.InputDevice,
	})
	capture.SetLevels(levels)

	player := audio.NewPlayer(&audio.DeviceConfig{
		SampleRate:  conf.PlaybackRate,
		ChunkFrames: conf.ChunkFrames,
		DeviceIndex: conf.OutputDevice,
	})

	a := assistant.New(conf, c.GeminiAPIKey, capture, player)

	wg := sync.WaitGroup{}

	if c.Headless {
		wg.Go(func() {
			for ev := range a.Events() {
				if ev.Kind == assistant.EventPhase {
					slog.Info("phase changed", "phase", ev.Phase.String())
				}
			}
		})

		err = a.Run(ctx)
		wg.Wait()
		return err
	}

	p := tea.NewProgram(tui.New(cancel, a.Events(), waveLevels{ring: levels}, capture.Dropped))

	var runErr error
	wg.Go(func() {
		runErr = a.Run(ctx)
	})

	if _, err := p.Run(); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	cancel()
	wg.Wait()

	fmt.Println("\nbye!")

	return runErr
}

// waveLevels adapts the capture level ring to the waveform's Levels
// control.
type waveLevels struct {
	ring *audio.LevelRing
}

func (w waveLevels) Read() []int16 {
	return w.ring.Latest(levelWindow)
}

// DevicesCmd lists available audio devices.
type DevicesCmd struct{}

// Run executes the devices command.
func (dcmd *DevicesCmd) Run() error {
	inputs, outputs, err := audio.ListDevices()
	if err != nil {
		return fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	fmt.Println("Capture devices:")
	printDevices(inputs)

	fmt.Println("\nPlayback devices:")
	printDevices(outputs)

	return nil
}

func printDevices(devices []audio.Info) {
	for _, dev := range devices {
		marker := " "
		if dev.IsDefault {
			marker = "*"
		}
		fmt.Printf("  %s [%d] %s\n", marker, dev.Index, dev.Name)
	}
}

// ConfigCmd groups configuration-related subcommands.
type ConfigCmd struct {
	SetKey   SetKeyCmd   `cmd:"" help:"Store an API key in system keychain"`
	ListKeys ListKeysCmd `cmd:"" name:"list-keys" help:"Show which API keys are configured"`
}

// SetKeyCmd stores an API key in the system keychain.
type SetKeyCmd struct {
	Service string `arg:"" enum:"gemini" help:"Service name (gemini)"`
	Secret  string `arg:"" help:"API key value"`
}

// Run executes the set-key command.
func (c *SetKeyCmd) Run() error {
	if strings.TrimSpace(c.Secret) == "" {
		return errors.New("API key cannot be empty")
	}

	apiKey, err := keyring.APIKeyFromServiceName(c.Service)
	if err != nil {
		return fmt.Errorf("invalid service: %w", err)
	}

	if err := keyring.Set(apiKey, c.Secret); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	fmt.Printf("%s API key stored in keychain\n", c.Service)

	return nil
}

// ListKeysCmd shows which API keys are configured.
type ListKeysCmd struct{}

// Run executes the list-keys command.
//
//nolint:unparam // error return required by Kong interface
func (c *ListKeysCmd) Run() error {
	if keyring.IsSet(keyring.Gemini) {
		fmt.Println("gemini: configured")
	} else {
		fmt.Println("gemini: not set")
		fmt.Println("\nRun 'parley config set-key gemini <key>' to configure.")
	}

	return nil
}

func main() {
	cli := &CLI{} //nolint:exhaustruct // Kong fills in command fields
	ctx := kong.Parse(cli)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
	os.Exit(0)
}
