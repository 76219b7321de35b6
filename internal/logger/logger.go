package logger

import (
	"log/slog"
	"os"

	"github.com/alkime/parley/internal/config"
)

// SetupLogger configures structured logging based on the configured
// level. Logs go to stderr: stdout belongs to the terminal UI.
func SetupLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	// Create JSON handler for structured logging
	//nolint:exhaustruct // Using default values for other HandlerOptions fields
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})

	logger := slog.New(handler)

	// Set as default logger
	slog.SetDefault(logger)

	return logger
}
