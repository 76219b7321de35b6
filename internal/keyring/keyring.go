// Package keyring provides access to the system keychain for storing API keys.
package keyring

import (
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const serviceName = "parley"

// APIKey represents a named API key stored in the keychain.
type APIKey string

const (
	// Gemini is the keychain entry for the Gemini API key.
	Gemini APIKey = "gemini-api-key"
)

// envOverrides lets CI and headless machines supply keys without a
// keychain daemon.
var envOverrides = map[APIKey]string{
	Gemini: "GEMINI_API_KEY",
}

// DisplayName returns a human-readable name for the API key.
func (k APIKey) DisplayName() string {
	switch k {
	case Gemini:
		return "gemini"
	default:
		return string(k)
	}
}

// Get retrieves an API key, preferring the environment override over
// the system keychain.
func Get(apiKey APIKey) (string, error) {
	if env := envOverrides[apiKey]; env != "" {
		if value := os.Getenv(env); value != "" {
			return value, nil
		}
	}

	value, err := keyring.Get(serviceName, string(apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to get %s from keychain: %w", apiKey.DisplayName(), err)
	}

	return value, nil
}

// Set stores an API key value in the system keychain.
func Set(apiKey APIKey, value string) error {
	if err := keyring.Set(serviceName, string(apiKey), value); err != nil {
		return fmt.Errorf("failed to set %s in keychain: %w", apiKey.DisplayName(), err)
	}

	return nil
}

// IsSet checks if an API key is available from either source.
func IsSet(apiKey APIKey) bool {
	_, err := Get(apiKey)

	return err == nil
}

// APIKeyFromServiceName maps a service name (e.g., "gemini") to an APIKey.
func APIKeyFromServiceName(name string) (APIKey, error) {
	switch name {
	case "gemini":
		return Gemini, nil
	default:
		return "", fmt.Errorf("unknown service: %s", name)
	}
}
