package credentials

import (
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

// Environment variables consulted by Resolve.
const (
	EnvUserID = "PLAYHT_USER_ID"
	EnvAPIKey = "PLAYHT_API_KEY"
)

// ResolverConfig holds configuration for credential resolution.
type ResolverConfig struct {
	// UserID and APIKey are explicit values; they win over every other source.
	UserID string
	APIKey string

	// APIKeyFile is a file holding the API key. Relative paths are resolved
	// against ConfigDir.
	APIKeyFile string
	ConfigDir  string
}

// Resolve resolves credentials according to the chain:
// 1. explicit values
// 2. api key file
// 3. PLAYHT_USER_ID / PLAYHT_API_KEY
//
// Both a user ID and an API key are required.
func Resolve(cfg ResolverConfig) (*APIKeyCredential, error) {
	userID := cfg.UserID
	if userID == "" {
		userID = os.Getenv(EnvUserID)
	}

	apiKey := cfg.APIKey
	if apiKey == "" && cfg.APIKeyFile != "" {
		key, err := readCredentialFile(cfg.APIKeyFile, cfg.ConfigDir)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.KindAuth, "credentials", "Resolve", err)
		}
		apiKey = key
	}
	if apiKey == "" {
		apiKey = os.Getenv(EnvAPIKey)
	}

	if userID == "" || apiKey == "" {
		return nil, pkgerrors.Newf(pkgerrors.KindAuth, "credentials", "Resolve",
			"user ID and API key are required (set %s and %s)", EnvUserID, EnvAPIKey)
	}
	return NewAPIKeyCredential(userID, apiKey), nil
}

// FromEnv resolves credentials from the environment only.
func FromEnv() (*APIKeyCredential, error) {
	return Resolve(ResolverConfig{})
}

// readCredentialFile reads an API key from a file.
func readCredentialFile(path, configDir string) (string, error) {
	if !filepath.IsAbs(path) && configDir != "" {
		path = filepath.Join(configDir, path)
	}

	//nolint:gosec // G304: File path is from trusted configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
