// Package config manages local craterctl state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/craterbuild/crater/src/common/paths"
)

// TokenData holds the stored authentication token
type TokenData struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	ServerURL string `json:"server_url"`
	Subject   string `json:"subject,omitempty"`
}

func tokenFilePath() string {
	return paths.Expand("~/.craterctl/token.json")
}

// SaveToken writes the token data to disk, readable only by the owner
func SaveToken(data *TokenData) error {
	path := tokenFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// LoadToken reads the token data from disk
func LoadToken() (*TokenData, error) {
	raw, err := os.ReadFile(tokenFilePath())
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var data TokenData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &data, nil
}

// ClearToken removes the token file; a missing file is not an error
func ClearToken() error {
	if err := os.Remove(tokenFilePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
