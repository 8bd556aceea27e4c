// Package config handles the XDG configuration directory, persisted
// settings, and stored backend credentials.
package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// AppName is the application directory name.
	AppName = "taskboard"

	settingsFile    = "config.json"
	credentialsFile = "credentials.json"
)

// Settings are the persisted defaults for flags like --backend-url so they
// only need to be passed once.
type Settings struct {
	BackendURL string `json:"backendUrl,omitempty"`
	AnonKey    string `json:"anonKey,omitempty"`
	Local      bool   `json:"local,omitempty"`
	DataDir    string `json:"dataDir,omitempty"`
}

// Credentials hold the backend access token from the last sign-in.
type Credentials struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId,omitempty"`
	Email       string `json:"email,omitempty"`
}

// DefaultDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// EnsureDir creates the config directory with mode 0700.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o700)
}

// Load reads settings from dir. A missing file yields zero settings.
func Load(dir string) (*Settings, error) {
	b, err := os.ReadFile(filepath.Join(dir, settingsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes settings to dir, creating it if needed.
func Save(dir string, s *Settings) error {
	if err := EnsureDir(dir); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, settingsFile), append(b, '\n'), 0o600)
}

// LoadCredentials reads the stored sign-in. A missing file yields nil.
func LoadCredentials(dir string) (*Credentials, error) {
	b, err := os.ReadFile(filepath.Join(dir, credentialsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if c.AccessToken == "" && c.Email == "" {
		return nil, nil
	}
	return &c, nil
}

// SaveCredentials writes the sign-in with owner-only permissions.
func SaveCredentials(dir string, c *Credentials) error {
	if err := EnsureDir(dir); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, credentialsFile), append(b, '\n'), 0o600)
}

// ClearCredentials removes the stored sign-in. Already-absent is not an error.
func ClearCredentials(dir string) error {
	err := os.Remove(filepath.Join(dir, credentialsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
