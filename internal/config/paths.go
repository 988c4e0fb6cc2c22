// Package config manages the client's on-disk state under ~/.filen-cli:
// saved credentials, client settings, the WebDAV server configuration,
// and the directories used for batch state and TLS material.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the per-user state directory, created under the home
// directory on first use.
const DirName = ".filen-cli"

// Dir returns the absolute path of the state directory, creating it if
// it does not exist.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// CredentialsPath returns the path of the saved credentials file.
func CredentialsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.json"), nil
}

// SettingsPath returns the path of the client settings file.
func SettingsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.ini"), nil
}

// BatchStateDir returns the directory holding batch state files,
// creating it if needed.
func BatchStateDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	stateDir := filepath.Join(dir, "batch_states")
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create batch state directory: %w", err)
	}
	return stateDir, nil
}

// WebDAVPIDPath returns the path of the WebDAV daemon PID file.
func WebDAVPIDPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "webdav.pid"), nil
}

// WebDAVConfigPath returns the path of the persisted WebDAV server
// configuration.
func WebDAVConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "webdav_config.json"), nil
}

// WebDAVSSLDir returns the directory holding the self-signed TLS
// certificate and key, creating it if needed.
func WebDAVSSLDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	sslDir := filepath.Join(dir, "webdav-ssl")
	if err := os.MkdirAll(sslDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create ssl directory: %w", err)
	}
	return sslDir, nil
}
