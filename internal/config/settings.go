package config

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

// DefaultGatewayURL is the API gateway used when settings.ini does not
// override it.
const DefaultGatewayURL = "https://gateway.filen.io"

// DefaultEgestURL is the download host used when settings.ini does not
// override it.
const DefaultEgestURL = "https://egest.filen.io"

// DefaultIngestURL is the upload host used when settings.ini does not
// override it.
const DefaultIngestURL = "https://ingest.filen.io"

// Settings are the client-wide tunables read from settings.ini. All
// fields have working defaults; the file is optional.
type Settings struct {
	GatewayURL string `ini:"gateway_url"`
	IngestURL  string `ini:"ingest_url"`
	EgestURL   string `ini:"egest_url"`
	LogLevel   string `ini:"log_level"`
	LogFile    string `ini:"log_file"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		GatewayURL: DefaultGatewayURL,
		IngestURL:  DefaultIngestURL,
		EgestURL:   DefaultEgestURL,
		LogLevel:   "info",
	}
}

// LoadSettings reads settings.ini, falling back to defaults for a
// missing file or missing keys.
func LoadSettings() (*Settings, error) {
	s := DefaultSettings()

	path, err := SettingsPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := cfg.Section("client").MapTo(s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return s, nil
}

// SaveSettings writes the settings file.
func SaveSettings(s *Settings) error {
	path, err := SettingsPath()
	if err != nil {
		return err
	}
	cfg := ini.Empty()
	if err := cfg.Section("client").ReflectFrom(s); err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}
	if err := cfg.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
