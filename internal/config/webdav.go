package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// WebDAV server defaults. The default credentials are deliberately weak
// and printed at startup; the server binds localhost unless configured
// otherwise.
const (
	DefaultWebDAVHost     = "127.0.0.1"
	DefaultWebDAVPort     = 8080
	DefaultWebDAVUser     = "filen"
	DefaultWebDAVPassword = "filen-webdav"
)

// WebDAVConfig is the persisted WebDAV server configuration.
type WebDAVConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// DefaultWebDAVConfig returns the configuration used before the user
// customizes anything: plain HTTP on localhost:8080.
func DefaultWebDAVConfig() *WebDAVConfig {
	return &WebDAVConfig{
		Host:     DefaultWebDAVHost,
		Port:     DefaultWebDAVPort,
		Protocol: "http",
		Username: DefaultWebDAVUser,
		Password: DefaultWebDAVPassword,
	}
}

// URL returns the server's base URL.
func (c *WebDAVConfig) URL() string {
	return fmt.Sprintf("%s://%s:%d", c.Protocol, c.Host, c.Port)
}

// LoadWebDAVConfig reads the persisted configuration, falling back to
// defaults when no file exists.
func LoadWebDAVConfig() (*WebDAVConfig, error) {
	path, err := WebDAVConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultWebDAVConfig(), nil
		}
		return nil, fmt.Errorf("failed to read webdav config: %w", err)
	}

	c := DefaultWebDAVConfig()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse webdav config: %w", err)
	}
	return c, nil
}

// SaveWebDAVConfig persists the configuration with owner-only
// permissions since it carries the basic-auth password.
func SaveWebDAVConfig(c *WebDAVConfig) error {
	path, err := WebDAVConfigPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal webdav config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write webdav config: %w", err)
	}
	return nil
}
