package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrNotLoggedIn indicates that no saved credentials exist on disk.
var ErrNotLoggedIn = errors.New("not logged in")

// Credentials is the saved session written after a successful login.
// MasterKeys holds the account's master keys joined by "|", newest last;
// the newest key encrypts new metadata and all keys are tried on
// decryption.
type Credentials struct {
	Email          string `json:"email"`
	APIKey         string `json:"apiKey"`
	MasterKeys     string `json:"masterKeys"`
	BaseFolderUUID string `json:"baseFolderUUID"`
	UserID         int64  `json:"userId"`
	LastLoggedInAt string `json:"lastLoggedInAt"`
}

// MasterKeyList splits the joined master keys, newest last.
func (c *Credentials) MasterKeyList() []string {
	if c.MasterKeys == "" {
		return nil
	}
	return strings.Split(c.MasterKeys, "|")
}

// CurrentMasterKey returns the newest master key, used for all new
// encryption.
func (c *Credentials) CurrentMasterKey() string {
	keys := c.MasterKeyList()
	if len(keys) == 0 {
		return ""
	}
	return keys[len(keys)-1]
}

// SaveCredentials writes the credentials file with owner-only
// permissions and stamps the login time.
func SaveCredentials(c *Credentials) error {
	path, err := CredentialsPath()
	if err != nil {
		return err
	}
	c.LastLoggedInAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// LoadCredentials reads the saved session. It returns ErrNotLoggedIn
// when the file does not exist.
func LoadCredentials() (*Credentials, error) {
	path, err := CredentialsPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if c.APIKey == "" {
		return nil, ErrNotLoggedIn
	}
	return &c, nil
}

// DeleteCredentials removes the saved session. A missing file is not an
// error.
func DeleteCredentials() error {
	path, err := CredentialsPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
