package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// HashFileName computes the server-side lookup index for a name: an
// HMAC-SHA256 of the lowercase name under a key derived from the master
// key salted with the lowercase email. The result is stable across
// sessions and case-insensitive on both name and email.
func HashFileName(name, email, masterKey string) string {
	hmacKey := pbkdf2.Key([]byte(masterKey), []byte(strings.ToLower(email)), 1, 32, sha512.New)
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write([]byte(strings.ToLower(name)))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashFileSHA512 computes the lowercase-hex SHA-512 of a file's contents.
func HashFileSHA512(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashSHA512 computes the lowercase-hex SHA-512 of a byte slice.
func HashSHA512(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}
