package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MetadataVersion is the envelope version tag this client produces and
	// accepts. Any other prefix fails decryption.
	MetadataVersion = "002"

	// MetadataIVLen is the length of the printable ASCII IV embedded in the
	// envelope. The IV's UTF-8 bytes are the GCM nonce; the server wire
	// format requires it to stay printable.
	MetadataIVLen = 12
)

var (
	// ErrBadVersion indicates an envelope whose prefix is not "002".
	ErrBadVersion = errors.New("metadata envelope: unsupported version")

	// ErrBadAuth indicates a GCM tag mismatch (wrong key or tampered data).
	ErrBadAuth = errors.New("metadata envelope: authentication failed")
)

// metadataKey expands a string key into the 32-byte AES key for the
// envelope: PBKDF2-HMAC-SHA512 with the key as both password and salt,
// one iteration.
func metadataKey(key string) []byte {
	kb := []byte(key)
	return pbkdf2.Key(kb, kb, 1, 32, sha512.New)
}

// EncryptMetadata seals a plaintext string into a version-002 envelope:
// "002" + 12-char ASCII IV + base64(ciphertext || 16-byte tag).
func EncryptMetadata(plaintext, key string) (string, error) {
	iv, err := RandomString(MetadataIVLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	block, err := aes.NewCipher(metadataKey(key))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	sealed := gcm.Seal(nil, []byte(iv), []byte(plaintext), nil)
	return MetadataVersion + iv + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptMetadata is the strict inverse of EncryptMetadata. It returns
// ErrBadVersion for an unknown prefix and ErrBadAuth when the GCM tag
// does not verify under the given key.
func DecryptMetadata(envelope, key string) (string, error) {
	if !strings.HasPrefix(envelope, MetadataVersion) {
		return "", ErrBadVersion
	}
	if len(envelope) < len(MetadataVersion)+MetadataIVLen {
		return "", ErrBadVersion
	}

	iv := envelope[len(MetadataVersion) : len(MetadataVersion)+MetadataIVLen]
	sealed, err := base64.StdEncoding.DecodeString(envelope[len(MetadataVersion)+MetadataIVLen:])
	if err != nil {
		return "", fmt.Errorf("metadata envelope: invalid base64: %w", err)
	}

	block, err := aes.NewCipher(metadataKey(key))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, []byte(iv), sealed, nil)
	if err != nil {
		return "", ErrBadAuth
	}
	return string(plaintext), nil
}
