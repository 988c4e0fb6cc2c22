package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	// FileKeySize is the size of a per-file AES-256 key. File keys are
	// 32-character random ASCII tokens whose UTF-8 bytes form the key.
	FileKeySize = 32

	// ChunkNonceLen is the GCM nonce length prepended to each chunk.
	ChunkNonceLen = 12

	// ChunkTagLen is the GCM tag length appended to each chunk.
	ChunkTagLen = 16
)

// EncryptChunk seals one plaintext chunk with AES-256-GCM under the file
// key. The output layout is nonce(12) || ciphertext || tag(16), which is
// the exact byte layout the storage backend expects.
func EncryptChunk(plaintext, key []byte) ([]byte, error) {
	if len(key) != FileKeySize {
		return nil, fmt.Errorf("file key must be %d bytes, got %d", FileKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, ChunkNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptChunk opens a chunk produced by EncryptChunk. Any corruption of
// the nonce, ciphertext, or tag fails the GCM check.
func DecryptChunk(sealed, key []byte) ([]byte, error) {
	if len(key) != FileKeySize {
		return nil, fmt.Errorf("file key must be %d bytes, got %d", FileKeySize, len(key))
	}
	if len(sealed) < ChunkNonceLen+ChunkTagLen {
		return nil, fmt.Errorf("encrypted chunk too short: %d bytes", len(sealed))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, sealed[:ChunkNonceLen], sealed[ChunkNonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("chunk decryption failed: %w", err)
	}
	return plaintext, nil
}
