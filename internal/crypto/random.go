package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// randomAlphabet is the character set for protocol tokens (file keys,
// envelope IVs, upload keys). It matches the set the servers accept in
// query strings and envelope headers.
const randomAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"

// RandomString generates a random token of the given length drawn from
// the protocol alphabet, using crypto/rand.
func RandomString(length int) (string, error) {
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(randomAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}
		result[i] = randomAlphabet[n.Int64()]
	}
	return string(result), nil
}

// NewUUID returns a random v4 UUID string for new files and folders.
func NewUUID() string {
	return uuid.NewString()
}
