// Package crypto implements the client-side cryptography for the Filen
// protocol: password key derivation, the metadata envelope, bulk chunk
// AEAD, and the server-side filename lookup hash.
package crypto

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DeriveIterations is the PBKDF2 iteration count for password derivation.
	DeriveIterations = 200000

	// MasterKeyHexLen is the length of a single master key in lowercase hex.
	MasterKeyHexLen = 64
)

// DerivedKeys holds the two values derived from the account password.
// MasterKey decrypts metadata envelopes; AuthPassword is what the login
// endpoint receives instead of the real password.
type DerivedKeys struct {
	MasterKey    string
	AuthPassword string
}

// BadAuthVersionError indicates an auth version this client cannot derive
// keys for.
type BadAuthVersionError struct {
	Version int
}

func (e *BadAuthVersionError) Error() string {
	return fmt.Sprintf("unsupported auth version: %d", e.Version)
}

// DeriveMasterKeys derives the master key and the auth password from the
// account password using PBKDF2-HMAC-SHA512 with 200,000 iterations and a
// 64-byte output.
//
// Version 2 splits the 128-char hex output: the first 64 chars become the
// master key and the SHA-512 of the remaining 64 chars (as ASCII) becomes
// the auth password. Version 1 uses the full hex string for both.
func DeriveMasterKeys(password string, authVersion int, salt string) (DerivedKeys, error) {
	derived := pbkdf2.Key([]byte(password), []byte(salt), DeriveIterations, 64, sha512.New)
	keyHex := hex.EncodeToString(derived)

	switch authVersion {
	case 2:
		sum := sha512.Sum512([]byte(keyHex[MasterKeyHexLen:]))
		return DerivedKeys{
			MasterKey:    keyHex[:MasterKeyHexLen],
			AuthPassword: hex.EncodeToString(sum[:]),
		}, nil
	case 1:
		return DerivedKeys{
			MasterKey:    keyHex,
			AuthPassword: keyHex,
		}, nil
	default:
		return DerivedKeys{}, &BadAuthVersionError{Version: authVersion}
	}
}
