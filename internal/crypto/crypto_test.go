package crypto

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDeriveMasterKeysV2(t *testing.T) {
	keys, err := DeriveMasterKeys("password123", 2, "salt@example.com")
	if err != nil {
		t.Fatalf("DeriveMasterKeys failed: %v", err)
	}
	if len(keys.MasterKey) != MasterKeyHexLen {
		t.Errorf("master key length = %d, want %d", len(keys.MasterKey), MasterKeyHexLen)
	}
	if len(keys.AuthPassword) != 128 {
		t.Errorf("auth password length = %d, want 128", len(keys.AuthPassword))
	}
	if keys.MasterKey == keys.AuthPassword {
		t.Error("v2 master key and auth password must differ")
	}
	for _, s := range []string{keys.MasterKey, keys.AuthPassword} {
		if strings.Trim(s, "0123456789abcdef") != "" {
			t.Errorf("derived value is not lowercase hex: %q", s)
		}
	}

	// Deterministic for the same inputs.
	again, err := DeriveMasterKeys("password123", 2, "salt@example.com")
	if err != nil {
		t.Fatalf("DeriveMasterKeys failed: %v", err)
	}
	if again != keys {
		t.Error("derivation is not deterministic")
	}

	other, err := DeriveMasterKeys("password123", 2, "other@example.com")
	if err != nil {
		t.Fatalf("DeriveMasterKeys failed: %v", err)
	}
	if other.MasterKey == keys.MasterKey {
		t.Error("different salts produced the same master key")
	}
}

func TestDeriveMasterKeysV1(t *testing.T) {
	keys, err := DeriveMasterKeys("password123", 1, "salt@example.com")
	if err != nil {
		t.Fatalf("DeriveMasterKeys failed: %v", err)
	}
	if len(keys.MasterKey) != 128 {
		t.Errorf("v1 master key length = %d, want 128", len(keys.MasterKey))
	}
	if keys.MasterKey != keys.AuthPassword {
		t.Error("v1 master key and auth password must be identical")
	}
}

func TestDeriveMasterKeysBadVersion(t *testing.T) {
	_, err := DeriveMasterKeys("password123", 3, "salt@example.com")
	if err == nil {
		t.Fatal("expected error for unsupported auth version")
	}
	var bad *BadAuthVersionError
	if !errors.As(err, &bad) {
		t.Fatalf("error type = %T, want *BadAuthVersionError", err)
	}
	if bad.Version != 3 {
		t.Errorf("reported version = %d, want 3", bad.Version)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
	}{
		{"simple", `{"name":"report.pdf"}`},
		{"empty", ""},
		{"unicode", "dossier-été 日本語"},
		{"long", strings.Repeat("metadata ", 500)},
	}
	key := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := EncryptMetadata(tt.plaintext, key)
			if err != nil {
				t.Fatalf("EncryptMetadata failed: %v", err)
			}
			if !strings.HasPrefix(envelope, MetadataVersion) {
				t.Errorf("envelope missing version prefix: %q", envelope[:8])
			}

			decrypted, err := DecryptMetadata(envelope, key)
			if err != nil {
				t.Fatalf("DecryptMetadata failed: %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("round trip mismatch: got %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestMetadataWrongKey(t *testing.T) {
	envelope, err := EncryptMetadata("secret", "key-one")
	if err != nil {
		t.Fatalf("EncryptMetadata failed: %v", err)
	}
	_, err = DecryptMetadata(envelope, "key-two")
	if !errors.Is(err, ErrBadAuth) {
		t.Errorf("error = %v, want ErrBadAuth", err)
	}
}

func TestMetadataBadVersion(t *testing.T) {
	for _, envelope := range []string{"001abcdefghijklXYZ", "003something", "00", ""} {
		if _, err := DecryptMetadata(envelope, "key"); !errors.Is(err, ErrBadVersion) {
			t.Errorf("DecryptMetadata(%q) error = %v, want ErrBadVersion", envelope, err)
		}
	}
}

func TestChunkRoundTrip(t *testing.T) {
	keyStr, err := RandomString(FileKeySize)
	if err != nil {
		t.Fatalf("RandomString failed: %v", err)
	}
	key := []byte(keyStr)

	plaintext := bytes.Repeat([]byte("chunk data "), 1000)
	sealed, err := EncryptChunk(plaintext, key)
	if err != nil {
		t.Fatalf("EncryptChunk failed: %v", err)
	}
	if len(sealed) != ChunkNonceLen+len(plaintext)+ChunkTagLen {
		t.Errorf("sealed length = %d, want %d", len(sealed), ChunkNonceLen+len(plaintext)+ChunkTagLen)
	}

	decrypted, err := DecryptChunk(sealed, key)
	if err != nil {
		t.Fatalf("DecryptChunk failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("round trip mismatch")
	}
}

func TestChunkTamperDetected(t *testing.T) {
	key := []byte(strings.Repeat("k", FileKeySize))
	sealed, err := EncryptChunk([]byte("payload"), key)
	if err != nil {
		t.Fatalf("EncryptChunk failed: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := DecryptChunk(sealed, key); err == nil {
		t.Error("expected authentication failure for tampered chunk")
	}
}

func TestChunkBadKeySize(t *testing.T) {
	if _, err := EncryptChunk([]byte("data"), []byte("short")); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := DecryptChunk(make([]byte, 64), []byte("short")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestHashFileName(t *testing.T) {
	h1 := HashFileName("Report.PDF", "User@Example.com", "masterkey")
	h2 := HashFileName("report.pdf", "user@example.com", "masterkey")
	if h1 != h2 {
		t.Error("hash must be case-insensitive on name and email")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64", len(h1))
	}
	if strings.Trim(h1, "0123456789abcdef") != "" {
		t.Errorf("hash is not lowercase hex: %q", h1)
	}
	if HashFileName("report.pdf", "user@example.com", "otherkey") == h1 {
		t.Error("different master keys produced the same hash")
	}
}

func TestHashFileSHA512(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := HashFileSHA512(path)
	if err != nil {
		t.Fatalf("HashFileSHA512 failed: %v", err)
	}
	want := HashSHA512([]byte("hello"))
	if got != want {
		t.Errorf("file hash = %s, want %s", got, want)
	}
}

func TestRandomString(t *testing.T) {
	s, err := RandomString(32)
	if err != nil {
		t.Fatalf("RandomString failed: %v", err)
	}
	if len(s) != 32 {
		t.Errorf("length = %d, want 32", len(s))
	}
	for _, c := range s {
		if !strings.ContainsRune(randomAlphabet, c) {
			t.Errorf("character %q outside protocol alphabet", c)
		}
	}

	other, err := RandomString(32)
	if err != nil {
		t.Fatalf("RandomString failed: %v", err)
	}
	if s == other {
		t.Error("two random strings collided")
	}
}
