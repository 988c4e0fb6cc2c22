// Package drive is the decrypted view of the remote filesystem: folder
// and file nodes, listing caches, path resolution, and the folder
// operations built on them.
package drive

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CrispStrobe/filen-cli/internal/api"
	"github.com/CrispStrobe/filen-cli/internal/crypto"
)

// EncryptedName is shown for entries whose metadata none of the master
// keys can open. Such entries stay listed but cannot be addressed by
// name.
const EncryptedName = "[Encrypted]"

// Folder is a decrypted folder node.
type Folder struct {
	UUID       string
	Name       string
	ParentUUID string
	Color      string
	Timestamp  int64
}

// File is a decrypted file node. Key is the per-file encryption key in
// its string form; LastModified is in milliseconds.
type File struct {
	UUID         string
	Name         string
	ParentUUID   string
	Size         int64
	MIME         string
	Key          string
	LastModified int64
	Hash         string
	Chunks       int
	Region       string
	Bucket       string
	Version      int
}

// KeyBytes returns the file key as raw AES key material. A 32-character
// key is used byte-for-byte; anything else is treated as base64.
func (f *File) KeyBytes() ([]byte, error) {
	if len(f.Key) == crypto.FileKeySize {
		return []byte(f.Key), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(f.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid file key for %s: %w", f.UUID, err)
	}
	return decoded, nil
}

// FileMetadata is the plaintext inside a file's metadata envelope.
type FileMetadata struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	MIME         string `json:"mime"`
	Key          string `json:"key"`
	LastModified int64  `json:"lastModified"`
	Hash         string `json:"hash,omitempty"`
}

// folderNameMeta is the plaintext inside a folder's name envelope.
type folderNameMeta struct {
	Name string `json:"name"`
}

// decryptWithAny tries every master key, newest first, and returns the
// first successful plaintext.
func decryptWithAny(envelope string, masterKeys []string) (string, bool) {
	for i := len(masterKeys) - 1; i >= 0; i-- {
		if plaintext, err := crypto.DecryptMetadata(envelope, masterKeys[i]); err == nil {
			return plaintext, true
		}
	}
	return "", false
}

// folderNameFromPlaintext reads a decrypted folder name. Older
// accounts sealed the bare name; newer ones wrap it in a JSON object.
func folderNameFromPlaintext(plaintext string) string {
	if strings.HasPrefix(plaintext, "{") {
		var meta folderNameMeta
		if err := json.Unmarshal([]byte(plaintext), &meta); err == nil && meta.Name != "" {
			return meta.Name
		}
		return EncryptedName
	}
	if plaintext == "" {
		return EncryptedName
	}
	return plaintext
}

// decodeFolderRecord turns a wire folder record into a node. A record
// no key can decrypt keeps its UUID under the EncryptedName placeholder.
func decodeFolderRecord(rec *api.FolderRecord, masterKeys []string) *Folder {
	folder := &Folder{
		UUID:       rec.UUID,
		Name:       EncryptedName,
		ParentUUID: rec.Parent,
		Color:      rec.Color,
		Timestamp:  rec.Timestamp,
	}
	if plaintext, ok := decryptWithAny(rec.Name, masterKeys); ok {
		folder.Name = folderNameFromPlaintext(plaintext)
	}
	return folder
}

// decodeFileRecord turns a wire file record into a node. Undecryptable
// metadata leaves the placeholder name and the server-reported size.
func decodeFileRecord(rec *api.FileRecord, masterKeys []string) *File {
	file := &File{
		UUID:       rec.UUID,
		Name:       EncryptedName,
		ParentUUID: rec.Parent,
		Size:       rec.Size,
		Chunks:     rec.Chunks,
		Region:     rec.Region,
		Bucket:     rec.Bucket,
		Version:    rec.Version,
	}
	if plaintext, ok := decryptWithAny(rec.Metadata, masterKeys); ok {
		var meta FileMetadata
		if err := json.Unmarshal([]byte(plaintext), &meta); err == nil && meta.Name != "" {
			file.Name = meta.Name
			file.MIME = meta.MIME
			file.Key = meta.Key
			file.LastModified = meta.LastModified
			file.Hash = meta.Hash
			if meta.Size > 0 {
				file.Size = meta.Size
			}
		}
	}
	return file
}

// encodeFolderName seals a folder name into its envelope.
func encodeFolderName(name, masterKey string) (string, error) {
	plaintext, err := json.Marshal(folderNameMeta{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to marshal folder name: %w", err)
	}
	return crypto.EncryptMetadata(string(plaintext), masterKey)
}

// EncodeFileMetadata seals file metadata into its envelope under the
// given master key. The transfer layer uses it when registering
// uploads.
func EncodeFileMetadata(meta *FileMetadata, masterKey string) (string, error) {
	plaintext, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal file metadata: %w", err)
	}
	return crypto.EncryptMetadata(string(plaintext), masterKey)
}
