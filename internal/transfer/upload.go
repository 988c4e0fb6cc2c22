package transfer

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/CrispStrobe/filen-cli/internal/api"
	"github.com/CrispStrobe/filen-cli/internal/crypto"
	"github.com/CrispStrobe/filen-cli/internal/drive"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

// checkpointChunks and checkpointInterval bound how much work a crash
// can lose: progress is reported every 10 chunks or 5 seconds,
// whichever comes first.
const (
	checkpointChunks   = 10
	checkpointInterval = 5 * time.Second
)

// Resume identifies a previously interrupted upload. LastChunk is the
// last chunk index already stored; -1 means none.
type Resume struct {
	FileUUID  string
	FileKey   string
	UploadKey string
	LastChunk int
}

// Uploader runs chunked uploads against a drive.
type Uploader struct {
	drive *drive.Drive
	log   *logging.Logger

	// ShowProgress renders a byte progress bar on stderr.
	ShowProgress bool
}

// NewUploader creates an uploader for the drive.
func NewUploader(d *drive.Drive, log *logging.Logger) *Uploader {
	return &Uploader{drive: d, log: log}
}

// detectMIME guesses a content type from the file extension.
func detectMIME(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// UploadFile encrypts and uploads one local file into the parent
// folder. A non-nil resume continues an interrupted upload: skipped
// chunks are re-read through the content hasher so the final digest
// still covers the whole file, but no bytes are re-sent.
//
// On a chunk failure the returned error is a *ChunkError carrying the
// resume identity. The checkpoint callback, when set, fires every few
// chunks so the caller can persist progress.
func (u *Uploader) UploadFile(ctx context.Context, localPath string, parent *drive.Folder, name string, resume *Resume, checkpoint CheckpointFunc) (*drive.File, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	size := info.Size()
	lastModified := info.ModTime().UnixMilli()

	if size == 0 {
		return u.uploadEmpty(ctx, parent, name, lastModified)
	}

	var fileUUID, fileKey, uploadKey string
	startChunk := 0
	if resume != nil {
		fileUUID = resume.FileUUID
		fileKey = resume.FileKey
		uploadKey = resume.UploadKey
		startChunk = resume.LastChunk + 1
	} else {
		fileUUID = crypto.NewUUID()
		if fileKey, err = crypto.RandomString(crypto.FileKeySize); err != nil {
			return nil, err
		}
		if uploadKey, err = crypto.RandomString(32); err != nil {
			return nil, err
		}
	}
	keyBytes := []byte(fileKey)

	var bar *progressbar.ProgressBar
	if u.ShowProgress {
		bar = progressbar.DefaultBytes(size, name)
		defer bar.Close()
	}

	hasher := sha512.New()
	chunkBuf := make([]byte, ChunkSize)

	// Already-stored chunks still flow through the hasher.
	for i := 0; i < startChunk; i++ {
		n, err := io.ReadFull(f, chunkBuf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("failed to re-read chunk %d: %w", i, err)
		}
		hasher.Write(chunkBuf[:n])
		if bar != nil {
			bar.Add(n)
		}
	}

	totalChunks := int((size + ChunkSize - 1) / ChunkSize)
	var region, bucket string
	lastCheckpoint := time.Now()

	for index := startChunk; index < totalChunks; index++ {
		n, err := io.ReadFull(f, chunkBuf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, &ChunkError{
				FileUUID: fileUUID, FileKey: fileKey, UploadKey: uploadKey,
				LastChunk: index - 1, Err: fmt.Errorf("read failed: %w", err),
			}
		}
		plaintext := chunkBuf[:n]
		hasher.Write(plaintext)

		sealed, err := crypto.EncryptChunk(plaintext, keyBytes)
		if err != nil {
			return nil, err
		}
		chunkHash := crypto.HashSHA512(sealed)

		result, err := u.drive.API().UploadChunk(ctx, fileUUID, index, parent.UUID, uploadKey, chunkHash, sealed)
		if err != nil {
			return nil, &ChunkError{
				FileUUID: fileUUID, FileKey: fileKey, UploadKey: uploadKey,
				LastChunk: index - 1, Err: err,
			}
		}
		if result.Region != "" {
			region, bucket = result.Region, result.Bucket
		}
		if bar != nil {
			bar.Add(n)
		}

		if checkpoint != nil {
			stored := index - startChunk + 1
			if stored%checkpointChunks == 0 || time.Since(lastCheckpoint) >= checkpointInterval {
				checkpoint(Checkpoint{FileUUID: fileUUID, FileKey: fileKey, UploadKey: uploadKey, LastChunk: index})
				lastCheckpoint = time.Now()
			}
		}
	}

	contentHash := hex.EncodeToString(hasher.Sum(nil))
	file, err := u.finalize(ctx, parent, name, fileUUID, fileKey, uploadKey, size, totalChunks, lastModified, contentHash)
	if err != nil {
		return nil, err
	}
	file.Region = region
	file.Bucket = bucket

	u.drive.InvalidateFolder(parent.UUID)
	u.log.Info().Str("name", name).Int64("size", size).Int("chunks", totalChunks).Msg("uploaded")
	return file, nil
}

// finalize registers the uploaded chunks as a visible file.
func (u *Uploader) finalize(ctx context.Context, parent *drive.Folder, name, fileUUID, fileKey, uploadKey string, size int64, chunks int, lastModified int64, contentHash string) (*drive.File, error) {
	creds := u.drive.Credentials()
	masterKey := creds.CurrentMasterKey()
	mimeType := detectMIME(name)

	meta := &drive.FileMetadata{
		Name: name, Size: size, MIME: mimeType, Key: fileKey,
		LastModified: lastModified, Hash: contentHash,
	}
	metadata, err := drive.EncodeFileMetadata(meta, masterKey)
	if err != nil {
		return nil, err
	}
	nameMeta, err := crypto.EncryptMetadata(name, fileKey)
	if err != nil {
		return nil, err
	}
	rm, err := crypto.RandomString(32)
	if err != nil {
		return nil, err
	}

	_, err = u.drive.API().UploadDone(ctx, &api.UploadDoneRequest{
		UUID:       fileUUID,
		Name:       nameMeta,
		NameHashed: crypto.HashFileName(name, creds.Email, masterKey),
		Size:       strconv.FormatInt(size, 10),
		Chunks:     chunks,
		MIME:       mimeType,
		RM:         rm,
		Metadata:   metadata,
		Version:    2,
		UploadKey:  uploadKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize upload of %q: %w", name, err)
	}

	return &drive.File{
		UUID: fileUUID, Name: name, ParentUUID: parent.UUID,
		Size: size, MIME: mimeType, Key: fileKey,
		LastModified: lastModified, Hash: contentHash,
		Chunks: chunks, Version: 2,
	}, nil
}

// uploadEmpty registers a zero-byte file without chunk traffic. The
// content hash stays empty for empty files.
func (u *Uploader) uploadEmpty(ctx context.Context, parent *drive.Folder, name string, lastModified int64) (*drive.File, error) {
	creds := u.drive.Credentials()
	masterKey := creds.CurrentMasterKey()
	mimeType := detectMIME(name)

	fileKey, err := crypto.RandomString(crypto.FileKeySize)
	if err != nil {
		return nil, err
	}
	meta := &drive.FileMetadata{
		Name: name, Size: 0, MIME: mimeType, Key: fileKey,
		LastModified: lastModified, Hash: "",
	}
	metadata, err := drive.EncodeFileMetadata(meta, masterKey)
	if err != nil {
		return nil, err
	}
	nameMeta, err := crypto.EncryptMetadata(name, fileKey)
	if err != nil {
		return nil, err
	}

	fileUUID := crypto.NewUUID()
	err = u.drive.API().UploadEmpty(ctx, &api.UploadEmptyRequest{
		UUID:       fileUUID,
		Name:       nameMeta,
		NameHashed: crypto.HashFileName(name, creds.Email, masterKey),
		Size:       "0",
		Parent:     parent.UUID,
		MIME:       mimeType,
		Metadata:   metadata,
		Version:    2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload empty file %q: %w", name, err)
	}

	u.drive.InvalidateFolder(parent.UUID)
	return &drive.File{
		UUID: fileUUID, Name: name, ParentUUID: parent.UUID,
		MIME: mimeType, Key: fileKey, LastModified: lastModified, Version: 2,
	}, nil
}
