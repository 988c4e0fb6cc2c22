package transfer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/CrispStrobe/filen-cli/internal/crypto"
	"github.com/CrispStrobe/filen-cli/internal/drive"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

// Downloader runs chunked downloads from a drive.
type Downloader struct {
	drive *drive.Drive
	log   *logging.Logger

	// ShowProgress renders a byte progress bar on stderr.
	ShowProgress bool
}

// NewDownloader creates a downloader for the drive.
func NewDownloader(d *drive.Drive, log *logging.Logger) *Downloader {
	return &Downloader{drive: d, log: log}
}

// DownloadFile fetches and decrypts a remote file to localPath.
// lastChunk resumes an interrupted download: the local file is
// truncated to the bytes already written and fetching continues at
// lastChunk+1; pass -1 for a fresh download. A chunk failure returns a
// *ChunkError with the index of the last chunk written.
func (d *Downloader) DownloadFile(ctx context.Context, file *drive.File, localPath string, lastChunk int, checkpoint CheckpointFunc) error {
	if file.Chunks == 0 || file.Size == 0 {
		if err := os.WriteFile(localPath, nil, 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", localPath, err)
		}
		return nil
	}

	key, err := file.KeyBytes()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	// Every chunk except the last decrypts to exactly ChunkSize bytes,
	// so the resume offset is exact.
	resumeOffset := int64(lastChunk+1) * ChunkSize
	if err := f.Truncate(resumeOffset); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", localPath, err)
	}
	if _, err := f.Seek(resumeOffset, 0); err != nil {
		return fmt.Errorf("failed to seek %s: %w", localPath, err)
	}

	var bar *progressbar.ProgressBar
	if d.ShowProgress {
		bar = progressbar.DefaultBytes(file.Size, file.Name)
		bar.Add64(resumeOffset)
		defer bar.Close()
	}

	lastCheckpoint := time.Now()
	for index := lastChunk + 1; index < file.Chunks; index++ {
		sealed, err := d.drive.API().DownloadChunk(ctx, file.Region, file.Bucket, file.UUID, index)
		if err != nil {
			return &ChunkError{FileUUID: file.UUID, LastChunk: index - 1, Err: err}
		}
		plaintext, err := crypto.DecryptChunk(sealed, key)
		if err != nil {
			return &ChunkError{FileUUID: file.UUID, LastChunk: index - 1, Err: err}
		}
		if _, err := f.Write(plaintext); err != nil {
			return &ChunkError{FileUUID: file.UUID, LastChunk: index - 1, Err: err}
		}
		if bar != nil {
			bar.Add(len(plaintext))
		}

		if checkpoint != nil {
			done := index - lastChunk
			if done%checkpointChunks == 0 || time.Since(lastCheckpoint) >= checkpointInterval {
				checkpoint(Checkpoint{FileUUID: file.UUID, LastChunk: index})
				lastCheckpoint = time.Now()
			}
		}
	}

	d.log.Info().Str("name", file.Name).Int64("size", file.Size).Msg("downloaded")
	return nil
}

// Verify compares a local file's SHA-512 against the remote record's
// content hash. Files without a recorded hash (pre-hash uploads and
// empty files) verify trivially.
func Verify(localPath string, file *drive.File) error {
	if file.Hash == "" {
		return nil
	}
	localHash, err := crypto.HashFileSHA512(localPath)
	if err != nil {
		return err
	}
	if localHash != file.Hash {
		return fmt.Errorf("hash mismatch for %s: local %s, remote %s", localPath, localHash[:16], file.Hash[:16])
	}
	return nil
}
