package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CrispStrobe/filen-cli/internal/drive"
	"github.com/CrispStrobe/filen-cli/internal/transfer"
)

// Download transfers remote files into a local directory, creating it
// if needed. Resume and state handling mirror Upload.
func (r *Runner) Download(ctx context.Context, remotePaths []string, localDir string) (*State, error) {
	state, err := Load(ID("download", remotePaths, localDir))
	if err != nil {
		return nil, err
	}
	if state == nil {
		entries, err := ExpandRemote(ctx, r.drive, remotePaths, r.Recursive, r.Filter)
		if err != nil {
			return nil, err
		}
		state = NewDownloadState(remotePaths, localDir, entries)
	} else {
		r.log.Info().Str("id", state.ID).Msg("resuming batch")
	}

	for _, item := range state.Items {
		if item.Status.IsDone() {
			continue
		}
		r.downloadItem(ctx, state, item)
	}

	return state, r.finish(state)
}

func (r *Runner) downloadItem(ctx context.Context, state *State, item *Item) {
	file, err := r.drive.ResolveFile(ctx, item.RemotePath)
	if err != nil {
		var notFound *drive.NotFoundError
		if errors.As(err, &notFound) {
			item.Status = StatusSkippedMissing
		} else {
			item.Status = StatusErrorDownload
		}
		item.Error = err.Error()
		r.save(state)
		return
	}

	if err := os.MkdirAll(filepath.Dir(item.LocalPath), 0o755); err != nil {
		item.Status = StatusErrorParent
		item.Error = err.Error()
		r.save(state)
		return
	}
	resuming := item.Status == StatusInterrupted && item.FileUUID == file.UUID

	if !resuming {
		if info, err := os.Stat(item.LocalPath); err == nil {
			switch r.Policy {
			case PolicySkip:
				item.Status = StatusSkippedConflict
				r.save(state)
				return
			case PolicyNewer:
				if file.LastModified <= info.ModTime().UnixMilli() {
					item.Status = StatusSkippedNewer
					r.save(state)
					return
				}
			}
		}
	}

	lastChunk := -1
	if resuming {
		lastChunk = item.LastChunk
	}

	item.Status = StatusUploading
	item.FileUUID = file.UUID
	r.save(state)

	err = r.dl.DownloadFile(ctx, file, item.LocalPath, lastChunk, func(cp transfer.Checkpoint) {
		item.LastChunk = cp.LastChunk
		r.save(state)
	})
	if err != nil {
		var chunkErr *transfer.ChunkError
		if errors.As(err, &chunkErr) {
			item.Status = StatusInterrupted
			item.LastChunk = chunkErr.LastChunk
		} else {
			item.Status = StatusErrorDownload
		}
		item.Error = err.Error()
		r.save(state)
		return
	}

	if r.VerifyDownloads {
		if err := transfer.Verify(item.LocalPath, file); err != nil {
			item.Status = StatusErrorDownload
			item.Error = fmt.Sprintf("verification failed: %v", err)
			r.save(state)
			return
		}
	}

	if r.PreserveTimestamps && file.LastModified > 0 {
		mtime := time.UnixMilli(file.LastModified)
		if err := os.Chtimes(item.LocalPath, mtime, mtime); err != nil {
			r.log.Warn().Err(err).Str("path", item.LocalPath).Msg("failed to preserve timestamp")
		}
	}

	item.Status = StatusCompleted
	item.Error = ""
	r.save(state)
}
