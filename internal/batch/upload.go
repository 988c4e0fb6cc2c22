package batch

import (
	"context"
	"errors"
	"os"
	"path"

	"github.com/CrispStrobe/filen-cli/internal/drive"
	"github.com/CrispStrobe/filen-cli/internal/logging"
	"github.com/CrispStrobe/filen-cli/internal/transfer"
)

// Runner executes batches against a drive. One failed item never stops
// the rest; its status records what went wrong and the state file keeps
// the resume identity.
type Runner struct {
	drive *drive.Drive
	up    *transfer.Uploader
	dl    *transfer.Downloader
	log   *logging.Logger

	// Policy decides name conflicts at the destination.
	Policy ConflictPolicy
	// VerifyDownloads checks downloaded files against their recorded
	// content hash.
	VerifyDownloads bool
	// Recursive descends into directories during enumeration.
	Recursive bool
	// Filter restricts enumerated files by base name; nil admits all.
	Filter *Filter
	// PreserveTimestamps stamps downloaded files with the remote
	// modification time.
	PreserveTimestamps bool
}

// NewRunner creates a batch runner. Conflicts default to skip.
func NewRunner(d *drive.Drive, log *logging.Logger) *Runner {
	return &Runner{
		drive:  d,
		up:     transfer.NewUploader(d, log),
		dl:     transfer.NewDownloader(d, log),
		log:    log,
		Policy: PolicySkip,
	}
}

// ShowProgress toggles per-file progress bars.
func (r *Runner) ShowProgress(show bool) {
	r.up.ShowProgress = show
	r.dl.ShowProgress = show
}

// Upload transfers local files into a remote folder, creating it if
// needed. A previous interrupted run of the same command is resumed
// from its saved state. The state file is deleted when every item ends
// clean and kept otherwise.
func (r *Runner) Upload(ctx context.Context, localPaths []string, remoteDir string) (*State, error) {
	remoteDir = drive.NormalizePath(remoteDir)
	state, err := Load(ID("upload", localPaths, remoteDir))
	if err != nil {
		return nil, err
	}
	if state == nil {
		entries, err := ExpandLocal(localPaths, r.Recursive, r.Filter)
		if err != nil {
			return nil, err
		}
		state = NewUploadState(localPaths, remoteDir, entries)
	} else {
		r.log.Info().Str("id", state.ID).Msg("resuming batch")
	}

	for _, item := range state.Items {
		if item.Status.IsDone() {
			continue
		}
		r.uploadItem(ctx, state, item)
	}

	return state, r.finish(state)
}

func (r *Runner) uploadItem(ctx context.Context, state *State, item *Item) {
	name := path.Base(item.RemotePath)

	info, err := os.Stat(item.LocalPath)
	if err != nil {
		item.Status = StatusSkippedMissing
		item.Error = err.Error()
		r.save(state)
		return
	}

	parent, err := r.drive.MkdirAll(ctx, path.Dir(item.RemotePath))
	if err != nil {
		item.Status = StatusErrorParent
		item.Error = err.Error()
		r.save(state)
		return
	}

	// An interrupted item already passed conflict handling; re-running
	// it would see leftovers of its own earlier decision.
	resuming := item.Status == StatusInterrupted && item.FileUUID != ""
	if !resuming {
		existingUUID, exists, err := r.drive.FileExistsByName(ctx, parent, name)
		if err != nil {
			item.Status = StatusErrorUpload
			item.Error = err.Error()
			r.save(state)
			return
		}
		if exists {
			existing := r.existingFile(ctx, parent, name, existingUUID)
			switch r.Policy {
			case PolicySkip:
				item.Status = StatusSkippedConflict
				r.save(state)
				return
			case PolicyNewer:
				if info.ModTime().UnixMilli() <= existing.LastModified {
					item.Status = StatusSkippedNewer
					r.save(state)
					return
				}
			}
			if err := r.drive.TrashFile(ctx, existing); err != nil {
				item.Status = StatusErrorUpload
				item.Error = err.Error()
				r.save(state)
				return
			}
		}
	}

	var resume *transfer.Resume
	if resuming {
		resume = &transfer.Resume{
			FileUUID:  item.FileUUID,
			FileKey:   item.FileKey,
			UploadKey: item.UploadKey,
			LastChunk: item.LastChunk,
		}
	}

	item.Status = StatusUploading
	r.save(state)

	_, err = r.up.UploadFile(ctx, item.LocalPath, parent, name, resume, func(cp transfer.Checkpoint) {
		item.FileUUID = cp.FileUUID
		item.FileKey = cp.FileKey
		item.UploadKey = cp.UploadKey
		item.LastChunk = cp.LastChunk
		r.save(state)
	})
	if err != nil {
		var chunkErr *transfer.ChunkError
		if errors.As(err, &chunkErr) {
			item.Status = StatusInterrupted
			item.FileUUID = chunkErr.FileUUID
			item.FileKey = chunkErr.FileKey
			item.UploadKey = chunkErr.UploadKey
			item.LastChunk = chunkErr.LastChunk
		} else {
			item.Status = StatusErrorUpload
		}
		item.Error = err.Error()
		r.save(state)
		return
	}

	item.Status = StatusCompleted
	item.Error = ""
	r.save(state)
}

// existingFile turns a hashed-name hit into a file node. The lookup
// only yields a UUID; the listing supplies the modification time the
// newer policy compares against, refreshed once when the cached copy
// does not know the file yet.
func (r *Runner) existingFile(ctx context.Context, parent *drive.Folder, name, uuid string) *drive.File {
	for attempt := 0; attempt < 2; attempt++ {
		listing, err := r.drive.List(ctx, parent.UUID)
		if err != nil {
			break
		}
		if file := listing.ChildFile(name); file != nil && file.UUID == uuid {
			return file
		}
		r.drive.InvalidateFolder(parent.UUID)
	}
	return &drive.File{UUID: uuid, Name: name, ParentUUID: parent.UUID}
}

// save persists progress; a failed save is logged, not fatal, since the
// transfer itself is the priority.
func (r *Runner) save(state *State) {
	if err := state.Save(); err != nil {
		r.log.Warn().Err(err).Str("id", state.ID).Msg("failed to persist batch state")
	}
}

// finish deletes the state file after a clean run and keeps it when
// anything needs a retry.
func (r *Runner) finish(state *State) error {
	if state.HasErrors() {
		return state.Save()
	}
	return state.Delete()
}
