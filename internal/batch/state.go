// Package batch runs multi-file transfers with persisted, resumable
// state. Each batch gets a deterministic ID from its operation, sources
// and target, so rerunning the same command picks up where it stopped.
package batch

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/CrispStrobe/filen-cli/internal/config"
)

// Status is an item's lifecycle state within a batch.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUploading   Status = "uploading"
	StatusInterrupted Status = "interrupted"
	StatusCompleted   Status = "completed"

	StatusSkippedConflict Status = "skipped_conflict"
	StatusSkippedMissing  Status = "skipped_missing"
	StatusSkippedNewer    Status = "skipped_newer"

	StatusErrorParent   Status = "error_parent"
	StatusErrorUpload   Status = "error_upload"
	StatusErrorDownload Status = "error_download"
)

// IsError reports whether the status leaves the batch incomplete.
// Interrupted items count: they hold resume state the next run needs.
func (s Status) IsError() bool {
	switch s {
	case StatusInterrupted, StatusErrorParent, StatusErrorUpload, StatusErrorDownload:
		return true
	}
	return false
}

// IsDone reports whether the item needs no further work.
func (s Status) IsDone() bool {
	switch s {
	case StatusCompleted, StatusSkippedConflict, StatusSkippedMissing, StatusSkippedNewer:
		return true
	}
	return false
}

// Item is one file within a batch. The resume fields are only
// meaningful while Status is interrupted; LastChunk is -1 exactly when
// no chunks have been stored.
type Item struct {
	LocalPath  string `json:"localPath"`
	RemotePath string `json:"remotePath"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`

	FileUUID  string `json:"fileUuid,omitempty"`
	FileKey   string `json:"fileKey,omitempty"`
	UploadKey string `json:"uploadKey,omitempty"`
	LastChunk int    `json:"lastChunk"`
}

// State is a batch's full persisted record.
type State struct {
	ID        string  `json:"id"`
	Operation string  `json:"operation"`
	Target    string  `json:"target"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
	Items     []*Item `json:"items"`
}

// ID derives the deterministic batch identifier from the operation,
// its source list and the target.
func ID(operation string, sources []string, target string) string {
	sum := sha1.Sum([]byte(operation + "-" + strings.Join(sources, "|") + "-" + target))
	return hex.EncodeToString(sum[:])[:16]
}

func newState(operation string, sources []string, target string) *State {
	now := time.Now().UTC().Format(time.RFC3339)
	return &State{
		ID:        ID(operation, sources, target),
		Operation: operation,
		Target:    target,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewUploadState creates a fresh upload batch from enumerated local
// files. The ID comes from the raw sources so rerunning the same
// command finds the same batch even after the filesystem changed.
func NewUploadState(sources []string, target string, entries []LocalEntry) *State {
	state := newState("upload", sources, target)
	for _, entry := range entries {
		state.Items = append(state.Items, &Item{
			LocalPath:  entry.LocalPath,
			RemotePath: path.Join(target, entry.RelPath),
			Status:     StatusPending,
			LastChunk:  -1,
		})
	}
	return state
}

// NewDownloadState creates a fresh download batch from enumerated
// remote files.
func NewDownloadState(sources []string, localDir string, entries []RemoteEntry) *State {
	state := newState("download", sources, localDir)
	for _, entry := range entries {
		state.Items = append(state.Items, &Item{
			LocalPath:  filepath.Join(localDir, filepath.FromSlash(entry.RelPath)),
			RemotePath: entry.RemotePath,
			Status:     StatusPending,
			LastChunk:  -1,
		})
	}
	return state
}

func statePath(id string) (string, error) {
	dir, err := config.BatchStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("batch_state_%s.json", id)), nil
}

// Load reads a batch's persisted state, nil when none exists.
func Load(id string) (*State, error) {
	path, err := statePath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read batch state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse batch state: %w", err)
	}
	return &state, nil
}

// Save writes the state atomically: a temp file in the same directory
// is renamed over the target, so a crash never leaves a torn file.
func (s *State) Save() error {
	path, err := statePath(s.ID)
	if err != nil {
		return err
	}
	s.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".batch_state_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write batch state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close batch state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace batch state: %w", err)
	}
	return nil
}

// Delete removes the state file. A missing file is not an error.
func (s *State) Delete() error {
	path, err := statePath(s.ID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete batch state: %w", err)
	}
	return nil
}

// HasErrors reports whether any item still needs attention.
func (s *State) HasErrors() bool {
	for _, item := range s.Items {
		if item.Status.IsError() {
			return true
		}
	}
	return false
}

// Summary tallies items by status.
func (s *State) Summary() map[Status]int {
	counts := make(map[Status]int)
	for _, item := range s.Items {
		counts[item.Status]++
	}
	return counts
}

// ListStates returns all persisted batch states, oldest first.
func ListStates() ([]*State, error) {
	dir, err := config.BatchStateDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch state directory: %w", err)
	}
	var states []*State
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "batch_state_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, "batch_state_"), ".json")
		state, err := Load(id)
		if err != nil || state == nil {
			continue
		}
		states = append(states, state)
	}
	return states, nil
}

// ErrUnknownPolicy indicates an unrecognized conflict policy name.
var ErrUnknownPolicy = errors.New("unknown conflict policy")

// ConflictPolicy decides what happens when the destination already has
// an entry with the same name.
type ConflictPolicy string

const (
	// PolicySkip leaves the existing entry untouched.
	PolicySkip ConflictPolicy = "skip"
	// PolicyOverwrite replaces the existing entry unconditionally.
	PolicyOverwrite ConflictPolicy = "overwrite"
	// PolicyNewer replaces only when the source is strictly newer.
	PolicyNewer ConflictPolicy = "newer"
)

// ParsePolicy validates a policy name from the command line.
func ParsePolicy(name string) (ConflictPolicy, error) {
	switch ConflictPolicy(name) {
	case PolicySkip, PolicyOverwrite, PolicyNewer:
		return ConflictPolicy(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}
