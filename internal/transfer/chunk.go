// Package transfer moves file contents between local disk and the
// storage nodes: chunked uploads with resume, chunked downloads with
// verification, and a seekable reader over remote files.
package transfer

import "fmt"

// ChunkSize is the plaintext chunk size for uploads and downloads.
const ChunkSize = 1024 * 1024

// ChunkError is a transfer interrupted partway through. It carries
// everything needed to resume: the file's upload identity and the index
// of the last chunk that made it. LastChunk is -1 when nothing did.
// UploadKey and FileKey are empty for download failures.
type ChunkError struct {
	FileUUID  string
	FileKey   string
	UploadKey string
	LastChunk int
	Err       error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("transfer of %s interrupted after chunk %d: %v", e.FileUUID, e.LastChunk, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Checkpoint is progress reported during a transfer, persisted by the
// caller so an interrupted transfer can resume.
type Checkpoint struct {
	FileUUID  string
	FileKey   string
	UploadKey string
	LastChunk int
}

// CheckpointFunc receives periodic progress during a transfer.
type CheckpointFunc func(Checkpoint)
