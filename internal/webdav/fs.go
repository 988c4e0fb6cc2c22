// Package webdav serves the remote drive over WebDAV: a
// golang.org/x/net/webdav FileSystem backed by the drive layer, plus
// the HTTP server with basic auth, CORS, and optional TLS.
package webdav

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"golang.org/x/net/webdav"

	"github.com/CrispStrobe/filen-cli/internal/drive"
	"github.com/CrispStrobe/filen-cli/internal/logging"
	"github.com/CrispStrobe/filen-cli/internal/transfer"
)

// FileSystem adapts the drive to webdav.FileSystem. Reads stream
// through the seekable remote reader; writes buffer to a local temp
// file and upload on close, replacing any previous file of that name.
type FileSystem struct {
	drive *drive.Drive
	up    *transfer.Uploader
	log   *logging.Logger
}

// NewFileSystem creates a WebDAV filesystem over the drive.
func NewFileSystem(d *drive.Drive, log *logging.Logger) *FileSystem {
	return &FileSystem{drive: d, up: transfer.NewUploader(d, log), log: log}
}

// nodeInfo implements os.FileInfo for drive nodes, plus the optional
// ETager and ContentTyper interfaces the DAV handler checks for.
type nodeInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
	etag    string
	mime    string
}

func (i *nodeInfo) Name() string       { return i.name }
func (i *nodeInfo) Size() int64        { return i.size }
func (i *nodeInfo) ModTime() time.Time { return i.modTime }
func (i *nodeInfo) IsDir() bool        { return i.isDir }
func (i *nodeInfo) Sys() interface{}   { return nil }

func (i *nodeInfo) Mode() os.FileMode {
	if i.isDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

// ETag identifies a node by UUID and modification time, so clients see
// a new entity after every replace.
func (i *nodeInfo) ETag(context.Context) (string, error) {
	if i.etag == "" {
		return fmt.Sprintf(`"%x%x"`, i.modTime.UnixNano(), i.size), nil
	}
	return `"` + i.etag + `"`, nil
}

// ContentType serves the stored MIME type instead of sniffing.
func (i *nodeInfo) ContentType(context.Context) (string, error) {
	if i.isDir {
		return "httpd/unix-directory", nil
	}
	if i.mime == "" {
		return "application/octet-stream", nil
	}
	return i.mime, nil
}

func folderInfo(f *drive.Folder) *nodeInfo {
	return &nodeInfo{
		name:    f.Name,
		modTime: time.UnixMilli(f.Timestamp),
		isDir:   true,
		etag:    fmt.Sprintf("%s-%d", f.UUID, f.Timestamp),
	}
}

func fileInfo(f *drive.File) *nodeInfo {
	return &nodeInfo{
		name:    f.Name,
		size:    f.Size,
		modTime: time.UnixMilli(f.LastModified),
		etag:    fmt.Sprintf("%s-%d", f.UUID, f.LastModified),
		mime:    f.MIME,
	}
}

// Mkdir creates one folder; the parent must already exist.
func (fs *FileSystem) Mkdir(ctx context.Context, name string, _ os.FileMode) error {
	name = drive.NormalizePath(name)
	if name == "/" {
		return os.ErrExist
	}
	dir, base := path.Split(name)
	parent, err := fs.drive.ResolveFolder(ctx, dir)
	if err != nil {
		return os.ErrNotExist
	}

	// The hashed-name lookup catches folders another client created
	// after our listing was cached.
	if _, exists, err := fs.drive.FolderExistsByName(ctx, parent, base); err != nil {
		return err
	} else if exists {
		return os.ErrExist
	}
	listing, err := fs.drive.List(ctx, parent.UUID)
	if err != nil {
		return err
	}
	if listing.ChildFile(base) != nil {
		return os.ErrExist
	}

	_, err = fs.drive.CreateFolder(ctx, parent, base)
	return err
}

// OpenFile opens a node for reading or starts a buffered write.
func (fs *FileSystem) OpenFile(ctx context.Context, name string, flag int, _ os.FileMode) (webdav.File, error) {
	name = drive.NormalizePath(name)

	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 {
		return fs.openWrite(ctx, name)
	}

	folder, file, err := fs.drive.Resolve(ctx, name)
	if err != nil {
		return nil, os.ErrNotExist
	}
	if folder != nil {
		return &folderHandle{ctx: ctx, fs: fs, folder: folder}, nil
	}

	reader, err := transfer.NewReader(ctx, fs.drive, file)
	if err != nil {
		return nil, err
	}
	return &readHandle{file: file, reader: reader}, nil
}

func (fs *FileSystem) openWrite(ctx context.Context, name string) (webdav.File, error) {
	dir, base := path.Split(name)
	parent, err := fs.drive.ResolveFolder(ctx, dir)
	if err != nil {
		return nil, os.ErrNotExist
	}

	tmp, err := os.CreateTemp("", "filen-webdav-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	return &writeHandle{
		ctx:    ctx,
		fs:     fs,
		parent: parent,
		name:   base,
		tmp:    tmp,
	}, nil
}

// RemoveAll moves a node to the trash. The root cannot be removed.
func (fs *FileSystem) RemoveAll(ctx context.Context, name string) error {
	name = drive.NormalizePath(name)
	if name == "/" {
		return os.ErrPermission
	}
	folder, file, err := fs.drive.Resolve(ctx, name)
	if err != nil {
		return os.ErrNotExist
	}
	if folder != nil {
		return fs.drive.TrashFolder(ctx, folder)
	}
	return fs.drive.TrashFile(ctx, file)
}

// Rename implements MOVE: a reparent when the directory changes, a
// rename when the leaf name changes, or both.
func (fs *FileSystem) Rename(ctx context.Context, oldName, newName string) error {
	oldName = drive.NormalizePath(oldName)
	newName = drive.NormalizePath(newName)
	if oldName == "/" || newName == "/" {
		return os.ErrPermission
	}

	folder, file, err := fs.drive.Resolve(ctx, oldName)
	if err != nil {
		return os.ErrNotExist
	}
	oldDir, oldBase := path.Split(oldName)
	newDir, newBase := path.Split(newName)

	if newDir != oldDir {
		dest, err := fs.drive.ResolveFolder(ctx, newDir)
		if err != nil {
			return os.ErrNotExist
		}
		if folder != nil {
			err = fs.drive.MoveFolder(ctx, folder, dest.UUID)
		} else {
			err = fs.drive.MoveFile(ctx, file, dest.UUID)
		}
		if err != nil {
			return err
		}
	}
	if newBase != oldBase {
		if folder != nil {
			return fs.drive.RenameFolder(ctx, folder, newBase)
		}
		return fs.drive.RenameFile(ctx, file, newBase)
	}
	return nil
}

// Stat resolves a node to its file info.
func (fs *FileSystem) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	name = drive.NormalizePath(name)
	if name == "/" {
		return &nodeInfo{name: "/", isDir: true, modTime: time.Now()}, nil
	}
	folder, file, err := fs.drive.Resolve(ctx, name)
	if err != nil {
		return nil, os.ErrNotExist
	}
	if folder != nil {
		return folderInfo(folder), nil
	}
	return fileInfo(file), nil
}

// readHandle streams a remote file.
type readHandle struct {
	file   *drive.File
	reader *transfer.Reader
}

func (h *readHandle) Read(p []byte) (int, error)                   { return h.reader.Read(p) }
func (h *readHandle) Seek(offset int64, whence int) (int64, error) { return h.reader.Seek(offset, whence) }
func (h *readHandle) Close() error                                 { return h.reader.Close() }
func (h *readHandle) Write([]byte) (int, error)                    { return 0, os.ErrPermission }
func (h *readHandle) Readdir(int) ([]os.FileInfo, error)           { return nil, os.ErrInvalid }
func (h *readHandle) Stat() (os.FileInfo, error)                   { return fileInfo(h.file), nil }

// folderHandle lists a folder for PROPFIND.
type folderHandle struct {
	ctx    context.Context
	fs     *FileSystem
	folder *drive.Folder
}

func (h *folderHandle) Read([]byte) (int, error)          { return 0, os.ErrInvalid }
func (h *folderHandle) Write([]byte) (int, error)         { return 0, os.ErrPermission }
func (h *folderHandle) Seek(int64, int) (int64, error)    { return 0, os.ErrInvalid }
func (h *folderHandle) Close() error                      { return nil }
func (h *folderHandle) Stat() (os.FileInfo, error)        { return folderInfo(h.folder), nil }

func (h *folderHandle) Readdir(int) ([]os.FileInfo, error) {
	listing, err := h.fs.drive.List(h.ctx, h.folder.UUID)
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(listing.Folders)+len(listing.Files))
	for _, folder := range listing.Folders {
		infos = append(infos, folderInfo(folder))
	}
	for _, file := range listing.Files {
		infos = append(infos, fileInfo(file))
	}
	return infos, nil
}

// writeHandle stages a PUT locally and commits it on Close. If a file
// of the same name exists it is trashed right before the upload, so a
// failed upload never destroys the old version early in the write.
type writeHandle struct {
	ctx    context.Context
	fs     *FileSystem
	parent *drive.Folder
	name   string
	tmp    *os.File
	closed bool
}

func (h *writeHandle) Write(p []byte) (int, error)        { return h.tmp.Write(p) }
func (h *writeHandle) Read(p []byte) (int, error)         { return h.tmp.Read(p) }
func (h *writeHandle) Seek(o int64, w int) (int64, error) { return h.tmp.Seek(o, w) }
func (h *writeHandle) Readdir(int) ([]os.FileInfo, error) { return nil, os.ErrInvalid }

func (h *writeHandle) Stat() (os.FileInfo, error) {
	info, err := h.tmp.Stat()
	if err != nil {
		return nil, err
	}
	return &nodeInfo{name: h.name, size: info.Size(), modTime: time.Now()}, nil
}

func (h *writeHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	tmpPath := h.tmp.Name()
	defer os.Remove(tmpPath)

	if err := h.tmp.Close(); err != nil {
		return err
	}

	listing, err := h.fs.drive.List(h.ctx, h.parent.UUID)
	if err != nil {
		return err
	}
	if existing := listing.ChildFile(h.name); existing != nil {
		if err := h.fs.drive.TrashFile(h.ctx, existing); err != nil {
			return err
		}
	}

	_, err = h.fs.up.UploadFile(h.ctx, tmpPath, h.parent, h.name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to commit %s: %w", h.name, err)
	}
	return nil
}

var _ io.ReadWriteSeeker = (*writeHandle)(nil)
var _ webdav.FileSystem = (*FileSystem)(nil)
