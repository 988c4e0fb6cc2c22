package drive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/CrispStrobe/filen-cli/internal/api"
	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/crypto"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

// TrashUUID is the pseudo-folder the gateway uses for trash listings.
const TrashUUID = "trash"

// NotFoundError reports a path that could not be fully resolved.
// ResolvedPrefix is the deepest existing ancestor.
type NotFoundError struct {
	Path           string
	ResolvedPrefix string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s (resolved up to %s)", e.Path, e.ResolvedPrefix)
}

// Drive is the decrypted remote filesystem for one account.
type Drive struct {
	api   *api.Client
	creds *config.Credentials
	cache *Cache
	log   *logging.Logger
}

// New creates a drive view for the logged-in account.
func New(client *api.Client, creds *config.Credentials, log *logging.Logger) *Drive {
	return &Drive{
		api:   client,
		creds: creds,
		cache: NewCache(),
		log:   log,
	}
}

// API exposes the wire client for the transfer layer.
func (d *Drive) API() *api.Client {
	return d.api
}

// Credentials exposes the account session.
func (d *Drive) Credentials() *config.Credentials {
	return d.creds
}

// RootFolder returns the account's base folder node.
func (d *Drive) RootFolder() *Folder {
	return &Folder{UUID: d.creds.BaseFolderUUID, Name: "/"}
}

// NormalizePath collapses a remote path to its canonical form with a
// leading slash and no trailing slash.
func NormalizePath(p string) string {
	p = "/" + strings.Trim(strings.TrimSpace(p), "/")
	return path.Clean(p)
}

// List returns a folder's direct children, from cache when fresh.
func (d *Drive) List(ctx context.Context, folderUUID string) (*Listing, error) {
	if listing, ok := d.cache.GetListing(folderUUID); ok {
		return listing, nil
	}
	return d.refreshListing(ctx, folderUUID)
}

// refreshListing always hits the gateway and replaces the cache entry.
func (d *Drive) refreshListing(ctx context.Context, folderUUID string) (*Listing, error) {
	resp, err := d.api.DirContent(ctx, folderUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folderUUID, err)
	}

	keys := d.creds.MasterKeyList()
	listing := &Listing{
		Folders: make([]*Folder, 0, len(resp.Folders)),
		Files:   make([]*File, 0, len(resp.Uploads)),
	}
	for i := range resp.Folders {
		listing.Folders = append(listing.Folders, decodeFolderRecord(&resp.Folders[i], keys))
	}
	for i := range resp.Uploads {
		listing.Files = append(listing.Files, decodeFileRecord(&resp.Uploads[i], keys))
	}

	d.cache.PutListing(folderUUID, listing)
	return listing, nil
}

// ChildFolder finds a direct subfolder by name, nil when absent.
func (l *Listing) ChildFolder(name string) *Folder {
	for _, folder := range l.Folders {
		if folder.Name == name {
			return folder
		}
	}
	return nil
}

// ChildFile finds a direct file by name, nil when absent.
func (l *Listing) ChildFile(name string) *File {
	for _, file := range l.Files {
		if file.Name == name {
			return file
		}
	}
	return nil
}

// Resolve walks a path from the root and returns the node it names.
// Exactly one of the results is non-nil on success. When both a folder
// and a file carry the terminal name, the folder wins.
func (d *Drive) Resolve(ctx context.Context, remotePath string) (*Folder, *File, error) {
	remotePath = NormalizePath(remotePath)
	if remotePath == "/" {
		return d.RootFolder(), nil, nil
	}

	if target, ok := d.cache.GetPath(remotePath); ok {
		return target.Folder, target.File, nil
	}

	segments := strings.Split(strings.TrimPrefix(remotePath, "/"), "/")
	current := d.RootFolder()
	resolved := "/"

	for i, segment := range segments {
		listing, err := d.List(ctx, current.UUID)
		if err != nil {
			return nil, nil, err
		}
		last := i == len(segments)-1

		if folder := listing.ChildFolder(segment); folder != nil {
			if last {
				d.cache.PutPath(remotePath, pathTarget{Folder: folder})
				return folder, nil, nil
			}
			current = folder
			resolved = path.Join(resolved, segment)
			continue
		}
		if last {
			if file := listing.ChildFile(segment); file != nil {
				d.cache.PutPath(remotePath, pathTarget{File: file})
				return nil, file, nil
			}
		}
		return nil, nil, &NotFoundError{Path: remotePath, ResolvedPrefix: resolved}
	}
	return nil, nil, &NotFoundError{Path: remotePath, ResolvedPrefix: resolved}
}

// ResolveFolder resolves a path that must name a folder.
func (d *Drive) ResolveFolder(ctx context.Context, remotePath string) (*Folder, error) {
	folder, file, err := d.Resolve(ctx, remotePath)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("not a folder: %s (%s)", remotePath, file.UUID)
	}
	return folder, nil
}

// ResolveFile resolves a path that must name a file.
func (d *Drive) ResolveFile(ctx context.Context, remotePath string) (*File, error) {
	folder, file, err := d.Resolve(ctx, remotePath)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("not a file: %s (%s)", remotePath, folder.UUID)
	}
	return file, nil
}

// CreateFolder creates one subfolder under the parent. A create that
// races with another client is absorbed: on a conflict the listing is
// refetched after a short pause and the existing folder is returned.
func (d *Drive) CreateFolder(ctx context.Context, parent *Folder, name string) (*Folder, error) {
	masterKey := d.creds.CurrentMasterKey()
	nameMeta, err := encodeFolderName(name, masterKey)
	if err != nil {
		return nil, err
	}
	nameHashed := crypto.HashFileName(name, d.creds.Email, masterKey)

	uuid, err := d.api.DirCreate(ctx, crypto.NewUUID(), nameMeta, nameHashed, parent.UUID)
	if err != nil {
		if !isConflict(err) {
			return nil, fmt.Errorf("failed to create folder %q: %w", name, err)
		}
		time.Sleep(1 * time.Second)
		listing, lerr := d.refreshListing(ctx, parent.UUID)
		if lerr != nil {
			return nil, lerr
		}
		if existing := listing.ChildFolder(name); existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create folder %q: %w", name, err)
	}

	d.cache.InvalidateFolder(parent.UUID)
	return &Folder{UUID: uuid, Name: name, ParentUUID: parent.UUID}, nil
}

// isConflict recognizes a create that lost a race to another client.
func isConflict(err error) bool {
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == 409 {
		return true
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		return strings.Contains(msg, "exist") || strings.Contains(msg, "conflict")
	}
	return false
}

// MkdirAll resolves a folder path, creating every missing segment.
func (d *Drive) MkdirAll(ctx context.Context, remotePath string) (*Folder, error) {
	remotePath = NormalizePath(remotePath)
	current := d.RootFolder()
	if remotePath == "/" {
		return current, nil
	}

	for _, segment := range strings.Split(strings.TrimPrefix(remotePath, "/"), "/") {
		listing, err := d.List(ctx, current.UUID)
		if err != nil {
			return nil, err
		}
		if folder := listing.ChildFolder(segment); folder != nil {
			current = folder
			continue
		}
		created, err := d.CreateFolder(ctx, current, segment)
		if err != nil {
			return nil, err
		}
		current = created
	}
	return current, nil
}

// FileExistsByName asks the gateway whether the parent already holds a
// file with that name, via the hashed-name index. Unlike a cached
// listing the answer reflects writes from other clients.
func (d *Drive) FileExistsByName(ctx context.Context, parent *Folder, name string) (string, bool, error) {
	nameHashed := crypto.HashFileName(name, d.creds.Email, d.creds.CurrentMasterKey())
	resp, err := d.api.FileExists(ctx, parent.UUID, nameHashed)
	if err != nil {
		return "", false, fmt.Errorf("failed to check for file %q: %w", name, err)
	}
	return resp.UUID, resp.Exists, nil
}

// FolderExistsByName is the folder-side hashed-name lookup.
func (d *Drive) FolderExistsByName(ctx context.Context, parent *Folder, name string) (string, bool, error) {
	nameHashed := crypto.HashFileName(name, d.creds.Email, d.creds.CurrentMasterKey())
	resp, err := d.api.DirExists(ctx, parent.UUID, nameHashed)
	if err != nil {
		return "", false, fmt.Errorf("failed to check for folder %q: %w", name, err)
	}
	return resp.UUID, resp.Exists, nil
}

// MoveFolder reparents a folder and invalidates both sides.
func (d *Drive) MoveFolder(ctx context.Context, folder *Folder, newParentUUID string) error {
	if err := d.api.DirMove(ctx, folder.UUID, newParentUUID); err != nil {
		return fmt.Errorf("failed to move folder %q: %w", folder.Name, err)
	}
	d.cache.InvalidateFolder(folder.ParentUUID)
	d.cache.InvalidateFolder(newParentUUID)
	return nil
}

// MoveFile reparents a file and invalidates both sides.
func (d *Drive) MoveFile(ctx context.Context, file *File, newParentUUID string) error {
	if err := d.api.FileMove(ctx, file.UUID, newParentUUID); err != nil {
		return fmt.Errorf("failed to move file %q: %w", file.Name, err)
	}
	d.cache.InvalidateFolder(file.ParentUUID)
	d.cache.InvalidateFolder(newParentUUID)
	return nil
}

// RenameFolder re-encrypts the folder name under the newest master key.
func (d *Drive) RenameFolder(ctx context.Context, folder *Folder, newName string) error {
	masterKey := d.creds.CurrentMasterKey()
	nameMeta, err := encodeFolderName(newName, masterKey)
	if err != nil {
		return err
	}
	nameHashed := crypto.HashFileName(newName, d.creds.Email, masterKey)
	if err := d.api.DirRename(ctx, folder.UUID, nameMeta, nameHashed); err != nil {
		return fmt.Errorf("failed to rename folder %q: %w", folder.Name, err)
	}
	d.cache.InvalidateFolder(folder.ParentUUID)
	return nil
}

// RenameFile re-encrypts the file's name and full metadata, keeping the
// file key and size intact.
func (d *Drive) RenameFile(ctx context.Context, file *File, newName string) error {
	masterKey := d.creds.CurrentMasterKey()
	nameMeta, err := crypto.EncryptMetadata(newName, masterKey)
	if err != nil {
		return err
	}
	metadata, err := EncodeFileMetadata(&FileMetadata{
		Name:         newName,
		Size:         file.Size,
		MIME:         file.MIME,
		Key:          file.Key,
		LastModified: file.LastModified,
		Hash:         file.Hash,
	}, masterKey)
	if err != nil {
		return err
	}
	nameHashed := crypto.HashFileName(newName, d.creds.Email, masterKey)
	if err := d.api.FileRename(ctx, file.UUID, nameMeta, nameHashed, metadata); err != nil {
		return fmt.Errorf("failed to rename file %q: %w", file.Name, err)
	}
	d.cache.InvalidateFolder(file.ParentUUID)
	return nil
}

// TrashFolder moves a folder to the trash.
func (d *Drive) TrashFolder(ctx context.Context, folder *Folder) error {
	if err := d.api.DirTrash(ctx, folder.UUID); err != nil {
		return fmt.Errorf("failed to trash folder %q: %w", folder.Name, err)
	}
	d.cache.InvalidateFolder(folder.ParentUUID)
	return nil
}

// TrashFile moves a file to the trash.
func (d *Drive) TrashFile(ctx context.Context, file *File) error {
	if err := d.api.FileTrash(ctx, file.UUID); err != nil {
		return fmt.Errorf("failed to trash file %q: %w", file.Name, err)
	}
	d.cache.InvalidateFolder(file.ParentUUID)
	return nil
}

// RestoreFolder restores a trashed folder to its previous parent.
func (d *Drive) RestoreFolder(ctx context.Context, folderUUID string) error {
	if err := d.api.DirRestore(ctx, folderUUID); err != nil {
		return fmt.Errorf("failed to restore folder: %w", err)
	}
	d.cache.Clear()
	return nil
}

// RestoreFile restores a trashed file to its previous parent.
func (d *Drive) RestoreFile(ctx context.Context, fileUUID string) error {
	if err := d.api.FileRestore(ctx, fileUUID); err != nil {
		return fmt.Errorf("failed to restore file: %w", err)
	}
	d.cache.Clear()
	return nil
}

// DeleteFolderPermanent destroys a folder and its contents.
func (d *Drive) DeleteFolderPermanent(ctx context.Context, folderUUID string) error {
	if err := d.api.DirDeletePermanent(ctx, folderUUID); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	d.cache.Clear()
	return nil
}

// DeleteFilePermanent destroys a file.
func (d *Drive) DeleteFilePermanent(ctx context.Context, fileUUID string) error {
	if err := d.api.FileDeletePermanent(ctx, fileUUID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	d.cache.Clear()
	return nil
}

// ListTrash lists the trash's contents without caching, since restores
// and deletions change it out from under any TTL.
func (d *Drive) ListTrash(ctx context.Context) (*Listing, error) {
	resp, err := d.api.DirContent(ctx, TrashUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trash: %w", err)
	}
	keys := d.creds.MasterKeyList()
	listing := &Listing{}
	for i := range resp.Folders {
		listing.Folders = append(listing.Folders, decodeFolderRecord(&resp.Folders[i], keys))
	}
	for i := range resp.Uploads {
		listing.Files = append(listing.Files, decodeFileRecord(&resp.Uploads[i], keys))
	}
	return listing, nil
}

// InvalidateFolder drops cached state after an out-of-band change.
func (d *Drive) InvalidateFolder(folderUUID string) {
	d.cache.InvalidateFolder(folderUUID)
}
