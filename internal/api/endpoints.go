package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// AuthInfoResponse describes how an account's password must be derived.
type AuthInfoResponse struct {
	AuthVersion int    `json:"authVersion"`
	Salt        string `json:"salt"`
}

// AuthInfo fetches the auth version and salt for an email address. No
// API key is required.
func (c *Client) AuthInfo(ctx context.Context, email string) (*AuthInfoResponse, error) {
	var resp AuthInfoResponse
	payload := map[string]string{"email": email}
	if err := c.post(ctx, "/v3/auth/info", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoginRequest carries the derived auth password, never the real one.
type LoginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode"`
	AuthVersion   int    `json:"authVersion"`
}

// MasterKeyEnvelopes is the account's key chain as it comes off the
// wire: either a single metadata envelope or an array of them.
type MasterKeyEnvelopes []string

func (m *MasterKeyEnvelopes) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*m = MasterKeyEnvelopes{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*m = many
	return nil
}

// LoginResponse is the session handed back on success.
type LoginResponse struct {
	APIKey     string             `json:"apiKey"`
	MasterKeys MasterKeyEnvelopes `json:"masterKeys"`
	PublicKey  string             `json:"publicKey"`
	PrivateKey string             `json:"privateKey"`
}

// Login exchanges derived credentials for an API key.
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.post(ctx, "/v3/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UserInfoResponse is the account record behind the API key.
type UserInfoResponse struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	MaxStorage   int64  `json:"maxStorage"`
	StorageUsed  int64  `json:"storageUsed"`
	BaseFolder   string `json:"baseFolderUUID"`
	IsPremium    int    `json:"isPremium"`
	EmailVerified int   `json:"emailVerified"`
}

// UserInfo fetches the logged-in account's record.
func (c *Client) UserInfo(ctx context.Context) (*UserInfoResponse, error) {
	var resp UserInfoResponse
	if err := c.get(ctx, "/v3/user/info", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UserBaseFolder fetches the UUID of the account's root folder.
func (c *Client) UserBaseFolder(ctx context.Context) (string, error) {
	var resp struct {
		UUID string `json:"uuid"`
	}
	if err := c.get(ctx, "/v3/user/baseFolder", &resp); err != nil {
		return "", err
	}
	return resp.UUID, nil
}

// FileRecord is one file entry in a folder listing. Metadata is an
// encrypted envelope holding name, size, mime, key and lastModified.
type FileRecord struct {
	UUID      string `json:"uuid"`
	Metadata  string `json:"metadata"`
	RM        string `json:"rm"`
	Timestamp int64  `json:"timestamp"`
	Chunks    int    `json:"chunks"`
	Size      int64  `json:"size"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Parent    string `json:"parent"`
	Version   int    `json:"version"`
	Favorited int    `json:"favorited"`
}

// FolderRecord is one folder entry in a folder listing. Name is an
// encrypted envelope holding {"name": ...}.
type FolderRecord struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Parent    string `json:"parent"`
	Timestamp int64  `json:"timestamp"`
	Favorited int    `json:"favorited"`
	Color     string `json:"color"`
}

// DirContentResponse is a single folder's direct children.
type DirContentResponse struct {
	Uploads []FileRecord   `json:"uploads"`
	Folders []FolderRecord `json:"folders"`
}

// DirContent lists the direct children of a folder. The special UUID
// "trash" lists the trash.
func (c *Client) DirContent(ctx context.Context, folderUUID string) (*DirContentResponse, error) {
	var resp DirContentResponse
	payload := map[string]string{"uuid": folderUUID}
	if err := c.post(ctx, "/v3/dir/content", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DirCreate registers a new folder. Name travels as an encrypted
// envelope plus the server-side lookup hash.
func (c *Client) DirCreate(ctx context.Context, folderUUID, nameMeta, nameHashed, parent string) (string, error) {
	var resp struct {
		UUID string `json:"uuid"`
	}
	payload := map[string]string{
		"uuid":       folderUUID,
		"name":       nameMeta,
		"nameHashed": nameHashed,
		"parent":     parent,
	}
	if err := c.post(ctx, "/v3/dir/create", payload, &resp); err != nil {
		return "", err
	}
	if resp.UUID == "" {
		return folderUUID, nil
	}
	return resp.UUID, nil
}

// ExistsResponse answers a name-hash lookup inside a parent folder.
type ExistsResponse struct {
	Exists bool   `json:"exists"`
	UUID   string `json:"uuid"`
}

// DirExists checks whether a folder with the hashed name exists under
// the parent.
func (c *Client) DirExists(ctx context.Context, parent, nameHashed string) (*ExistsResponse, error) {
	var resp ExistsResponse
	payload := map[string]string{"parent": parent, "nameHashed": nameHashed}
	if err := c.post(ctx, "/v3/dir/exists", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FileExists checks whether a file with the hashed name exists under
// the parent.
func (c *Client) FileExists(ctx context.Context, parent, nameHashed string) (*ExistsResponse, error) {
	var resp ExistsResponse
	payload := map[string]string{"parent": parent, "nameHashed": nameHashed}
	if err := c.post(ctx, "/v3/file/exists", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DirMove reparents a folder.
func (c *Client) DirMove(ctx context.Context, folderUUID, newParent string) error {
	payload := map[string]string{"uuid": folderUUID, "to": newParent}
	return c.post(ctx, "/v3/dir/move", payload, nil)
}

// FileMove reparents a file.
func (c *Client) FileMove(ctx context.Context, fileUUID, newParent string) error {
	payload := map[string]string{"uuid": fileUUID, "to": newParent}
	return c.post(ctx, "/v3/file/move", payload, nil)
}

// DirRename updates a folder's encrypted name and lookup hash.
func (c *Client) DirRename(ctx context.Context, folderUUID, nameMeta, nameHashed string) error {
	payload := map[string]string{
		"uuid":       folderUUID,
		"name":       nameMeta,
		"nameHashed": nameHashed,
	}
	return c.post(ctx, "/v3/dir/rename", payload, nil)
}

// FileRename updates a file's encrypted name, lookup hash and full
// metadata envelope (the name also lives inside the metadata).
func (c *Client) FileRename(ctx context.Context, fileUUID, nameMeta, nameHashed, metadata string) error {
	payload := map[string]string{
		"uuid":       fileUUID,
		"name":       nameMeta,
		"nameHashed": nameHashed,
		"metadata":   metadata,
	}
	return c.post(ctx, "/v3/file/rename", payload, nil)
}

// DirTrash moves a folder to the trash.
func (c *Client) DirTrash(ctx context.Context, folderUUID string) error {
	return c.post(ctx, "/v3/dir/trash", map[string]string{"uuid": folderUUID}, nil)
}

// FileTrash moves a file to the trash.
func (c *Client) FileTrash(ctx context.Context, fileUUID string) error {
	return c.post(ctx, "/v3/file/trash", map[string]string{"uuid": fileUUID}, nil)
}

// DirRestore restores a trashed folder to its previous parent.
func (c *Client) DirRestore(ctx context.Context, folderUUID string) error {
	return c.post(ctx, "/v3/dir/restore", map[string]string{"uuid": folderUUID}, nil)
}

// FileRestore restores a trashed file to its previous parent.
func (c *Client) FileRestore(ctx context.Context, fileUUID string) error {
	return c.post(ctx, "/v3/file/restore", map[string]string{"uuid": fileUUID}, nil)
}

// DirDeletePermanent destroys a folder and everything under it.
func (c *Client) DirDeletePermanent(ctx context.Context, folderUUID string) error {
	return c.post(ctx, "/v3/dir/delete/permanent", map[string]string{"uuid": folderUUID}, nil)
}

// FileDeletePermanent destroys a file.
func (c *Client) FileDeletePermanent(ctx context.Context, fileUUID string) error {
	return c.post(ctx, "/v3/file/delete/permanent", map[string]string{"uuid": fileUUID}, nil)
}

// UploadEmptyRequest registers a zero-byte file without any chunk
// traffic. Size travels as the string "0" and the content hash is empty.
type UploadEmptyRequest struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name"`
	NameHashed string `json:"nameHashed"`
	Size       string `json:"size"`
	Parent     string `json:"parent"`
	MIME       string `json:"mime"`
	Metadata   string `json:"metadata"`
	Version    int    `json:"version"`
}

// UploadEmpty registers an empty file.
func (c *Client) UploadEmpty(ctx context.Context, req *UploadEmptyRequest) error {
	return c.post(ctx, "/v3/upload/empty", req, nil)
}

// UploadDoneRequest finalizes a chunked upload. RM is a fresh random
// 32-char token; UploadKey must match the one used on every chunk.
type UploadDoneRequest struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name"`
	NameHashed string `json:"nameHashed"`
	Size       string `json:"size"`
	Chunks     int    `json:"chunks"`
	MIME       string `json:"mime"`
	RM         string `json:"rm"`
	Metadata   string `json:"metadata"`
	Version    int    `json:"version"`
	UploadKey  string `json:"uploadKey"`
}

// UploadDoneResponse reports the finalized file's totals.
type UploadDoneResponse struct {
	Chunks int   `json:"chunks"`
	Size   int64 `json:"size"`
}

// UploadDone finalizes a chunked upload and makes the file visible.
func (c *Client) UploadDone(ctx context.Context, req *UploadDoneRequest) (*UploadDoneResponse, error) {
	var resp UploadDoneResponse
	if err := c.post(ctx, "/v3/upload/done", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TreeFileRecord is one file in a recursive tree listing. The bulk
// endpoint serves records either as objects or as positional arrays, so
// decoding handles both.
type TreeFileRecord struct {
	UUID     string
	Bucket   string
	Region   string
	Chunks   int
	Parent   string
	Metadata string
	Version  int
}

// UnmarshalJSON accepts both the object form and the positional array
// form [uuid, bucket, region, chunks, parent, metadata, version].
func (r *TreeFileRecord) UnmarshalJSON(data []byte) error {
	var obj struct {
		UUID     string `json:"uuid"`
		Bucket   string `json:"bucket"`
		Region   string `json:"region"`
		Chunks   int    `json:"chunks"`
		Parent   string `json:"parent"`
		Metadata string `json:"metadata"`
		Version  int    `json:"version"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.UUID != "" {
		*r = TreeFileRecord(obj)
		return nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("unrecognized tree file record: %w", err)
	}
	if len(arr) < 6 {
		return fmt.Errorf("tree file record too short: %d fields", len(arr))
	}
	fields := []interface{}{&r.UUID, &r.Bucket, &r.Region, &r.Chunks, &r.Parent, &r.Metadata}
	if len(arr) > 6 {
		fields = append(fields, &r.Version)
	}
	for i, target := range fields {
		if err := json.Unmarshal(arr[i], target); err != nil {
			return fmt.Errorf("tree file record field %d: %w", i, err)
		}
	}
	return nil
}

// TreeFolderRecord is one folder in a recursive tree listing.
type TreeFolderRecord struct {
	UUID   string
	Name   string
	Parent string
}

// UnmarshalJSON accepts both the object form and the positional array
// form [uuid, name, parent].
func (r *TreeFolderRecord) UnmarshalJSON(data []byte) error {
	var obj struct {
		UUID   string `json:"uuid"`
		Name   string `json:"name"`
		Parent string `json:"parent"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.UUID != "" {
		*r = TreeFolderRecord(obj)
		return nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("unrecognized tree folder record: %w", err)
	}
	if len(arr) < 3 {
		return fmt.Errorf("tree folder record too short: %d fields", len(arr))
	}
	for i, target := range []interface{}{&r.UUID, &r.Name, &r.Parent} {
		if err := json.Unmarshal(arr[i], target); err != nil {
			return fmt.Errorf("tree folder record field %d: %w", i, err)
		}
	}
	return nil
}

// DirTreeResponse is a folder's full recursive contents.
type DirTreeResponse struct {
	Files   []TreeFileRecord   `json:"files"`
	Folders []TreeFolderRecord `json:"folders"`
}

// DirTree fetches the complete subtree under a folder in one call.
func (c *Client) DirTree(ctx context.Context, folderUUID string) (*DirTreeResponse, error) {
	var resp DirTreeResponse
	payload := map[string]string{"uuid": folderUUID, "type": "normal"}
	if err := c.post(ctx, "/v3/dir/download", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
