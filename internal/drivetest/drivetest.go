// Package drivetest provides an in-memory gateway plus storage node for
// tests. Metadata envelopes are stored verbatim, so listings decode
// with the same master key the client under test encrypts with.
package drivetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/CrispStrobe/filen-cli/internal/api"
	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/crypto"
	"github.com/CrispStrobe/filen-cli/internal/drive"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

// MasterKey is the account master key every fake-backed test uses.
const MasterKey = "aaaabbbbccccddddeeeeffff0000111122223333444455556666777788889999"

// RootUUID is the fake account's base folder.
const RootUUID = "root"

// Email is the fake account's address, part of the name-hash key.
const Email = "user@example.com"

// Cloud is the fake backend. Mutating fields directly is fine between
// requests; the handler locks around each one.
type Cloud struct {
	mu sync.Mutex

	Folders     map[string][]api.FolderRecord // parent uuid -> children
	Files       map[string][]api.FileRecord
	ChunkData   map[string]map[int][]byte // file uuid -> index -> sealed
	ChunkParent map[string]string
	Trashed     []string

	// FailUploadIndex makes the next chunk upload of this index fail
	// once with a 400. -1 disables.
	FailUploadIndex int
	// FailDownloadIndex does the same for chunk downloads.
	FailDownloadIndex int
}

// NewCloud creates an empty backend.
func NewCloud() *Cloud {
	return &Cloud{
		Folders:           make(map[string][]api.FolderRecord),
		Files:             make(map[string][]api.FileRecord),
		ChunkData:         make(map[string]map[int][]byte),
		ChunkParent:       make(map[string]string),
		FailUploadIndex:   -1,
		FailDownloadIndex: -1,
	}
}

// AddFolder seeds a decodable folder record and returns its UUID.
func (c *Cloud) AddFolder(tb testing.TB, parent, name string) string {
	tb.Helper()
	meta, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		tb.Fatalf("marshal folder name: %v", err)
	}
	envelope, err := crypto.EncryptMetadata(string(meta), MasterKey)
	if err != nil {
		tb.Fatalf("encrypt folder name: %v", err)
	}
	uuid := crypto.NewUUID()
	c.mu.Lock()
	c.Folders[parent] = append(c.Folders[parent], api.FolderRecord{
		UUID: uuid, Name: envelope, Parent: parent,
	})
	c.mu.Unlock()
	return uuid
}

// AddFile seeds a decodable file record (without chunk data) and
// returns its UUID.
func (c *Cloud) AddFile(tb testing.TB, parent, name string, size, lastModified int64) string {
	tb.Helper()
	key, err := crypto.RandomString(crypto.FileKeySize)
	if err != nil {
		tb.Fatalf("generate file key: %v", err)
	}
	meta, err := json.Marshal(drive.FileMetadata{
		Name: name, Size: size, MIME: "application/octet-stream",
		Key: key, LastModified: lastModified,
	})
	if err != nil {
		tb.Fatalf("marshal file metadata: %v", err)
	}
	envelope, err := crypto.EncryptMetadata(string(meta), MasterKey)
	if err != nil {
		tb.Fatalf("encrypt file metadata: %v", err)
	}
	uuid := crypto.NewUUID()
	c.mu.Lock()
	c.Files[parent] = append(c.Files[parent], api.FileRecord{
		UUID: uuid, Metadata: envelope, Parent: parent, Size: size,
		Chunks: 1, Bucket: "b1", Region: "eu", Version: 2,
	})
	c.mu.Unlock()
	return uuid
}

// FindFile scans all parents for a record by UUID.
func (c *Cloud) FindFile(uuid string) *api.FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, records := range c.Files {
		for i := range records {
			if records[i].UUID == uuid {
				rec := records[i]
				return &rec
			}
		}
	}
	return nil
}

// Server starts the fake over httptest. The caller owns the shutdown.
func (c *Cloud) Server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/dir/content", c.handleContent)
	mux.HandleFunc("/v3/dir/download", c.handleTree)
	mux.HandleFunc("/v3/dir/create", c.handleCreate)
	mux.HandleFunc("/v3/dir/exists", c.handleExists(true))
	mux.HandleFunc("/v3/file/exists", c.handleExists(false))
	mux.HandleFunc("/v3/dir/rename", c.handleRenameDir)
	mux.HandleFunc("/v3/file/rename", c.handleRenameFile)
	mux.HandleFunc("/v3/dir/move", c.handleMove(true))
	mux.HandleFunc("/v3/file/move", c.handleMove(false))
	mux.HandleFunc("/v3/dir/trash", c.handleTrashDir)
	mux.HandleFunc("/v3/file/trash", c.handleTrashFile)
	mux.HandleFunc("/v3/upload", c.handleUpload)
	mux.HandleFunc("/v3/upload/done", c.handleDone)
	mux.HandleFunc("/v3/upload/empty", c.handleEmpty)
	mux.HandleFunc("/", c.handleEgest)
	return httptest.NewServer(mux)
}

// NewDrive builds a drive client pointed at the fake.
func NewDrive(serverURL string) *drive.Drive {
	settings := &config.Settings{GatewayURL: serverURL, IngestURL: serverURL, EgestURL: serverURL}
	client := api.NewClient(settings, "test-key", logging.NewDefaultLogger())
	creds := &config.Credentials{
		Email:          Email,
		APIKey:         "test-key",
		MasterKeys:     MasterKey,
		BaseFolderUUID: RootUUID,
	}
	return drive.New(client, creds, logging.NewDefaultLogger())
}

func ok(w http.ResponseWriter) {
	w.Write([]byte(`{"status":true,"message":"ok"}`))
}

func (c *Cloud) handleContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID string `json:"uuid"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	c.mu.Lock()
	payload, _ := json.Marshal(map[string]interface{}{
		"folders": c.Folders[req.UUID],
		"uploads": c.Files[req.UUID],
	})
	c.mu.Unlock()
	fmt.Fprintf(w, `{"status":true,"message":"ok","data":%s}`, payload)
}

// handleTree serves the recursive listing. File records go out in the
// positional-array form so the dual decoder sees both shapes in tests.
func (c *Cloud) handleTree(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID string `json:"uuid"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	c.mu.Lock()
	folders := []api.FolderRecord{}
	files := [][]interface{}{}
	queue := []string{req.UUID}
	for len(queue) > 0 {
		uuid := queue[0]
		queue = queue[1:]
		for _, rec := range c.Folders[uuid] {
			folders = append(folders, rec)
			queue = append(queue, rec.UUID)
		}
		for _, rec := range c.Files[uuid] {
			files = append(files, []interface{}{
				rec.UUID, rec.Bucket, rec.Region, rec.Chunks, rec.Parent, rec.Metadata, rec.Version,
			})
		}
	}
	c.mu.Unlock()

	payload, _ := json.Marshal(map[string]interface{}{"folders": folders, "files": files})
	fmt.Fprintf(w, `{"status":true,"message":"ok","data":%s}`, payload)
}

func (c *Cloud) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID, Name, Parent string
	}
	json.NewDecoder(r.Body).Decode(&req)
	c.mu.Lock()
	c.Folders[req.Parent] = append(c.Folders[req.Parent], api.FolderRecord{
		UUID: req.UUID, Name: req.Name, Parent: req.Parent,
	})
	c.mu.Unlock()
	fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"uuid":%q}}`, req.UUID)
}

// handleExists answers the hashed-name lookups by decrypting each
// stored record's metadata and hashing its name the way the client
// does.
func (c *Cloud) handleExists(isDir bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Parent     string `json:"parent"`
			NameHashed string `json:"nameHashed"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		c.mu.Lock()
		defer c.mu.Unlock()
		uuid := ""
		if isDir {
			for _, rec := range c.Folders[req.Parent] {
				if hashedFolderName(rec.Name) == req.NameHashed {
					uuid = rec.UUID
					break
				}
			}
		} else {
			for _, rec := range c.Files[req.Parent] {
				if hashedFileName(rec.Metadata) == req.NameHashed {
					uuid = rec.UUID
					break
				}
			}
		}
		fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"exists":%t,"uuid":%q}}`, uuid != "", uuid)
	}
}

func hashedFolderName(envelope string) string {
	plain, err := crypto.DecryptMetadata(envelope, MasterKey)
	if err != nil {
		return ""
	}
	var meta struct {
		Name string `json:"name"`
	}
	name := plain
	if json.Unmarshal([]byte(plain), &meta) == nil && meta.Name != "" {
		name = meta.Name
	}
	return crypto.HashFileName(name, Email, MasterKey)
}

func hashedFileName(envelope string) string {
	plain, err := crypto.DecryptMetadata(envelope, MasterKey)
	if err != nil {
		return ""
	}
	var meta drive.FileMetadata
	if err := json.Unmarshal([]byte(plain), &meta); err != nil {
		return ""
	}
	return crypto.HashFileName(meta.Name, Email, MasterKey)
}

func (c *Cloud) handleRenameDir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID, Name string
	}
	json.NewDecoder(r.Body).Decode(&req)
	c.mu.Lock()
	for parent, records := range c.Folders {
		for i := range records {
			if records[i].UUID == req.UUID {
				c.Folders[parent][i].Name = req.Name
			}
		}
	}
	c.mu.Unlock()
	ok(w)
}

func (c *Cloud) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID, Metadata string
	}
	json.NewDecoder(r.Body).Decode(&req)
	c.mu.Lock()
	for parent, records := range c.Files {
		for i := range records {
			if records[i].UUID == req.UUID {
				c.Files[parent][i].Metadata = req.Metadata
			}
		}
	}
	c.mu.Unlock()
	ok(w)
}

func (c *Cloud) handleMove(isDir bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UUID string `json:"uuid"`
			To   string `json:"to"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		c.mu.Lock()
		if isDir {
			for parent, records := range c.Folders {
				kept := records[:0]
				for _, rec := range records {
					if rec.UUID == req.UUID {
						rec.Parent = req.To
						c.Folders[req.To] = append(c.Folders[req.To], rec)
						continue
					}
					kept = append(kept, rec)
				}
				if parent != req.To {
					c.Folders[parent] = kept
				}
			}
		} else {
			for parent, records := range c.Files {
				kept := records[:0]
				for _, rec := range records {
					if rec.UUID == req.UUID {
						rec.Parent = req.To
						c.Files[req.To] = append(c.Files[req.To], rec)
						continue
					}
					kept = append(kept, rec)
				}
				if parent != req.To {
					c.Files[parent] = kept
				}
			}
		}
		c.mu.Unlock()
		ok(w)
	}
}

func (c *Cloud) handleTrashDir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID string `json:"uuid"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	c.mu.Lock()
	c.Trashed = append(c.Trashed, req.UUID)
	for parent, records := range c.Folders {
		kept := records[:0]
		for _, rec := range records {
			if rec.UUID != req.UUID {
				kept = append(kept, rec)
			}
		}
		c.Folders[parent] = kept
	}
	c.mu.Unlock()
	ok(w)
}

func (c *Cloud) handleTrashFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID string `json:"uuid"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	c.mu.Lock()
	c.Trashed = append(c.Trashed, req.UUID)
	for parent, records := range c.Files {
		kept := records[:0]
		for _, rec := range records {
			if rec.UUID != req.UUID {
				kept = append(kept, rec)
			}
		}
		c.Files[parent] = kept
	}
	c.mu.Unlock()
	ok(w)
}

func (c *Cloud) handleUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uuid := q.Get("uuid")
	index, _ := strconv.Atoi(q.Get("index"))
	body, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailUploadIndex == index {
		c.FailUploadIndex = -1
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if c.ChunkData[uuid] == nil {
		c.ChunkData[uuid] = make(map[int][]byte)
	}
	c.ChunkData[uuid][index] = body
	c.ChunkParent[uuid] = q.Get("parent")
	w.Write([]byte(`{"status":true,"message":"ok","data":{"bucket":"b1","region":"eu"}}`))
}

func (c *Cloud) handleDone(w http.ResponseWriter, r *http.Request) {
	var req api.UploadDoneRequest
	json.NewDecoder(r.Body).Decode(&req)
	size, _ := strconv.ParseInt(req.Size, 10, 64)

	c.mu.Lock()
	parent := c.ChunkParent[req.UUID]
	c.Files[parent] = append(c.Files[parent], api.FileRecord{
		UUID: req.UUID, Metadata: req.Metadata, Parent: parent,
		Size: size, Chunks: req.Chunks, Bucket: "b1", Region: "eu", Version: 2,
	})
	c.mu.Unlock()
	w.Write([]byte(`{"status":true,"message":"ok","data":{"chunks":0,"size":0}}`))
}

func (c *Cloud) handleEmpty(w http.ResponseWriter, r *http.Request) {
	var req api.UploadEmptyRequest
	json.NewDecoder(r.Body).Decode(&req)
	c.mu.Lock()
	c.Files[req.Parent] = append(c.Files[req.Parent], api.FileRecord{
		UUID: req.UUID, Metadata: req.Metadata, Parent: req.Parent,
	})
	c.mu.Unlock()
	ok(w)
}

func (c *Cloud) handleEgest(w http.ResponseWriter, r *http.Request) {
	// Path form: /<region>/<bucket>/<uuid>/<index>
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 4 {
		http.NotFound(w, r)
		return
	}
	index, _ := strconv.Atoi(parts[3])
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailDownloadIndex == index {
		c.FailDownloadIndex = -1
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sealed, found := c.ChunkData[parts[2]][index]
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Write(sealed)
}
