package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrispStrobe/filen-cli/internal/api"
	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/crypto"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

const testMasterKey = "aaaabbbbccccddddeeeeffff0000111122223333444455556666777788889999"

// fakeDrive is an in-memory gateway serving dir/content and dir/create
// with real envelope encryption, so the decode path is exercised
// end to end.
type fakeDrive struct {
	t  *testing.T
	mu sync.Mutex

	folders map[string][]api.FolderRecord // parent uuid -> children
	files   map[string][]api.FileRecord

	contentCalls int
}

func newFakeDrive(t *testing.T) *fakeDrive {
	return &fakeDrive{
		t:       t,
		folders: make(map[string][]api.FolderRecord),
		files:   make(map[string][]api.FileRecord),
	}
}

func (f *fakeDrive) addFolder(parent, uuid, name string) {
	f.t.Helper()
	meta, err := json.Marshal(map[string]string{"name": name})
	require.NoError(f.t, err)
	envelope, err := crypto.EncryptMetadata(string(meta), testMasterKey)
	require.NoError(f.t, err)
	f.folders[parent] = append(f.folders[parent], api.FolderRecord{
		UUID: uuid, Name: envelope, Parent: parent,
	})
}

// addFolderBareName seals the name without the JSON wrapper, the way
// older accounts stored folder names.
func (f *fakeDrive) addFolderBareName(parent, uuid, name string) {
	f.t.Helper()
	envelope, err := crypto.EncryptMetadata(name, testMasterKey)
	require.NoError(f.t, err)
	f.folders[parent] = append(f.folders[parent], api.FolderRecord{
		UUID: uuid, Name: envelope, Parent: parent,
	})
}

func (f *fakeDrive) addFile(parent, uuid, name string, size int64) {
	f.t.Helper()
	key, err := crypto.RandomString(crypto.FileKeySize)
	require.NoError(f.t, err)
	meta, err := json.Marshal(FileMetadata{Name: name, Size: size, MIME: "text/plain", Key: key})
	require.NoError(f.t, err)
	envelope, err := crypto.EncryptMetadata(string(meta), testMasterKey)
	require.NoError(f.t, err)
	f.files[parent] = append(f.files[parent], api.FileRecord{
		UUID: uuid, Metadata: envelope, Parent: parent, Size: size, Chunks: 1,
		Bucket: "b", Region: "eu", Version: 2,
	})
}

func (f *fakeDrive) addUndecryptableFile(parent, uuid string, size int64) {
	f.t.Helper()
	envelope, err := crypto.EncryptMetadata(`{"name":"hidden"}`, "some-other-key")
	require.NoError(f.t, err)
	f.files[parent] = append(f.files[parent], api.FileRecord{
		UUID: uuid, Metadata: envelope, Parent: parent, Size: size,
	})
}

func (f *fakeDrive) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/dir/content", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UUID string `json:"uuid"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		f.contentCalls++
		payload := map[string]interface{}{
			"folders": f.folders[req.UUID],
			"uploads": f.files[req.UUID],
		}
		f.mu.Unlock()

		data, err := json.Marshal(payload)
		require.NoError(f.t, err)
		fmt.Fprintf(w, `{"status":true,"message":"ok","data":%s}`, data)
	})
	mux.HandleFunc("/v3/dir/create", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UUID   string `json:"uuid"`
			Name   string `json:"name"`
			Parent string `json:"parent"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		f.folders[req.Parent] = append(f.folders[req.Parent], api.FolderRecord{
			UUID: req.UUID, Name: req.Name, Parent: req.Parent,
		})
		f.mu.Unlock()

		fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"uuid":%q}}`, req.UUID)
	})
	return httptest.NewServer(mux)
}

func newTestDrive(t *testing.T, serverURL string) *Drive {
	settings := &config.Settings{GatewayURL: serverURL, IngestURL: serverURL, EgestURL: serverURL}
	client := api.NewClient(settings, "key", logging.NewDefaultLogger())
	creds := &config.Credentials{
		Email:          "user@example.com",
		APIKey:         "key",
		MasterKeys:     testMasterKey,
		BaseFolderUUID: "root",
	}
	return New(client, creds, logging.NewDefaultLogger())
}

func TestListDecryptsNames(t *testing.T) {
	fake := newFakeDrive(t)
	fake.addFolder("root", "f1", "documents")
	fake.addFile("root", "u1", "notes.txt", 120)
	fake.addUndecryptableFile("root", "u2", 999)
	server := fake.server()
	defer server.Close()

	d := newTestDrive(t, server.URL)
	listing, err := d.List(context.Background(), "root")
	require.NoError(t, err)

	require.Len(t, listing.Folders, 1)
	assert.Equal(t, "documents", listing.Folders[0].Name)

	require.Len(t, listing.Files, 2)
	assert.Equal(t, "notes.txt", listing.Files[0].Name)
	assert.Equal(t, int64(120), listing.Files[0].Size)

	// Undecryptable entries keep the placeholder name and wire size.
	assert.Equal(t, EncryptedName, listing.Files[1].Name)
	assert.Equal(t, int64(999), listing.Files[1].Size)
}

func TestFolderNameForms(t *testing.T) {
	// Both plaintext forms of a folder name envelope decode: the JSON
	// object and the bare string.
	fake := newFakeDrive(t)
	fake.addFolder("root", "f1", "wrapped")
	fake.addFolderBareName("root", "f2", "Documents")
	server := fake.server()
	defer server.Close()

	d := newTestDrive(t, server.URL)
	listing, err := d.List(context.Background(), "root")
	require.NoError(t, err)
	require.Len(t, listing.Folders, 2)
	assert.Equal(t, "wrapped", listing.Folders[0].Name)
	assert.Equal(t, "Documents", listing.Folders[1].Name)

	cases := []struct {
		plaintext string
		want      string
	}{
		{`{"name":"docs"}`, "docs"},
		{"Documents", "Documents"},
		{"", EncryptedName},
		{`{"name":""}`, EncryptedName},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, folderNameFromPlaintext(tc.plaintext), tc.plaintext)
	}
}

func TestListUsesCache(t *testing.T) {
	fake := newFakeDrive(t)
	fake.addFolder("root", "f1", "documents")
	server := fake.server()
	defer server.Close()

	d := newTestDrive(t, server.URL)
	_, err := d.List(context.Background(), "root")
	require.NoError(t, err)
	_, err = d.List(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.contentCalls)

	d.InvalidateFolder("root")
	_, err = d.List(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.contentCalls)
}

func TestResolve(t *testing.T) {
	fake := newFakeDrive(t)
	fake.addFolder("root", "f1", "docs")
	fake.addFolder("f1", "f2", "reports")
	fake.addFile("f1", "u1", "reports", 10) // same name as the folder
	fake.addFile("f2", "u2", "q1.pdf", 2048)
	server := fake.server()
	defer server.Close()

	d := newTestDrive(t, server.URL)
	ctx := context.Background()

	folder, file, err := d.Resolve(ctx, "/docs/reports/q1.pdf")
	require.NoError(t, err)
	assert.Nil(t, folder)
	require.NotNil(t, file)
	assert.Equal(t, "u2", file.UUID)

	// A folder and a file share the name "reports"; the folder wins.
	folder, file, err = d.Resolve(ctx, "/docs/reports")
	require.NoError(t, err)
	require.NotNil(t, folder)
	assert.Nil(t, file)
	assert.Equal(t, "f2", folder.UUID)

	// Root resolves to the base folder.
	folder, _, err = d.Resolve(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, "root", folder.UUID)
}

func TestResolveNotFound(t *testing.T) {
	fake := newFakeDrive(t)
	fake.addFolder("root", "f1", "docs")
	server := fake.server()
	defer server.Close()

	d := newTestDrive(t, server.URL)
	_, _, err := d.Resolve(context.Background(), "/docs/missing/deep.txt")
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "/docs/missing/deep.txt", notFound.Path)
	assert.Equal(t, "/docs", notFound.ResolvedPrefix)
}

func TestMkdirAll(t *testing.T) {
	fake := newFakeDrive(t)
	fake.addFolder("root", "f1", "docs")
	server := fake.server()
	defer server.Close()

	d := newTestDrive(t, server.URL)
	folder, err := d.MkdirAll(context.Background(), "/docs/archive/2025")
	require.NoError(t, err)
	assert.Equal(t, "2025", folder.Name)

	// The created chain is resolvable afterwards.
	resolved, err := d.ResolveFolder(context.Background(), "/docs/archive/2025")
	require.NoError(t, err)
	assert.Equal(t, folder.UUID, resolved.UUID)
}

func TestFindAndSearch(t *testing.T) {
	fake := newFakeDrive(t)
	fake.addFolder("root", "f1", "docs")
	fake.addFile("f1", "u1", "Report-Q1.pdf", 10)
	fake.addFile("f1", "u2", "summary.txt", 10)
	fake.addFile("root", "u3", "report-final.pdf", 10)
	server := fake.server()
	defer server.Close()

	d := newTestDrive(t, server.URL)
	matches, err := d.Search(context.Background(), d.RootFolder(), "/", "report")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	paths := []string{matches[0].Path, matches[1].Path}
	assert.Contains(t, paths, "/docs/Report-Q1.pdf")
	assert.Contains(t, paths, "/report-final.pdf")
}

func TestTree(t *testing.T) {
	fake := newFakeDrive(t)
	fake.addFolder("root", "f1", "docs")
	fake.addFile("f1", "u1", "a.txt", 1)
	fake.addFile("root", "u2", "b.txt", 1)
	server := fake.server()
	defer server.Close()

	d := newTestDrive(t, server.URL)
	lines, err := d.Tree(context.Background(), d.RootFolder(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/",
		"├── docs/",
		"│   └── a.txt",
		"└── b.txt",
	}, lines)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.PutListing("f1", &Listing{})
	_, ok := c.GetListing("f1")
	assert.True(t, ok)

	now = now.Add(listingTTL + time.Second)
	_, ok = c.GetListing("f1")
	assert.False(t, ok)
}

func TestCachePathWipedOnInvalidation(t *testing.T) {
	c := NewCache()
	c.PutPath("/a/b", pathTarget{Folder: &Folder{UUID: "x"}})
	c.PutPath("/c", pathTarget{File: &File{UUID: "y"}})

	// Invalidating any folder clears every cached path.
	c.InvalidateFolder("unrelated")
	_, ok := c.GetPath("/a/b")
	assert.False(t, ok)
	_, ok = c.GetPath("/c")
	assert.False(t, ok)
}

func TestFileKeyBytes(t *testing.T) {
	raw := &File{Key: "0123456789abcdefghijklmnopqrstuv"}
	key, err := raw.KeyBytes()
	require.NoError(t, err)
	assert.Len(t, key, crypto.FileKeySize)
	assert.Equal(t, []byte(raw.Key), key)

	b64 := &File{Key: "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="}
	key, err = b64.KeyBytes()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}
