package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

func testClient(serverURL, apiKey string) *Client {
	settings := &config.Settings{
		GatewayURL: serverURL,
		IngestURL:  serverURL,
		EgestURL:   serverURL,
	}
	return NewClient(settings, apiKey, logging.NewDefaultLogger())
}

func TestRequestSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"status":true,"message":"ok","data":{"uuid":"root-uuid"}}`))
	}))
	defer server.Close()

	c := testClient(server.URL, "secret-token")
	uuid, err := c.UserBaseFolder(context.Background())
	if err != nil {
		t.Fatalf("UserBaseFolder failed: %v", err)
	}
	if uuid != "root-uuid" {
		t.Errorf("uuid = %q, want %q", uuid, "root-uuid")
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want Bearer token", gotAuth)
	}
}

func TestRequestStatusFalse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":false,"message":"folder not found","code":"folder_not_found"}`))
	}))
	defer server.Close()

	c := testClient(server.URL, "key")
	_, err := c.DirContent(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for status=false")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Code != "folder_not_found" {
		t.Errorf("code = %q, want folder_not_found", apiErr.Code)
	}
}

func TestRequestRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"status":true,"message":"ok","data":{"authVersion":2,"salt":"s"}}`))
	}))
	defer server.Close()

	c := testClient(server.URL, "")
	info, err := c.AuthInfo(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("AuthInfo failed after retry: %v", err)
	}
	if info.AuthVersion != 2 {
		t.Errorf("authVersion = %d, want 2", info.AuthVersion)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestUploadChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("uuid") != "file-1" || q.Get("index") != "3" || q.Get("uploadKey") != "upkey" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "encrypted-bytes" {
			t.Errorf("body = %q", body)
		}
		w.Write([]byte(`{"status":true,"message":"ok","data":{"bucket":"b1","region":"eu"}}`))
	}))
	defer server.Close()

	c := testClient(server.URL, "key")
	result, err := c.UploadChunk(context.Background(), "file-1", 3, "parent-1", "upkey", "hash", []byte("encrypted-bytes"))
	if err != nil {
		t.Fatalf("UploadChunk failed: %v", err)
	}
	if result.Bucket != "b1" || result.Region != "eu" {
		t.Errorf("result = %+v", result)
	}
}

func TestDownloadChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eu/bucket-1/file-1/2" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte("raw-chunk"))
	}))
	defer server.Close()

	c := testClient(server.URL, "key")
	data, err := c.DownloadChunk(context.Background(), "eu", "bucket-1", "file-1", 2)
	if err != nil {
		t.Fatalf("DownloadChunk failed: %v", err)
	}
	if string(data) != "raw-chunk" {
		t.Errorf("data = %q", data)
	}
}

func TestTreeFileRecordForms(t *testing.T) {
	var fromObj TreeFileRecord
	objJSON := `{"uuid":"u1","bucket":"b","region":"eu","chunks":4,"parent":"p","metadata":"m","version":2}`
	if err := json.Unmarshal([]byte(objJSON), &fromObj); err != nil {
		t.Fatalf("object form failed: %v", err)
	}

	var fromArr TreeFileRecord
	arrJSON := `["u1","b","eu",4,"p","m",2]`
	if err := json.Unmarshal([]byte(arrJSON), &fromArr); err != nil {
		t.Fatalf("array form failed: %v", err)
	}

	if fromObj != fromArr {
		t.Errorf("forms disagree: obj=%+v arr=%+v", fromObj, fromArr)
	}
	if fromArr.Chunks != 4 || fromArr.Version != 2 {
		t.Errorf("decoded record = %+v", fromArr)
	}
}

func TestTreeFolderRecordForms(t *testing.T) {
	var rec TreeFolderRecord
	if err := json.Unmarshal([]byte(`["u1","encname","p1"]`), &rec); err != nil {
		t.Fatalf("array form failed: %v", err)
	}
	if rec.UUID != "u1" || rec.Name != "encname" || rec.Parent != "p1" {
		t.Errorf("decoded record = %+v", rec)
	}
}
