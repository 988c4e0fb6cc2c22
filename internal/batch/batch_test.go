package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/drivetest"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

func newTestRunner(t *testing.T, serverURL string) *Runner {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return NewRunner(drivetest.NewDrive(serverURL), logging.NewDefaultLogger())
}

func writeLocalFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 253)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func stateFileExists(t *testing.T, id string) bool {
	t.Helper()
	dir, err := config.BatchStateDir()
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "batch_state_"+id+".json"))
	return err == nil
}

func TestBatchID(t *testing.T) {
	id := ID("upload", []string{"/a", "/b"}, "/dest")
	assert.Len(t, id, 16)
	assert.Equal(t, id, ID("upload", []string{"/a", "/b"}, "/dest"))
	assert.NotEqual(t, id, ID("upload", []string{"/b", "/a"}, "/dest"))
	assert.NotEqual(t, id, ID("download", []string{"/a", "/b"}, "/dest"))
}

func TestStatePersistence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	state := NewUploadState([]string{"/tmp/a.txt"}, "/dest",
		[]LocalEntry{{LocalPath: "/tmp/a.txt", RelPath: "a.txt"}})
	assert.Equal(t, -1, state.Items[0].LastChunk)
	assert.Equal(t, "/dest/a.txt", state.Items[0].RemotePath)
	require.NoError(t, state.Save())

	loaded, err := Load(state.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.ID, loaded.ID)
	assert.Equal(t, StatusPending, loaded.Items[0].Status)
	assert.False(t, loaded.HasErrors())

	loaded.Items[0].Status = StatusInterrupted
	assert.True(t, loaded.HasErrors())

	require.NoError(t, state.Delete())
	gone, err := Load(state.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestUploadBatchRoundTrip(t *testing.T) {
	cloud := drivetest.NewCloud()
	server := cloud.Server()
	defer server.Close()

	r := newTestRunner(t, server.URL)
	local := t.TempDir()
	a := writeLocalFile(t, local, "a.bin", 1500000)
	b := writeLocalFile(t, local, "b.txt", 64)

	state, err := r.Upload(context.Background(), []string{a, b}, "/backup/2025")
	require.NoError(t, err)
	for _, item := range state.Items {
		assert.Equal(t, StatusCompleted, item.Status, item.LocalPath)
	}
	assert.False(t, stateFileExists(t, state.ID), "clean batch keeps no state file")

	// Download them back and compare.
	out := filepath.Join(t.TempDir(), "restore")
	dlState, err := r.Download(context.Background(), []string{"/backup/2025/a.bin", "/backup/2025/b.txt"}, out)
	require.NoError(t, err)
	for _, item := range dlState.Items {
		assert.Equal(t, StatusCompleted, item.Status, item.RemotePath)
	}

	want, _ := os.ReadFile(a)
	got, _ := os.ReadFile(filepath.Join(out, "a.bin"))
	assert.Equal(t, want, got)
}

func TestUploadConflictPolicies(t *testing.T) {
	remoteModified := time.Now().UnixMilli()

	cases := []struct {
		name       string
		policy     ConflictPolicy
		localMtime time.Time
		want       Status
	}{
		{"skip", PolicySkip, time.Now(), StatusSkippedConflict},
		{"newer wins", PolicyNewer, time.Now().Add(time.Hour), StatusCompleted},
		{"newer loses", PolicyNewer, time.Now().Add(-time.Hour), StatusSkippedNewer},
		{"overwrite", PolicyOverwrite, time.Now().Add(-time.Hour), StatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cloud := drivetest.NewCloud()
			cloud.AddFile(t, drivetest.RootUUID, "data.bin", 100, remoteModified)
			server := cloud.Server()
			defer server.Close()

			r := newTestRunner(t, server.URL)
			r.Policy = tc.policy

			local := writeLocalFile(t, t.TempDir(), "data.bin", 100)
			require.NoError(t, os.Chtimes(local, tc.localMtime, tc.localMtime))

			state, err := r.Upload(context.Background(), []string{local}, "/")
			require.NoError(t, err)
			assert.Equal(t, tc.want, state.Items[0].Status)

			if tc.want == StatusCompleted {
				assert.Len(t, cloud.Trashed, 1, "replacement trashes the old file")
			} else {
				assert.Empty(t, cloud.Trashed)
			}
		})
	}
}

func TestUploadConflictSeenThroughStaleCache(t *testing.T) {
	cloud := drivetest.NewCloud()
	server := cloud.Server()
	defer server.Close()

	r := newTestRunner(t, server.URL)

	// Warm the listing cache while the folder is still empty, then let
	// another client create the file behind the cache's back. The
	// hashed-name check must still see the conflict.
	_, err := r.drive.List(context.Background(), drivetest.RootUUID)
	require.NoError(t, err)
	cloud.AddFile(t, drivetest.RootUUID, "data.bin", 100, time.Now().UnixMilli())

	local := writeLocalFile(t, t.TempDir(), "data.bin", 100)
	state, err := r.Upload(context.Background(), []string{local}, "/")
	require.NoError(t, err)
	assert.Equal(t, StatusSkippedConflict, state.Items[0].Status)
}

func TestUploadMissingLocalFile(t *testing.T) {
	cloud := drivetest.NewCloud()
	server := cloud.Server()
	defer server.Close()

	r := newTestRunner(t, server.URL)
	state, err := r.Upload(context.Background(), []string{"/nonexistent/file.txt"}, "/dest")
	require.NoError(t, err)
	assert.Equal(t, StatusSkippedMissing, state.Items[0].Status)
	// Skips are clean; no state file survives.
	assert.False(t, stateFileExists(t, state.ID))
}

func TestUploadInterruptedThenResumed(t *testing.T) {
	cloud := drivetest.NewCloud()
	cloud.FailUploadIndex = 2
	server := cloud.Server()
	defer server.Close()

	r := newTestRunner(t, server.URL)
	local := writeLocalFile(t, t.TempDir(), "big.bin", 3*1024*1024+10)

	state, err := r.Upload(context.Background(), []string{local}, "/dest")
	require.NoError(t, err)
	item := state.Items[0]
	assert.Equal(t, StatusInterrupted, item.Status)
	assert.Equal(t, 1, item.LastChunk)
	assert.NotEmpty(t, item.FileUUID)
	assert.NotEmpty(t, item.UploadKey)
	assert.True(t, stateFileExists(t, state.ID), "interrupted batch keeps its state")

	// Re-running the identical command resumes and finishes.
	state2, err := r.Upload(context.Background(), []string{local}, "/dest")
	require.NoError(t, err)
	assert.Equal(t, state.ID, state2.ID)
	assert.Equal(t, StatusCompleted, state2.Items[0].Status)
	assert.False(t, stateFileExists(t, state2.ID))

	// Chunks before the failure were never re-sent.
	assert.Len(t, cloud.ChunkData[item.FileUUID], 4)
}

func TestFilterAdmits(t *testing.T) {
	cases := []struct {
		name            string
		include, exclude []string
		file            string
		want            bool
	}{
		{"no filter", nil, nil, "a.txt", true},
		{"include match", []string{"*.txt"}, nil, "a.txt", true},
		{"include miss", []string{"*.txt"}, nil, "a.log", false},
		{"exclude match", nil, []string{"*.log"}, "a.log", false},
		{"exclude wins over include", []string{"*"}, []string{"*.log"}, "a.log", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			filter, err := NewFilter(tc.include, tc.exclude)
			require.NoError(t, err)
			assert.Equal(t, tc.want, filter.Admits(tc.file))
		})
	}

	_, err := NewFilter([]string{"[broken"}, nil)
	assert.Error(t, err)
}

func TestRecursiveRoundTripWithFilter(t *testing.T) {
	cloud := drivetest.NewCloud()
	server := cloud.Server()
	defer server.Close()

	r := newTestRunner(t, server.URL)
	r.Recursive = true
	filter, err := NewFilter(nil, []string{"*.log"})
	require.NoError(t, err)
	r.Filter = filter

	base := t.TempDir()
	src := filepath.Join(base, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	a := writeLocalFile(t, src, "a.txt", 1024)
	b := writeLocalFile(t, filepath.Join(src, "sub"), "b.bin", 1500000)
	writeLocalFile(t, filepath.Join(src, "sub"), "noise.log", 10)

	state, err := r.Upload(context.Background(), []string{src}, "/backup")
	require.NoError(t, err)
	require.Len(t, state.Items, 2, "filtered file must not enumerate")
	for _, item := range state.Items {
		assert.Equal(t, StatusCompleted, item.Status, item.LocalPath)
	}

	out := filepath.Join(t.TempDir(), "restore")
	dlState, err := r.Download(context.Background(), []string{"/backup/src"}, out)
	require.NoError(t, err)
	require.Len(t, dlState.Items, 2)
	for _, item := range dlState.Items {
		assert.Equal(t, StatusCompleted, item.Status, item.RemotePath)
	}

	for local, original := range map[string]string{
		filepath.Join(out, "src", "a.txt"):          a,
		filepath.Join(out, "src", "sub", "b.bin"): b,
	} {
		want, err := os.ReadFile(original)
		require.NoError(t, err)
		got, err := os.ReadFile(local)
		require.NoError(t, err)
		assert.Equal(t, want, got, local)
	}
}

func TestDownloadPreservesTimestamps(t *testing.T) {
	cloud := drivetest.NewCloud()
	server := cloud.Server()
	defer server.Close()

	r := newTestRunner(t, server.URL)
	local := writeLocalFile(t, t.TempDir(), "stamped.bin", 256)
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(local, mtime, mtime))

	_, err := r.Upload(context.Background(), []string{local}, "/")
	require.NoError(t, err)

	r.PreserveTimestamps = true
	out := t.TempDir()
	state, err := r.Download(context.Background(), []string{"/stamped.bin"}, out)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, state.Items[0].Status)

	info, err := os.Stat(filepath.Join(out, "stamped.bin"))
	require.NoError(t, err)
	assert.Equal(t, mtime.UnixMilli(), info.ModTime().UnixMilli())
}

func TestDownloadMissingRemote(t *testing.T) {
	cloud := drivetest.NewCloud()
	server := cloud.Server()
	defer server.Close()

	r := newTestRunner(t, server.URL)
	state, err := r.Download(context.Background(), []string{"/no/such/file.txt"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, StatusSkippedMissing, state.Items[0].Status)
}

func TestParsePolicy(t *testing.T) {
	for _, name := range []string{"skip", "overwrite", "newer"} {
		policy, err := ParsePolicy(name)
		require.NoError(t, err)
		assert.Equal(t, ConflictPolicy(name), policy)
	}
	_, err := ParsePolicy("merge")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}
