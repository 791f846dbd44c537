package scan

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/justyntemme/strop/internal/event"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, d := range []string{"dir1", "dir2", ".hidden_dir", filepath.Join("dir1", "nested")} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, d), 0o755))
	}
	for _, f := range []string{"file1.txt", "file2.go", ".hidden_file", filepath.Join("dir1", "inner.txt")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("content"), 0o644))
	}
	return dir
}

func names(entries []fs.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestWalk_DirectChildrenOnly(t *testing.T) {
	dir := makeTree(t)
	var got []fs.Entry
	require.NoError(t, Walk(context.Background(), dir, func(e fs.Entry) error {
		got = append(got, e)
		return nil
	}))
	assert.ElementsMatch(t, []string{"dir1", "dir2", ".hidden_dir", "file1.txt", "file2.go", ".hidden_file"}, names(got))
	for _, e := range got {
		assert.Equal(t, filepath.Join(dir, e.Name), e.Path)
	}
}

func TestWalk_SymlinkCycleTerminates(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	require.NoError(t, os.Symlink(dir, filepath.Join(dir, "self")))

	var got []fs.Entry
	require.NoError(t, Walk(context.Background(), dir, func(e fs.Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 1)
	assert.Equal(t, fs.KindSymlink, got[0].Kind)
}

func TestWalk_Errors(t *testing.T) {
	err := Walk(context.Background(), filepath.Join(t.TempDir(), "missing"), func(fs.Entry) error { return nil })
	assert.ErrorIs(t, err, fs.ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Walk(ctx, makeTree(t), func(fs.Entry) error { return nil })
	assert.Equal(t, fs.CodeCancelled, fs.CodeOf(err))
}

func TestScan_CompleteAndSorted(t *testing.T) {
	dir := makeTree(t)
	s := New(nil, 2)
	defer s.Close()

	res := s.Scan(context.Background(), dir)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{".hidden_dir", ".hidden_file", "dir1", "dir2", "file1.txt", "file2.go"}, names(res.Entries))

	for _, e := range res.Entries {
		if e.Name == "dir1" {
			assert.Equal(t, fs.KindDirectory, e.Kind)
		}
		if e.Name == "file1.txt" {
			assert.True(t, e.HasSize)
			assert.EqualValues(t, 7, e.Size)
		}
		if e.Name[0] == '.' && runtime.GOOS != "windows" {
			assert.True(t, e.Hidden)
		}
	}
}

func TestScan_EmptyDirectory(t *testing.T) {
	s := New(nil, 1)
	defer s.Close()
	res := s.Scan(context.Background(), t.TempDir())
	require.NoError(t, res.Err)
	assert.Empty(t, res.Entries)
}

func TestScan_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("needs unix permissions and a non-root user")
	}
	dir := t.TempDir()
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Mkdir(locked, 0o000))
	defer os.Chmod(locked, 0o755)

	s := New(nil, 1)
	defer s.Close()
	res := s.Scan(context.Background(), locked)
	assert.ErrorIs(t, res.Err, fs.ErrPermissionDenied)
}

type waitSink struct {
	updates chan index.TreeUpdated
}

func (w *waitSink) Emit(e event.Event) {
	if tu, ok := e.(index.TreeUpdated); ok {
		w.updates <- tu
	}
}

func TestRequest_FeedsIndex(t *testing.T) {
	dir := makeTree(t)
	sink := &waitSink{updates: make(chan index.TreeUpdated, 8)}
	idx := index.New(sink)
	s := New(idx, 4)
	defer s.Close()
	idx.SetRequester(s)

	n := idx.GetNode(dir)
	assert.False(t, n.Loaded)

	select {
	case tu := <-sink.updates:
		assert.Equal(t, dir, tu.Path)
		assert.True(t, tu.Loaded)
		assert.Len(t, tu.Entries, 6)
	case <-time.After(5 * time.Second):
		t.Fatal("scan result never applied")
	}

	n = idx.GetNode(dir)
	assert.True(t, n.Loaded)
	assert.Len(t, n.Entries, 6)

	// Scanning the same unchanged directory twice gives the same listing.
	idx.Refresh(dir)
	select {
	case tu := <-sink.updates:
		assert.Equal(t, names(n.Entries), names(tu.Entries))
	case <-time.After(5 * time.Second):
		t.Fatal("rescan never applied")
	}
}

func TestClose_StopsIntake(t *testing.T) {
	s := New(nil, 1)
	s.Close()
	s.Request(t.TempDir())
	s.Close()
}
