package ops

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justyntemme/strop/internal/conflict"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopy_SingleFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "A", "file.txt")
	dstDir := filepath.Join(root, "B")
	writeFile(t, src, "0123456789")
	require.NoError(t, os.Mkdir(dstDir, 0o755))

	q, _ := newQueue(t, Config{})
	task := wait(t, q, submit(t, q, Request{Kind: Copy, Sources: []string{src}, Destination: dstDir}))

	assert.Equal(t, Succeeded, task.Status)
	assert.Equal(t, "0123456789", readFile(t, filepath.Join(dstDir, "file.txt")))
	assert.Equal(t, "0123456789", readFile(t, src))
	require.Len(t, task.Items, 1)
	assert.EqualValues(t, 10, task.Items[0].BytesDone)
	assert.EqualValues(t, 10, task.Items[0].BytesTotal)
	assert.Equal(t, filepath.Join(dstDir, "file.txt"), task.Items[0].Target)
	noTempFiles(t, dstDir)
}

func TestCopy_DirectoryRoundTrip(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src", "tree")
	files := map[string]string{
		"a.txt":                           "alpha",
		filepath.Join("sub", "b.txt"):     "bravo bravo",
		filepath.Join("sub", "deep", "c"): "",
	}
	for name, content := range files {
		writeFile(t, filepath.Join(src, name), content)
	}
	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink("a.txt", filepath.Join(src, "link")))
	}
	dstDir := filepath.Join(root, "dst")
	require.NoError(t, os.Mkdir(dstDir, 0o755))

	q, _ := newQueue(t, Config{ChunkSize: 3})
	task := wait(t, q, submit(t, q, Request{Kind: Copy, Sources: []string{src}, Destination: dstDir}))
	require.Equal(t, Succeeded, task.Status, "%+v", task.Items)

	// Delete the original, then compare with what it held.
	require.NoError(t, os.RemoveAll(src))
	for name, content := range files {
		assert.Equal(t, content, readFile(t, filepath.Join(dstDir, "tree", name)), name)
	}
	if runtime.GOOS != "windows" {
		target, err := os.Readlink(filepath.Join(dstDir, "tree", "link"))
		require.NoError(t, err)
		assert.Equal(t, "a.txt", target)
	}
}

func TestCopy_PreservesModTime(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "old.txt")
	writeFile(t, src, "x")
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))
	dst := filepath.Join(root, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))

	q, _ := newQueue(t, Config{})
	wait(t, q, submit(t, q, Request{Kind: Copy, Sources: []string{src}, Destination: dst}))
	info, err := os.Stat(filepath.Join(dst, "old.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))
}

func TestCopy_ModTimeFailureIsRecorded(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "tree")
	writeFile(t, filepath.Join(src, "f.txt"), "x")
	dst := filepath.Join(root, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))

	q, _ := newQueue(t, Config{}, WithFileSystem(noTimesFS{}))
	task := wait(t, q, submit(t, q, Request{Kind: Copy, Sources: []string{src}, Destination: dst}))

	require.Len(t, task.Items, 1)
	it := task.Items[0]
	assert.Equal(t, OutcomePartial, it.Outcome)
	assert.Equal(t, fs.CodePermissionDenied, it.Code)
	var paths []string
	for _, f := range it.Failures {
		paths = append(paths, f.Path)
	}
	assert.Contains(t, paths, filepath.Join(dst, "tree"))
	assert.Contains(t, paths, filepath.Join(src, "f.txt"))
	assert.NoFileExists(t, filepath.Join(dst, "tree", "f.txt"))
	noTempFiles(t, filepath.Join(dst, "tree"))
}

func TestCopy_UnreadableChildFailsOnlyItsSubtree(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("needs unix permissions and a non-root user")
	}
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "ok.txt"), "fine")
	writeFile(t, filepath.Join(src, "locked", "secret.txt"), "hidden")
	require.NoError(t, os.Chmod(filepath.Join(src, "locked"), 0o000))
	defer os.Chmod(filepath.Join(src, "locked"), 0o755)
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.Mkdir(dst, 0o755))

	q, _ := newQueue(t, Config{})
	task := wait(t, q, submit(t, q, Request{Kind: Copy, Sources: []string{src}, Destination: dst}))

	assert.Equal(t, PartiallyFailed, task.Status)
	assert.Equal(t, OutcomePartial, task.Items[0].Outcome)
	require.NotEmpty(t, task.Items[0].Failures)
	assert.Equal(t, fs.CodePermissionDenied, task.Items[0].Failures[0].Code)
	assert.Equal(t, "fine", readFile(t, filepath.Join(dst, "src", "ok.txt")))
}

func TestCopy_IntoItselfFails(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "dir")
	writeFile(t, filepath.Join(src, "f"), "x")
	inner := filepath.Join(src, "inner")
	require.NoError(t, os.Mkdir(inner, 0o755))

	q, _ := newQueue(t, Config{})
	task := wait(t, q, submit(t, q, Request{Kind: Copy, Sources: []string{src}, Destination: inner}))
	assert.Equal(t, Failed, task.Status)
	assert.ErrorIs(t, task.Items[0].Err, errIntoItself)
}

func TestMove_SameVolumeIsOneRename(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "A", "dir")
	writeFile(t, filepath.Join(src, "one.txt"), "1")
	writeFile(t, filepath.Join(src, "two", "three.txt"), "3")
	dst := filepath.Join(root, "C")
	require.NoError(t, os.Mkdir(dst, 0o755))

	var renames atomic.Int32
	q, _ := newQueue(t, Config{}, WithFileSystem(countingFS{renames: &renames}))
	task := wait(t, q, submit(t, q, Request{Kind: Move, Sources: []string{src}, Destination: dst}))

	assert.Equal(t, Succeeded, task.Status)
	assert.EqualValues(t, 1, renames.Load())
	assert.NoDirExists(t, src)
	assert.Equal(t, "1", readFile(t, filepath.Join(dst, "dir", "one.txt")))
	assert.Equal(t, "3", readFile(t, filepath.Join(dst, "dir", "two", "three.txt")))
	assert.True(t, task.Items[0].SourceRemoved)
	assert.False(t, task.Items[0].Copied)
	assert.ElementsMatch(t, []string{dst, filepath.Join(root, "A")}, task.AffectedDirs())
	assert.Equal(t, []string{src}, task.Removed())
}

func TestMove_CrossDeviceFallsBackToCopy(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "vol1", "data")
	writeFile(t, filepath.Join(src, "f.txt"), "payload")
	dst := filepath.Join(root, "vol2")
	require.NoError(t, os.Mkdir(dst, 0o755))

	q, _ := newQueue(t, Config{}, WithFileSystem(xdevFS{}))
	task := wait(t, q, submit(t, q, Request{Kind: Move, Sources: []string{src}, Destination: dst}))

	require.Equal(t, Succeeded, task.Status, "%+v", task.Items)
	assert.True(t, task.Items[0].Copied)
	assert.True(t, task.Items[0].SourceRemoved)
	assert.NoDirExists(t, src)
	assert.Equal(t, "payload", readFile(t, filepath.Join(dst, "data", "f.txt")))
}

func TestMove_CrossDeviceDeleteFailureKeepsSource(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "vol1", "keep.txt")
	writeFile(t, src, "precious")
	dst := filepath.Join(root, "vol2")
	require.NoError(t, os.Mkdir(dst, 0o755))

	q, _ := newQueue(t, Config{}, WithFileSystem(xdevFS{failRemove: "keep.txt"}))
	task := wait(t, q, submit(t, q, Request{Kind: Move, Sources: []string{src}, Destination: dst}))

	assert.Equal(t, PartiallyFailed, task.Status)
	it := task.Items[0]
	assert.Equal(t, OutcomePartial, it.Outcome)
	assert.True(t, it.Copied)
	assert.False(t, it.SourceRemoved)
	assert.Equal(t, fs.CodePermissionDenied, it.Code)
	assert.Equal(t, "precious", readFile(t, src))
	assert.Equal(t, "precious", readFile(t, filepath.Join(dst, "keep.txt")))
}

func TestMove_ToSameDirectoryIsNoop(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "f.txt")
	writeFile(t, src, "x")

	q, c := newQueue(t, Config{})
	task := wait(t, q, submit(t, q, Request{Kind: Move, Sources: []string{src}, Destination: root}))
	assert.Equal(t, Succeeded, task.Status)
	assert.Empty(t, c.conflicts())
	assert.Empty(t, task.Removed())
	assert.FileExists(t, src)
}

func TestDelete_OneLockedAmongTen(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "dir")
	for i := 0; i < 9; i++ {
		writeFile(t, filepath.Join(dir, "file"+strconv.Itoa(i)), "x")
	}
	writeFile(t, filepath.Join(dir, "locked"), "x")

	q, _ := newQueue(t, Config{}, WithFileSystem(denyFS{deny: "locked"}))
	task := wait(t, q, submit(t, q, Request{Kind: Delete, Sources: []string{dir}}))

	assert.Equal(t, PartiallyFailed, task.Status)
	it := task.Items[0]
	assert.Equal(t, OutcomePartial, it.Outcome)
	require.Len(t, it.Failures, 1)
	assert.Equal(t, fs.CodePermissionDenied, it.Failures[0].Code)
	assert.Equal(t, filepath.Join(dir, "locked"), it.Failures[0].Path)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "locked", left[0].Name())
	assert.Contains(t, task.AffectedDirs(), dir)
}

func TestDelete_ReadOnlyDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("needs unix permissions and a non-root user")
	}
	root := t.TempDir()
	dir := filepath.Join(root, "dir")
	writeFile(t, filepath.Join(dir, "gone.txt"), "x")
	writeFile(t, filepath.Join(dir, "ro", "stays.txt"), "x")
	require.NoError(t, os.Chmod(filepath.Join(dir, "ro"), 0o555))
	defer os.Chmod(filepath.Join(dir, "ro"), 0o755)

	q, _ := newQueue(t, Config{})
	task := wait(t, q, submit(t, q, Request{Kind: Delete, Sources: []string{dir}}))

	assert.Equal(t, PartiallyFailed, task.Status)
	assert.NoFileExists(t, filepath.Join(dir, "gone.txt"))
	assert.FileExists(t, filepath.Join(dir, "ro", "stays.txt"))
	assert.Equal(t, fs.CodePermissionDenied, task.Items[0].Failures[0].Code)
}

func TestDelete_MissingAndPresent(t *testing.T) {
	root := t.TempDir()
	present := filepath.Join(root, "here")
	writeFile(t, present, "x")

	q, _ := newQueue(t, Config{})
	task := wait(t, q, submit(t, q, Request{Kind: Delete, Sources: []string{filepath.Join(root, "missing"), present}}))
	assert.Equal(t, PartiallyFailed, task.Status)
	assert.Equal(t, fs.CodeNotFound, task.Items[0].Code)
	assert.Equal(t, OutcomeSucceeded, task.Items[1].Outcome)

	task = wait(t, q, submit(t, q, Request{Kind: Delete, Sources: []string{filepath.Join(root, "missing")}}))
	assert.Equal(t, Failed, task.Status)
}

func TestRename(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "old.txt")
	writeFile(t, src, "x")

	q, _ := newQueue(t, Config{})
	task := wait(t, q, submit(t, q, Request{Kind: Rename, Sources: []string{src}, NewName: "new.txt"}))
	assert.Equal(t, Succeeded, task.Status)
	assert.FileExists(t, filepath.Join(root, "new.txt"))
	assert.Equal(t, []string{src}, task.Removed())
}

func TestRename_ConflictCheckedFirst(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	taken := filepath.Join(root, "b.txt")
	writeFile(t, src, "a")
	writeFile(t, taken, "b")

	q, _ := newQueue(t, Config{})
	task := wait(t, q, submit(t, q, Request{Kind: Rename, Sources: []string{src}, NewName: "b.txt", Policy: conflict.AlwaysSkip}))
	assert.Equal(t, Succeeded, task.Status)
	assert.Equal(t, OutcomeSkipped, task.Items[0].Outcome)
	assert.Equal(t, "a", readFile(t, src))
	assert.Equal(t, "b", readFile(t, taken))

	task = wait(t, q, submit(t, q, Request{Kind: Rename, Sources: []string{src}, NewName: "b.txt", Policy: conflict.AutoRename}))
	assert.Equal(t, filepath.Join(root, "b_copy1.txt"), task.Items[0].Target)
	assert.Equal(t, "a", readFile(t, filepath.Join(root, "b_copy1.txt")))
}

func TestCreateFolder(t *testing.T) {
	root := t.TempDir()
	q, _ := newQueue(t, Config{})

	task := wait(t, q, submit(t, q, Request{Kind: CreateFolder, Destination: root, NewName: "new"}))
	assert.Equal(t, Succeeded, task.Status)
	assert.DirExists(t, filepath.Join(root, "new"))

	task = wait(t, q, submit(t, q, Request{Kind: CreateFolder, Destination: root, NewName: "new", Policy: conflict.AutoRename}))
	assert.Equal(t, Succeeded, task.Status)
	assert.DirExists(t, filepath.Join(root, "new_copy1"))

	task = wait(t, q, submit(t, q, Request{Kind: CreateFolder, Destination: root, NewName: "new", Policy: conflict.AlwaysOverwrite}))
	assert.Equal(t, Succeeded, task.Status)
	assert.Equal(t, []string{root}, task.AffectedDirs())
}

func TestTrash(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.Mkdir(bin, 0o755))
	src := filepath.Join(root, "junk.txt")
	writeFile(t, src, "x")

	q, _ := newQueue(t, Config{}, WithTrash(fakeTrash{dir: bin}))
	task := wait(t, q, submit(t, q, Request{Kind: Trash, Sources: []string{src}}))
	assert.Equal(t, Succeeded, task.Status)
	assert.NoFileExists(t, src)
	assert.FileExists(t, filepath.Join(bin, "junk.txt"))
	assert.Equal(t, filepath.Join(bin, "junk.txt"), task.Items[0].Target)

	q2, _ := newQueue(t, Config{})
	writeFile(t, src, "x")
	task = wait(t, q2, submit(t, q2, Request{Kind: Trash, Sources: []string{src}}))
	assert.Equal(t, Failed, task.Status)
	assert.Equal(t, fs.CodeIO, task.Items[0].Code)
}

func TestSubmit_Validation(t *testing.T) {
	q, _ := newQueue(t, Config{})
	bad := []Request{
		{Kind: Copy, Sources: []string{"/a"}},
		{Kind: Move, Destination: "/b"},
		{Kind: Delete},
		{Kind: Rename, Sources: []string{"/a", "/b"}, NewName: "c"},
		{Kind: Rename, Sources: []string{"/a"}, NewName: "x/y"},
		{Kind: CreateFolder, Destination: "/a", NewName: ".."},
		{Kind: Kind(42), Sources: []string{"/a"}},
		{Kind: Delete, Sources: []string{"  "}},
	}
	for _, req := range bad {
		_, err := q.Submit(req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", req)
	}
}

func TestSubmit_DeduplicatesSources(t *testing.T) {
	root := t.TempDir()
	f := filepath.Join(root, "f")
	writeFile(t, f, "x")

	q, _ := newQueue(t, Config{})
	id := submit(t, q, Request{Kind: Delete, Sources: []string{f, f + string(filepath.Separator) + ".", f}})
	task := wait(t, q, id)
	assert.Equal(t, []string{f}, task.Sources)
	assert.Len(t, task.Items, 1)
}

func TestDeriveStatus(t *testing.T) {
	item := func(o Outcome) Item { return Item{Outcome: o} }
	testCases := []struct {
		items     []Item
		cancelled bool
		want      Status
	}{
		{[]Item{item(OutcomeSucceeded), item(OutcomeSkipped)}, false, Succeeded},
		{[]Item{item(OutcomeSucceeded), item(OutcomeFailed)}, false, PartiallyFailed},
		{[]Item{item(OutcomePartial)}, false, PartiallyFailed},
		{[]Item{item(OutcomeFailed), item(OutcomeFailed)}, false, Failed},
		{[]Item{item(OutcomeSucceeded), item(OutcomeCancelled)}, false, Cancelled},
		{[]Item{item(OutcomeSucceeded)}, true, Cancelled},
		{nil, false, Succeeded},
	}
	for i, tc := range testCases {
		assert.Equal(t, tc.want, deriveStatus(tc.items, tc.cancelled), "case %d", i)
	}
}
