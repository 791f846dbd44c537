//go:build linux

package trash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutListRestore(t *testing.T) {
	b := &Bin{Root: filepath.Join(t.TempDir(), "Trash")}
	work := t.TempDir()
	path := filepath.Join(work, "my file.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	item, err := b.Put(path)
	require.NoError(t, err)
	assert.NoFileExists(t, path)
	assert.FileExists(t, item.TrashPath)
	assert.Equal(t, path, item.OriginalPath)

	info, err := os.ReadFile(filepath.Join(b.Root, "info", item.Name+".trashinfo"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(info), "[Trash Info]\n"))
	assert.Contains(t, string(info), "my%20file.txt")

	items, err := b.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, path, items[0].OriginalPath)
	assert.EqualValues(t, 5, items[0].Size)

	require.NoError(t, b.Restore(items[0]))
	assert.FileExists(t, path)
	items, err = b.List()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPut_NameCollision(t *testing.T) {
	b := &Bin{Root: filepath.Join(t.TempDir(), "Trash")}
	var names []string
	for _, dir := range []string{t.TempDir(), t.TempDir()} {
		path := filepath.Join(dir, "same.txt")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		item, err := b.Put(path)
		require.NoError(t, err)
		names = append(names, item.Name)
	}
	assert.Equal(t, []string{"same.txt", "same.1.txt"}, names)

	require.NoError(t, b.Empty())
	items, err := b.List()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPut_Missing(t *testing.T) {
	b := &Bin{Root: filepath.Join(t.TempDir(), "Trash")}
	_, err := b.Put(filepath.Join(t.TempDir(), "gone"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
