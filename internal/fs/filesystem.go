package fs

import (
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"time"
)

// Common permission modes for created entries.
const (
	DirPermission  = 0o755
	FilePermission = 0o644
)

// TempFile is a file being written before it is renamed into place.
type TempFile interface {
	io.WriteCloser
	Name() string
}

// FileSystem is the set of primitives the engine consumes. Implementations
// return raw errors; callers categorize them.
type FileSystem interface {
	Lstat(path string) (iofs.FileInfo, error)
	ReadDir(path string) ([]iofs.DirEntry, error)
	Open(path string) (io.ReadCloser, error)
	CreateTemp(dir, pattern string) (TempFile, error)
	Mkdir(path string, perm iofs.FileMode) error
	Rename(oldpath, newpath string) error
	Remove(path string) error
	Chmod(path string, mode iofs.FileMode) error
	Chtimes(path string, atime, mtime time.Time) error
	Readlink(path string) (string, error)
	Symlink(oldname, newname string) error
}

// OS is the FileSystem backed by the local operating system.
type OS struct{}

func (OS) Lstat(path string) (iofs.FileInfo, error)     { return os.Lstat(path) }
func (OS) ReadDir(path string) ([]iofs.DirEntry, error) { return os.ReadDir(path) }
func (OS) Open(path string) (io.ReadCloser, error)      { return os.Open(path) }
func (OS) Mkdir(path string, perm iofs.FileMode) error  { return os.Mkdir(path, perm) }
func (OS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (OS) Remove(path string) error                     { return os.Remove(path) }
func (OS) Chmod(path string, mode iofs.FileMode) error  { return os.Chmod(path, mode) }
func (OS) Readlink(path string) (string, error)         { return os.Readlink(path) }
func (OS) Symlink(oldname, newname string) error        { return os.Symlink(oldname, newname) }

func (OS) CreateTemp(dir, pattern string) (TempFile, error) {
	return os.CreateTemp(dir, pattern)
}

func (OS) Chtimes(path string, atime, mtime time.Time) error {
	return os.Chtimes(path, atime, mtime)
}

// Stat returns the Entry for path without following a final symlink.
func Stat(fsys FileSystem, path string) (Entry, error) {
	info, err := fsys.Lstat(path)
	if err != nil {
		return Entry{}, Categorize("stat", path, err)
	}
	return EntryFromInfo(path, info), nil
}

// List returns the names of the immediate children of path.
func List(fsys FileSystem, path string) ([]string, error) {
	des, err := fsys.ReadDir(path)
	if err != nil {
		return nil, Categorize("list", path, err)
	}
	names := make([]string, 0, len(des))
	for _, d := range des {
		names = append(names, d.Name())
	}
	return names, nil
}

// Exists reports whether anything, including a dangling symlink, is at path.
func Exists(fsys FileSystem, path string) bool {
	_, err := fsys.Lstat(path)
	return err == nil
}

// SameFile reports whether a and b name the same underlying file.
func SameFile(fsys FileSystem, a, b string) bool {
	ai, err := fsys.Lstat(a)
	if err != nil {
		return false
	}
	bi, err := fsys.Lstat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// Parent returns the directory containing path.
func Parent(path string) string {
	return filepath.Dir(path)
}
