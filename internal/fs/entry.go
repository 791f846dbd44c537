package fs

import (
	iofs "io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Kind identifies what a filesystem entry is. Symlinks are never
// dereferenced, so a link to a directory is still KindSymlink.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}

// Entry is an immutable snapshot of one filesystem object.
type Entry struct {
	Path     string
	Name     string
	Kind     Kind
	Size     int64
	HasSize  bool
	ModTime  time.Time // zero when unknown
	Perm     iofs.FileMode
	ReadOnly bool
	Hidden   bool
}

// IsDir reports whether the entry is a real directory (not a link to one).
func (e Entry) IsDir() bool { return e.Kind == KindDirectory }

// EntryFromInfo builds an Entry from Lstat-style info.
func EntryFromInfo(path string, info iofs.FileInfo) Entry {
	e := Entry{
		Path:     path,
		Name:     info.Name(),
		ModTime:  info.ModTime(),
		Perm:     info.Mode().Perm(),
		ReadOnly: info.Mode().Perm()&0o222 == 0,
	}
	if e.Name == "" || e.Name == "." || e.Name == string(filepath.Separator) {
		e.Name = filepath.Base(path)
	}
	mode := info.Mode()
	switch {
	case mode&iofs.ModeSymlink != 0:
		e.Kind = KindSymlink
	case mode.IsDir():
		e.Kind = KindDirectory
	default:
		e.Kind = KindFile
		e.Size = info.Size()
		e.HasSize = true
	}
	e.Hidden = isHidden(e.Name, info)
	return e
}

// SortEntries orders entries by name, case-insensitively, with a
// case-sensitive tiebreak so the order is total.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return lessName(entries[i].Name, entries[j].Name)
	})
}

func lessName(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
