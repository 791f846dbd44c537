// Package trash moves files to the desktop trash instead of deleting them.
package trash

import (
	"errors"
	"time"
)

// ErrUnsupported is returned on platforms without a trash implementation.
var ErrUnsupported = errors.New("trash is not supported on this platform")

// Item is something sitting in the trash.
type Item struct {
	Name         string // name inside the trash
	OriginalPath string // where it was trashed from, empty when unknown
	TrashPath    string // current location
	DeletedAt    time.Time
	Size         int64
	IsDir        bool
}

// Bin is one trash directory. Root is the platform default unless set.
type Bin struct {
	Root string
}

// Default returns the current user's trash.
func Default() *Bin {
	return &Bin{Root: defaultRoot()}
}

// Put moves path into the trash and returns where it went.
func (b *Bin) Put(path string) (Item, error) {
	if b.Root == "" {
		return Item{}, ErrUnsupported
	}
	return b.put(path)
}

// List returns the items currently in the trash.
func (b *Bin) List() ([]Item, error) {
	if b.Root == "" {
		return nil, ErrUnsupported
	}
	return b.list()
}

// Restore moves item back to its original path. It fails when that path is
// taken or unknown.
func (b *Bin) Restore(item Item) error {
	if b.Root == "" {
		return ErrUnsupported
	}
	return b.restore(item)
}

// Empty permanently deletes everything in the trash.
func (b *Bin) Empty() error {
	if b.Root == "" {
		return ErrUnsupported
	}
	return b.empty()
}

// DisplayName returns what the platform calls its trash.
func DisplayName() string {
	return displayName()
}
