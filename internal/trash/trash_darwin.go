//go:build darwin

package trash

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// macOS keeps trashed files in ~/.Trash with no record of where they came
// from, so restore is not possible from here.

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".Trash")
}

func (b *Bin) put(path string) (Item, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Item{}, err
	}
	base := filepath.Base(path)
	dest := filepath.Join(b.Root, base)
	if _, err := os.Lstat(dest); err == nil {
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		dest = filepath.Join(b.Root, fmt.Sprintf("%s %s%s", stem, time.Now().Format("2006-01-02-150405.000"), ext))
	}
	if err := os.Rename(path, dest); err != nil {
		return Item{}, err
	}
	return Item{
		Name:         filepath.Base(dest),
		OriginalPath: path,
		TrashPath:    dest,
		DeletedAt:    time.Now(),
		Size:         info.Size(),
		IsDir:        info.IsDir(),
	}, nil
}

func (b *Bin) list() ([]Item, error) {
	entries, err := os.ReadDir(b.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var items []Item
	for _, entry := range entries {
		// .DS_Store and friends
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, Item{
			Name:      entry.Name(),
			TrashPath: filepath.Join(b.Root, entry.Name()),
			DeletedAt: info.ModTime(),
			Size:      info.Size(),
			IsDir:     entry.IsDir(),
		})
	}
	return items, nil
}

func (b *Bin) restore(item Item) error {
	return fmt.Errorf("restore %s: %w", item.Name, ErrUnsupported)
}

func (b *Bin) empty() error {
	entries, err := os.ReadDir(b.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var lastErr error
	for _, entry := range entries {
		if entry.Name() == ".DS_Store" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(b.Root, entry.Name())); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func displayName() string {
	return "Trash"
}
