//go:build linux

package trash

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Linux follows the freedesktop.org trash specification:
//
//	$XDG_DATA_HOME/Trash/files/<name>            the trashed entry
//	$XDG_DATA_HOME/Trash/info/<name>.trashinfo   where it came from
//
// [Trash Info]
// Path=/original/path/to/file
// DeletionDate=2024-01-15T10:30:45

const trashInfoTime = "2006-01-02T15:04:05"

func defaultRoot() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "Trash")
}

func (b *Bin) filesDir() string { return filepath.Join(b.Root, "files") }
func (b *Bin) infoDir() string  { return filepath.Join(b.Root, "info") }

func (b *Bin) put(path string) (Item, error) {
	if err := os.MkdirAll(b.filesDir(), 0o700); err != nil {
		return Item{}, fmt.Errorf("create trash files directory: %w", err)
	}
	if err := os.MkdirAll(b.infoDir(), 0o700); err != nil {
		return Item{}, fmt.Errorf("create trash info directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Item{}, err
	}
	info, err := os.Lstat(absPath)
	if err != nil {
		return Item{}, err
	}

	// Reserve a name by creating its .trashinfo exclusively; the info file
	// is what other trash implementations check for collisions.
	now := time.Now()
	content := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		escapePath(absPath), now.Format(trashInfoTime))

	base := filepath.Base(absPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := base
	var infoFile string
	for i := 1; ; i++ {
		infoFile = filepath.Join(b.infoDir(), name+".trashinfo")
		f, err := os.OpenFile(infoFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := f.WriteString(content)
			cerr := f.Close()
			if werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(infoFile)
				return Item{}, fmt.Errorf("write trashinfo: %w", werr)
			}
			if _, err := os.Lstat(filepath.Join(b.filesDir(), name)); err == nil {
				// Orphaned file without info; leave it and try the next name.
				os.Remove(infoFile)
				name = stem + "." + strconv.Itoa(i) + ext
				continue
			}
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return Item{}, fmt.Errorf("create trashinfo: %w", err)
		}
		name = stem + "." + strconv.Itoa(i) + ext
	}

	dest := filepath.Join(b.filesDir(), name)
	if err := os.Rename(absPath, dest); err != nil {
		os.Remove(infoFile)
		return Item{}, err
	}

	return Item{
		Name:         name,
		OriginalPath: absPath,
		TrashPath:    dest,
		DeletedAt:    now,
		Size:         info.Size(),
		IsDir:        info.IsDir(),
	}, nil
}

func (b *Bin) list() ([]Item, error) {
	entries, err := os.ReadDir(b.filesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var items []Item
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		item := Item{
			Name:      entry.Name(),
			TrashPath: filepath.Join(b.filesDir(), entry.Name()),
			DeletedAt: info.ModTime(),
			Size:      info.Size(),
			IsDir:     entry.IsDir(),
		}
		if orig, deleted, err := parseTrashInfo(filepath.Join(b.infoDir(), entry.Name()+".trashinfo")); err == nil {
			item.OriginalPath = orig
			if !deleted.IsZero() {
				item.DeletedAt = deleted
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (b *Bin) restore(item Item) error {
	if item.OriginalPath == "" {
		return fmt.Errorf("restore %s: original path unknown", item.Name)
	}
	if _, err := os.Lstat(item.OriginalPath); err == nil {
		return fmt.Errorf("restore %s: %w", item.OriginalPath, os.ErrExist)
	}
	if err := os.MkdirAll(filepath.Dir(item.OriginalPath), 0o755); err != nil {
		return err
	}
	if err := os.Rename(item.TrashPath, item.OriginalPath); err != nil {
		return err
	}
	os.Remove(filepath.Join(b.infoDir(), item.Name+".trashinfo"))
	return nil
}

func (b *Bin) empty() error {
	var lastErr error
	for _, dir := range []string{b.filesDir(), b.infoDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// escapePath percent-encodes each path segment, keeping the separators.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func parseTrashInfo(path string) (originalPath string, deletionDate time.Time, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", time.Time{}, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Path="):
			encoded := strings.TrimPrefix(line, "Path=")
			if decoded, err := url.PathUnescape(encoded); err == nil {
				originalPath = decoded
			} else {
				originalPath = encoded
			}
		case strings.HasPrefix(line, "DeletionDate="):
			if t, err := time.ParseInLocation(trashInfoTime, strings.TrimPrefix(line, "DeletionDate="), time.Local); err == nil {
				deletionDate = t
			}
		}
	}
	return originalPath, deletionDate, scanner.Err()
}

func displayName() string {
	return "Trash"
}
