package fs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyPath is returned by Clean for blank input.
var ErrEmptyPath = errors.New("empty path")

// Clean normalizes separators, makes path absolute and resolves "." and ".."
// lexically. Symlinks are not followed, so "link/.." is the directory
// containing link, not the parent of its target.
func Clean(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", ErrEmptyPath
	}
	path = filepath.FromSlash(path)
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", err
		}
		return abs, nil
	}
	return filepath.Clean(path), nil
}

// ExpandHome replaces a leading "~" with home.
func ExpandHome(path, home string) string {
	if home == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(home, path[2:])
	}
	return path
}

// IsWithin reports whether child is parent or lies below it. Both paths
// must be clean.
func IsWithin(child, parent string) bool {
	if child == parent {
		return true
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Overlaps reports whether a and b are the same path or one contains the other.
func Overlaps(a, b string) bool {
	return IsWithin(a, b) || IsWithin(b, a)
}

// ValidName reports whether name can be used as a single path component.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/`+string(os.PathSeparator))
}
