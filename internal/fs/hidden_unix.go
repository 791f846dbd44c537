//go:build !windows

package fs

import (
	iofs "io/fs"
	"strings"
)

func isHidden(name string, _ iofs.FileInfo) bool {
	return strings.HasPrefix(name, ".")
}
