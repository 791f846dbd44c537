//go:build windows

package fs

import (
	iofs "io/fs"
	"strings"
	"syscall"
)

// isHidden checks the FILE_ATTRIBUTE_HIDDEN bit, falling back to the
// dotfile convention used by ports of unix tools.
func isHidden(name string, info iofs.FileInfo) bool {
	if data, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		if data.FileAttributes&syscall.FILE_ATTRIBUTE_HIDDEN != 0 {
			return true
		}
	}
	return strings.HasPrefix(name, ".")
}
