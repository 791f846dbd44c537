//go:build !debug

// Package debug provides a centralized, categorized debug logging system.
// This is the no-op version for release builds.
package debug

// Enabled indicates whether debug logging is active
const Enabled = false

// Category represents a debug logging category
type Category string

const (
	ENGINE     Category = "ENGINE"
	FS         Category = "FS"
	INDEX      Category = "INDEX"
	SCAN       Category = "SCAN"
	OPS        Category = "OPS"
	CONFLICT   Category = "CONFLICT"
	WATCH      Category = "WATCH"
	SESSION    Category = "SESSION"
	STORE      Category = "STORE"
	SHELL      Category = "SHELL"
	SEARCH     Category = "SEARCH"
	SCAN_ENTRY Category = "SCAN_ENTRY"
	OPS_CHUNK  Category = "OPS_CHUNK"
)

// Log is a no-op in release builds
func Log(cat Category, format string, args ...any) {}

// Enable is a no-op in release builds
func Enable(cat Category) {}

// Disable is a no-op in release builds
func Disable(cat Category) {}

// IsEnabled always returns false in release builds
func IsEnabled(cat Category) bool { return false }

// EnableAll is a no-op in release builds
func EnableAll() {}

// DisableAll is a no-op in release builds
func DisableAll() {}

// ListEnabled returns nil in release builds
func ListEnabled() []Category { return nil }

// SetCategories is a no-op in release builds
func SetCategories(cats map[Category]bool) {}
