//go:build debug

// Package debug provides a centralized, categorized debug logging system.
// Build with -tags debug to enable logging.
package debug

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/justyntemme/strop/internal/logging"
	"go.uber.org/zap"
)

// Enabled indicates whether debug logging is active
const Enabled = true

// Category represents a debug logging category
type Category string

const (
	ENGINE   Category = "ENGINE"   // Request loop, lifecycle, event routing
	FS       Category = "FS"       // Stat, path normalization, error categorization
	INDEX    Category = "INDEX"    // Node cache, invalidation, scan results
	SCAN     Category = "SCAN"     // Directory scans and coalescing
	OPS      Category = "OPS"      // Operation queue, task workers
	CONFLICT Category = "CONFLICT" // Conflict decisions and prompts
	WATCH    Category = "WATCH"    // fsnotify events, debounce, polling
	SESSION  Category = "SESSION"  // Navigation, history, selection
	STORE    Category = "STORE"    // Bookmarks, recents, operation log
	SHELL    Category = "SHELL"    // Open, properties, special folders
	SEARCH   Category = "SEARCH"   // Recursive find and external grep tools

	// Verbose categories, off unless asked for
	SCAN_ENTRY Category = "SCAN_ENTRY" // Every entry read during a scan
	OPS_CHUNK  Category = "OPS_CHUNK"  // Every chunk written during a copy
)

var (
	// enabledCategories controls which categories are active
	// By default, all main categories are enabled
	enabledCategories = map[Category]bool{
		ENGINE:     true,
		FS:         true,
		INDEX:      true,
		SCAN:       true,
		OPS:        true,
		CONFLICT:   true,
		WATCH:      true,
		SESSION:    true,
		STORE:      true,
		SHELL:      true,
		SEARCH:     true,
		SCAN_ENTRY: false,
		OPS_CHUNK:  false,
	}
	categoryMu sync.RWMutex
)

func init() {
	// Check environment variable for category overrides
	// Format: STROP_DEBUG=OPS,SCAN or STROP_DEBUG=all or STROP_DEBUG=none
	if env := os.Getenv("STROP_DEBUG"); env != "" {
		categoryMu.Lock()
		defer categoryMu.Unlock()

		env = strings.ToUpper(env)
		switch env {
		case "ALL":
			for cat := range enabledCategories {
				enabledCategories[cat] = true
			}
		case "NONE":
			for cat := range enabledCategories {
				enabledCategories[cat] = false
			}
		default:
			// Disable all first, then enable specified
			for cat := range enabledCategories {
				enabledCategories[cat] = false
			}
			for _, cat := range strings.Split(env, ",") {
				cat = strings.TrimSpace(cat)
				enabledCategories[Category(cat)] = true
			}
		}
	}
}

// Log writes a debug-level message for the category through the zap logger
func Log(cat Category, format string, args ...any) {
	categoryMu.RLock()
	enabled := enabledCategories[cat]
	categoryMu.RUnlock()

	if !enabled {
		return
	}

	logging.L().WithOptions(zap.AddCallerSkip(1)).Debug(fmt.Sprintf(format, args...), zap.String("category", string(cat)))
}

// Enable enables a debug category
func Enable(cat Category) {
	categoryMu.Lock()
	enabledCategories[cat] = true
	categoryMu.Unlock()
}

// Disable disables a debug category
func Disable(cat Category) {
	categoryMu.Lock()
	enabledCategories[cat] = false
	categoryMu.Unlock()
}

// IsEnabled returns whether a category is enabled
func IsEnabled(cat Category) bool {
	categoryMu.RLock()
	defer categoryMu.RUnlock()
	return enabledCategories[cat]
}

// EnableAll enables all debug categories including verbose ones
func EnableAll() {
	categoryMu.Lock()
	for cat := range enabledCategories {
		enabledCategories[cat] = true
	}
	categoryMu.Unlock()
}

// DisableAll disables all debug categories
func DisableAll() {
	categoryMu.Lock()
	for cat := range enabledCategories {
		enabledCategories[cat] = false
	}
	categoryMu.Unlock()
}

// SetCategories sets the enabled state for multiple categories
func SetCategories(cats map[Category]bool) {
	categoryMu.Lock()
	for cat, enabled := range cats {
		enabledCategories[cat] = enabled
	}
	categoryMu.Unlock()
}

// ListEnabled returns a slice of currently enabled categories
func ListEnabled() []Category {
	categoryMu.RLock()
	defer categoryMu.RUnlock()

	var enabled []Category
	for cat, on := range enabledCategories {
		if on {
			enabled = append(enabled, cat)
		}
	}
	return enabled
}
