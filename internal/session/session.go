// Package session tracks where the user is and what they have selected.
//
// State is pure bookkeeping: it never touches the filesystem. Whether a path
// may be selected is decided by the Known func, which the engine backs with
// the directory index.
package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/fs"
)

// DefaultMaxHistory caps each of the back and forward stacks.
const DefaultMaxHistory = 50

var (
	// ErrNotIndexed is returned when selecting a path the index has never seen.
	ErrNotIndexed = errors.New("path not in index")
	// ErrBadPattern is returned by SelectMatching for malformed globs.
	ErrBadPattern = doublestar.ErrBadPattern
)

// Known reports whether path currently exists in the index.
type Known func(path string) bool

// HistoryEntry is one visited directory and where the view was scrolled to.
type HistoryEntry struct {
	Path   string
	Scroll int
}

// ClipMode says what a paste will do with the clipboard paths.
type ClipMode int

const (
	ClipNone ClipMode = iota
	ClipCopy
	ClipCut
)

func (m ClipMode) String() string {
	switch m {
	case ClipCopy:
		return "copy"
	case ClipCut:
		return "cut"
	default:
		return "none"
	}
}

// Clipboard holds paths waiting to be pasted.
type Clipboard struct {
	Mode  ClipMode
	Paths []string
}

// Snapshot is a copy of the state for rendering.
type Snapshot struct {
	Current    string
	Scroll     int
	Selected   []string
	Pinned     []string
	CanBack    bool
	CanForward bool
	Clipboard  Clipboard
}

// State is the navigation and selection state of one view.
type State struct {
	mu         sync.RWMutex
	known      Known
	maxHistory int

	current HistoryEntry
	back    []HistoryEntry
	forward []HistoryEntry

	selected []string // selection order
	inSel    map[string]bool
	pinned   map[string]bool

	clip Clipboard
}

// New returns an empty state. A nil known accepts every path.
func New(known Known, maxHistory int) *State {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if known == nil {
		known = func(string) bool { return true }
	}
	return &State{
		known:      known,
		maxHistory: maxHistory,
		inSel:      make(map[string]bool),
		pinned:     make(map[string]bool),
	}
}

// Current returns the current directory, empty before the first Navigate.
func (s *State) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Path
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Current:    s.current.Path,
		Scroll:     s.current.Scroll,
		Selected:   append([]string(nil), s.selected...),
		CanBack:    len(s.back) > 0,
		CanForward: len(s.forward) > 0,
		Clipboard:  Clipboard{Mode: s.clip.Mode, Paths: append([]string(nil), s.clip.Paths...)},
	}
	for _, p := range s.selected {
		if s.pinned[p] {
			snap.Pinned = append(snap.Pinned, p)
		}
	}
	return snap
}

// Select adds paths to the selection. Paths the index does not know are
// rejected; the others are still selected.
func (s *State) Select(paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if !s.known(p) {
			errs = append(errs, fmt.Errorf("select %s: %w", p, ErrNotIndexed))
			continue
		}
		s.add(p)
	}
	return errors.Join(errs...)
}

func (s *State) add(p string) {
	if s.inSel[p] {
		return
	}
	s.inSel[p] = true
	s.selected = append(s.selected, p)
}

// Deselect removes paths from the selection, pinned or not.
func (s *State) Deselect(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		drop[p] = true
		delete(s.pinned, p)
	}
	s.filter(func(p string) bool { return !drop[p] })
}

// Clear empties the selection, pins included.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	s.inSel = make(map[string]bool)
	s.pinned = make(map[string]bool)
}

// Pin selects paths and keeps them selected across navigation, for
// operations whose sources span directories.
func (s *State) Pin(paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if !s.known(p) {
			errs = append(errs, fmt.Errorf("pin %s: %w", p, ErrNotIndexed))
			continue
		}
		s.add(p)
		s.pinned[p] = true
	}
	return errors.Join(errs...)
}

// Unpin drops the pin but leaves the path selected.
func (s *State) Unpin(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.pinned, p)
	}
}

// Selected returns the selection in the order it was made.
func (s *State) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.selected...)
}

// SelectMatching selects every name in the current directory matching the
// doublestar pattern and returns how many matched.
func (s *State) SelectMatching(pattern string, names []string) (int, error) {
	if !doublestar.ValidatePattern(pattern) {
		return 0, fmt.Errorf("select %q: %w", pattern, ErrBadPattern)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Path == "" {
		return 0, nil
	}
	n := 0
	for _, name := range names {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			return n, fmt.Errorf("select %q: %w", pattern, err)
		}
		if !ok {
			continue
		}
		p := filepath.Join(s.current.Path, name)
		if !s.known(p) {
			continue
		}
		s.add(p)
		n++
	}
	debug.Log(debug.SESSION, "pattern %q selected %d of %d", pattern, n, len(names))
	return n, nil
}

// Drop forgets every selected, pinned or clipboard path at or below one of
// removed. The engine calls it after deletes and moves.
func (s *State) Drop(removed ...string) {
	if len(removed) == 0 {
		return
	}
	gone := func(p string) bool {
		for _, r := range removed {
			if fs.IsWithin(p, r) {
				return true
			}
		}
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter(func(p string) bool { return !gone(p) })
	for p := range s.pinned {
		if gone(p) {
			delete(s.pinned, p)
		}
	}
	kept := s.clip.Paths[:0]
	for _, p := range s.clip.Paths {
		if !gone(p) {
			kept = append(kept, p)
		}
	}
	s.clip.Paths = kept
	if len(kept) == 0 {
		s.clip.Mode = ClipNone
	}
}

// filter keeps the selected paths for which keep is true. Callers hold mu.
func (s *State) filter(keep func(string) bool) {
	out := s.selected[:0]
	for _, p := range s.selected {
		if keep(p) {
			out = append(out, p)
		} else {
			delete(s.inSel, p)
		}
	}
	s.selected = out
}

// dropUnpinned is what leaving a directory does to the selection.
func (s *State) dropUnpinned() {
	s.filter(func(p string) bool { return s.pinned[p] })
}

// Navigate moves to path. The current directory goes on the back stack and
// the forward stack is cleared. Navigating to the current directory only
// clears the selection.
func (s *State) Navigate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropUnpinned()
	if path == s.current.Path {
		return
	}
	if s.current.Path != "" {
		s.back = push(s.back, s.current, s.maxHistory)
	}
	s.forward = nil
	s.current = HistoryEntry{Path: path}
	debug.Log(debug.SESSION, "navigate %s (back=%d)", path, len(s.back))
}

// Back returns to the previous directory. ok is false when there is none.
func (s *State) Back() (entry HistoryEntry, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.back) == 0 {
		return HistoryEntry{}, false
	}
	s.dropUnpinned()
	s.forward = push(s.forward, s.current, s.maxHistory)
	s.current = s.back[len(s.back)-1]
	s.back = s.back[:len(s.back)-1]
	debug.Log(debug.SESSION, "back to %s", s.current.Path)
	return s.current, true
}

// Forward undoes a Back.
func (s *State) Forward() (entry HistoryEntry, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.forward) == 0 {
		return HistoryEntry{}, false
	}
	s.dropUnpinned()
	s.back = push(s.back, s.current, s.maxHistory)
	s.current = s.forward[len(s.forward)-1]
	s.forward = s.forward[:len(s.forward)-1]
	debug.Log(debug.SESSION, "forward to %s", s.current.Path)
	return s.current, true
}

// push appends e and drops the oldest entries beyond limit.
func push(stack []HistoryEntry, e HistoryEntry, limit int) []HistoryEntry {
	stack = append(stack, e)
	if excess := len(stack) - limit; excess > 0 {
		stack = append(stack[:0:0], stack[excess:]...)
	}
	return stack
}

// SetScroll remembers the scroll offset of the current directory.
func (s *State) SetScroll(offset int) {
	s.mu.Lock()
	s.current.Scroll = offset
	s.mu.Unlock()
}

// Scroll returns the remembered offset of the current directory.
func (s *State) Scroll() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Scroll
}

// Visited returns the history oldest first: back stack, current, then the
// forward stack.
func (s *State) Visited() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.back)+len(s.forward)+1)
	for _, e := range s.back {
		out = append(out, e.Path)
	}
	if s.current.Path != "" {
		out = append(out, s.current.Path)
	}
	for i := len(s.forward) - 1; i >= 0; i-- {
		out = append(out, s.forward[i].Path)
	}
	return out
}

// Copy puts paths on the clipboard for a copy-paste.
func (s *State) Copy(paths ...string) { s.setClip(ClipCopy, paths) }

// Cut puts paths on the clipboard for a move-paste.
func (s *State) Cut(paths ...string) { s.setClip(ClipCut, paths) }

func (s *State) setClip(mode ClipMode, paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(paths) == 0 {
		s.clip = Clipboard{}
		return
	}
	s.clip = Clipboard{Mode: mode, Paths: append([]string(nil), paths...)}
}

// Clipboard returns a copy of the clipboard.
func (s *State) Clipboard() Clipboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Clipboard{Mode: s.clip.Mode, Paths: append([]string(nil), s.clip.Paths...)}
}

// ClearClipboard empties the clipboard.
func (s *State) ClearClipboard() {
	s.mu.Lock()
	s.clip = Clipboard{}
	s.mu.Unlock()
}
