package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knownSet(paths ...string) Known {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(p string) bool { return set[p] }
}

func TestNavigate_BackForward(t *testing.T) {
	s := New(nil, 0)
	_, ok := s.Back()
	assert.False(t, ok)

	s.Navigate("/a")
	s.SetScroll(12)
	s.Navigate("/b")
	s.Navigate("/b")
	s.Navigate("/c")
	assert.Equal(t, []string{"/a", "/b", "/c"}, s.Visited())

	e, ok := s.Back()
	require.True(t, ok)
	assert.Equal(t, "/b", e.Path)
	e, ok = s.Back()
	require.True(t, ok)
	assert.Equal(t, HistoryEntry{Path: "/a", Scroll: 12}, e)
	assert.Equal(t, 12, s.Scroll())

	e, ok = s.Forward()
	require.True(t, ok)
	assert.Equal(t, "/b", e.Path)
	assert.Equal(t, []string{"/a", "/b", "/c"}, s.Visited())

	// A fresh navigation drops the forward stack.
	s.Navigate("/d")
	_, ok = s.Forward()
	assert.False(t, ok)
	assert.Equal(t, []string{"/a", "/b", "/d"}, s.Visited())
}

func TestNavigate_HistoryCap(t *testing.T) {
	s := New(nil, 3)
	for i := 0; i < 10; i++ {
		s.Navigate(fmt.Sprintf("/d%d", i))
	}
	assert.Equal(t, []string{"/d6", "/d7", "/d8", "/d9"}, s.Visited())
}

func TestSelect_OnlyIndexedPaths(t *testing.T) {
	s := New(knownSet("/a/x", "/a/y"), 0)
	s.Navigate("/a")

	err := s.Select("/a/x", "/a/ghost", "/a/y", "/a/x")
	assert.ErrorIs(t, err, ErrNotIndexed)
	assert.Equal(t, []string{"/a/x", "/a/y"}, s.Selected())

	s.Deselect("/a/x")
	assert.Equal(t, []string{"/a/y"}, s.Selected())
	s.Clear()
	assert.Empty(t, s.Selected())
}

func TestNavigate_KeepsOnlyPinned(t *testing.T) {
	s := New(knownSet("/a/x", "/a/y"), 0)
	s.Navigate("/a")
	require.NoError(t, s.Select("/a/x"))
	require.NoError(t, s.Pin("/a/y"))

	s.Navigate("/b")
	snap := s.Snapshot()
	assert.Equal(t, []string{"/a/y"}, snap.Selected)
	assert.Equal(t, []string{"/a/y"}, snap.Pinned)
	assert.True(t, snap.CanBack)
	assert.False(t, snap.CanForward)

	s.Unpin("/a/y")
	s.Navigate("/c")
	assert.Empty(t, s.Selected())
}

func TestSelectMatching(t *testing.T) {
	s := New(nil, 0)
	n, err := s.SelectMatching("*.go", []string{"a.go"})
	require.NoError(t, err)
	assert.Zero(t, n)

	s.Navigate("/src")
	n, err = s.SelectMatching("*.{go,md}", []string{"main.go", "README.md", "Makefile", "x.go"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"/src/main.go", "/src/README.md", "/src/x.go"}, s.Selected())

	_, err = s.SelectMatching("[", nil)
	assert.ErrorIs(t, err, ErrBadPattern)
}

func TestClipboardAndDrop(t *testing.T) {
	s := New(nil, 0)
	s.Navigate("/a")
	require.NoError(t, s.Pin("/a/dir/f", "/a/other"))
	s.Cut("/a/dir", "/a/other")
	assert.Equal(t, ClipCut, s.Clipboard().Mode)

	s.Drop("/a/dir")
	assert.Equal(t, []string{"/a/other"}, s.Selected())
	assert.Equal(t, []string{"/a/other"}, s.Clipboard().Paths)

	s.Drop("/a/other")
	assert.Equal(t, Clipboard{}, s.Clipboard())
	assert.Empty(t, s.Snapshot().Pinned)

	s.Copy("/x")
	s.ClearClipboard()
	assert.Equal(t, ClipNone, s.Clipboard().Mode)
}
