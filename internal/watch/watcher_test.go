package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changes struct {
	mu   sync.Mutex
	dirs []string
}

func (c *changes) add(dir string) {
	c.mu.Lock()
	c.dirs = append(c.dirs, dir)
	c.mu.Unlock()
}

func (c *changes) count(dir string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.dirs {
		if d == dir {
			n++
		}
	}
	return n
}

func TestWatch_NotifiesParentDirectory(t *testing.T) {
	c := &changes{}
	w := New(Config{Enabled: true, Debounce: 20 * time.Millisecond}, c.add)
	defer w.Close()
	if w.Mode() != ModeNotify {
		t.Skip("fsnotify unavailable here")
	}

	dir := t.TempDir()
	require.NoError(t, w.Watch(dir))
	require.NoError(t, w.Watch(dir))
	assert.Equal(t, []string{dir}, w.Watching())

	// A burst of changes collapses into few notifications.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "f"+string(rune('a'+i))), nil, 0o644))
	}
	require.Eventually(t, func() bool { return c.count(dir) >= 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Less(t, c.count(dir), 5)

	w.Unwatch(dir)
	assert.Empty(t, w.Watching())
}

func TestWatch_FallsBackToPolling(t *testing.T) {
	orig := newNotifier
	newNotifier = func() (*fsnotify.Watcher, error) { return nil, errors.New("inotify unavailable") }
	defer func() { newNotifier = orig }()

	c := &changes{}
	w := New(Config{Enabled: true, Debounce: 10 * time.Millisecond, PollInterval: 10 * time.Millisecond}, c.add)
	defer w.Close()
	require.Equal(t, ModePoll, w.Mode())

	dir := t.TempDir()
	require.NoError(t, w.Watch(dir))
	// Make sure the directory modtime moves even on coarse clocks.
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new"), nil, 0o644))
	require.NoError(t, os.Chtimes(dir, later, later))

	require.Eventually(t, func() bool { return c.count(dir) >= 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatch_DegradesToOff(t *testing.T) {
	orig := newNotifier
	newNotifier = func() (*fsnotify.Watcher, error) { return nil, errors.New("nope") }
	defer func() { newNotifier = orig }()

	w := New(Config{Enabled: true}, nil)
	defer w.Close()
	assert.Equal(t, ModeOff, w.Mode())
	assert.NoError(t, w.Watch(t.TempDir()))
	assert.Empty(t, w.Watching())

	off := New(Config{Enabled: false}, nil)
	assert.Equal(t, ModeOff, off.Mode())
	assert.NoError(t, off.Close())
}

func TestWatch_Limit(t *testing.T) {
	orig := newNotifier
	newNotifier = func() (*fsnotify.Watcher, error) { return nil, errors.New("poll only") }
	defer func() { newNotifier = orig }()

	w := New(Config{Enabled: true, PollInterval: time.Hour, MaxWatches: 1}, nil)
	defer w.Close()
	require.NoError(t, w.Watch(t.TempDir()))
	assert.ErrorIs(t, w.Watch(t.TempDir()), ErrLimit)
}
