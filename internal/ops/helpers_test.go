package ops

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justyntemme/strop/internal/event"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/trash"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *collector) Emit(e event.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) all() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}

func (c *collector) conflicts() []ConflictRequest {
	var out []ConflictRequest
	for _, e := range c.all() {
		if cr, ok := e.(ConflictRequest); ok {
			out = append(out, cr)
		}
	}
	return out
}

func newQueue(t *testing.T, cfg Config, opts ...Option) (*Queue, *collector) {
	t.Helper()
	c := &collector{}
	q := New(cfg, c, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Shutdown(ctx)
	})
	return q, c
}

func wait(t *testing.T, q *Queue, id string) Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	task, err := q.Wait(ctx, id)
	require.NoError(t, err)
	return task
}

func submit(t *testing.T, q *Queue, req Request) string {
	t.Helper()
	id, err := q.Submit(req)
	require.NoError(t, err)
	return id
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func noTempFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".strop-*.part"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

// xdevFS reports every rename between different directories as crossing
// devices, the way moving between mounts does.
type xdevFS struct {
	fs.OS
	failRemove string
}

func (x xdevFS) Rename(oldpath, newpath string) error {
	if filepath.Dir(oldpath) != filepath.Dir(newpath) {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrCrossDevice}
	}
	return os.Rename(oldpath, newpath)
}

func (x xdevFS) Remove(path string) error {
	if x.failRemove != "" && filepath.Base(path) == x.failRemove {
		return &os.PathError{Op: "remove", Path: path, Err: os.ErrPermission}
	}
	return os.Remove(path)
}

// denyFS refuses to remove one name.
type denyFS struct {
	fs.OS
	deny string
}

func (d denyFS) Remove(path string) error {
	if filepath.Base(path) == d.deny {
		return &os.PathError{Op: "remove", Path: path, Err: os.ErrPermission}
	}
	return os.Remove(path)
}

// countingFS counts renames.
type countingFS struct {
	fs.OS
	renames *atomic.Int32
}

func (c countingFS) Rename(oldpath, newpath string) error {
	c.renames.Add(1)
	return os.Rename(oldpath, newpath)
}

// gatedFS hands out readers for one file name that stop after the first
// chunk until release is closed.
type gatedFS struct {
	fs.OS
	name    string
	started chan struct{}
	release chan struct{}
	once    *sync.Once
}

func newGatedFS(name string) gatedFS {
	return gatedFS{
		name:    name,
		started: make(chan struct{}),
		release: make(chan struct{}),
		once:    &sync.Once{},
	}
}

func (g gatedFS) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil || filepath.Base(path) != g.name {
		return f, err
	}
	return &gatedReader{ReadCloser: f, g: g}, nil
}

type gatedReader struct {
	io.ReadCloser
	g     gatedFS
	reads int
}

func (r *gatedReader) Read(p []byte) (int, error) {
	if r.reads > 0 {
		r.g.once.Do(func() { close(r.g.started) })
		<-r.g.release
	}
	r.reads++
	return r.ReadCloser.Read(p)
}

func waitStarted(t *testing.T, g gatedFS) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(10 * time.Second):
		t.Fatal("copy never reached the gate")
	}
}

// fakeTrash moves entries into a directory.
type fakeTrash struct {
	dir string
}

func (f fakeTrash) Put(path string) (trash.Item, error) {
	dest := filepath.Join(f.dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return trash.Item{}, err
	}
	return trash.Item{Name: filepath.Base(path), OriginalPath: path, TrashPath: dest}, nil
}

// noTimesFS refuses to set modification times.
type noTimesFS struct {
	fs.OS
}

func (noTimesFS) Chtimes(path string, _, _ time.Time) error {
	return &os.PathError{Op: "chtimes", Path: path, Err: os.ErrPermission}
}
