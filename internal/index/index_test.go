package index

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/justyntemme/strop/internal/event"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	mu       sync.Mutex
	requests []string
}

func (f *fakeScanner) Request(path string) {
	f.mu.Lock()
	f.requests = append(f.requests, path)
	f.mu.Unlock()
}

func (f *fakeScanner) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.requests {
		if p == path {
			n++
		}
	}
	return n
}

type recorder struct {
	mu     sync.Mutex
	events []TreeUpdated
}

func (r *recorder) Emit(e event.Event) {
	r.mu.Lock()
	r.events = append(r.events, e.(TreeUpdated))
	r.mu.Unlock()
}

func newTestIndex() (*Index, *fakeScanner, *recorder) {
	rec := &recorder{}
	x := New(rec)
	sc := &fakeScanner{}
	x.SetRequester(sc)
	return x, sc, rec
}

func entries(dir string, names ...string) []fs.Entry {
	out := make([]fs.Entry, 0, len(names))
	for _, n := range names {
		out = append(out, fs.Entry{Path: filepath.Join(dir, n), Name: n})
	}
	return out
}

func TestGetNode_RequestsOnce(t *testing.T) {
	x, sc, _ := newTestIndex()
	dir := filepath.FromSlash("/data")

	n := x.GetNode(dir)
	assert.False(t, n.Loaded)
	assert.True(t, n.Scanning)
	x.GetNode(dir)
	x.GetNode(dir)
	assert.Equal(t, 1, sc.count(dir))

	x.ApplyScanResult(dir, x.Ticket(dir), entries(dir, "b", "A", "c"), nil)
	n = x.GetNode(dir)
	require.True(t, n.Loaded)
	assert.False(t, n.Scanning)
	assert.Equal(t, 1, sc.count(dir))

	var names []string
	for _, e := range n.Entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"A", "b", "c"}, names)
}

func TestApply_StaleTicketDropped(t *testing.T) {
	x, _, rec := newTestIndex()
	dir := filepath.FromSlash("/data")
	x.GetNode(dir)

	older := x.Ticket(dir)
	newer := x.Ticket(dir)
	x.ApplyScanResult(dir, newer, entries(dir, "new"), nil)
	x.ApplyScanResult(dir, older, entries(dir, "old"), nil)

	n := x.GetNode(dir)
	require.Len(t, n.Entries, 1)
	assert.Equal(t, "new", n.Entries[0].Name)
	assert.Len(t, rec.events, 1)
}

func TestApply_StartedBeforeInvalidationStaysUnloaded(t *testing.T) {
	x, sc, _ := newTestIndex()
	dir := filepath.FromSlash("/data")
	x.GetNode(dir)

	ticket := x.Ticket(dir)
	x.Invalidate(dir, false)
	x.ApplyScanResult(dir, ticket, entries(dir, "a"), nil)

	n, ok := x.Peek(dir)
	require.True(t, ok)
	assert.False(t, n.Loaded)
	assert.Len(t, n.Entries, 1)
	assert.Equal(t, 2, sc.count(dir), "a fresh scan must be requested")

	x.ApplyScanResult(dir, x.Ticket(dir), entries(dir, "a", "b"), nil)
	n = x.GetNode(dir)
	assert.True(t, n.Loaded)
	assert.Len(t, n.Entries, 2)
}

func TestApply_ErrorIsDistinctFromEmpty(t *testing.T) {
	x, _, rec := newTestIndex()
	denied := filepath.FromSlash("/denied")
	empty := filepath.FromSlash("/empty")
	x.GetNode(denied)
	x.GetNode(empty)

	x.ApplyScanResult(denied, x.Ticket(denied), nil, fs.Categorize("scan", denied, fs.ErrPermissionDenied))
	x.ApplyScanResult(empty, x.Ticket(empty), nil, nil)

	d := x.GetNode(denied)
	assert.True(t, d.Loaded)
	assert.True(t, d.Failed())
	assert.Equal(t, fs.CodePermissionDenied, fs.CodeOf(d.Err))
	assert.Nil(t, d.Entries)

	e := x.GetNode(empty)
	assert.True(t, e.Loaded)
	assert.False(t, e.Failed())
	assert.Empty(t, e.Entries)

	require.Len(t, rec.events, 2)
	assert.Error(t, rec.events[0].Err)
}

func TestApply_CancelledLeavesNodeUntouched(t *testing.T) {
	x, sc, rec := newTestIndex()
	dir := filepath.FromSlash("/data")
	x.GetNode(dir)
	x.ApplyScanResult(dir, x.Ticket(dir), entries(dir, "a"), nil)
	x.Refresh(dir)

	x.ApplyScanResult(dir, x.Ticket(dir), nil, fs.Categorize("scan", dir, fs.ErrCancelled))
	n, _ := x.Peek(dir)
	assert.False(t, n.Loaded)
	assert.Len(t, n.Entries, 1)
	assert.Len(t, rec.events, 1)

	// The next reader asks again.
	x.GetNode(dir)
	assert.Equal(t, 3, sc.count(dir))
}

func TestInvalidateWithAncestors(t *testing.T) {
	x, _, _ := newTestIndex()
	root := filepath.FromSlash("/a")
	mid := filepath.Join(root, "b")
	leaf := filepath.Join(mid, "c")
	for _, p := range []string{root, mid, leaf} {
		x.GetNode(p)
		x.ApplyScanResult(p, x.Ticket(p), nil, nil)
	}

	x.Invalidate(leaf, true)
	for _, p := range []string{root, mid, leaf} {
		n, _ := x.Peek(p)
		assert.False(t, n.Loaded, p)
	}
}

func TestRescanIsIdempotent(t *testing.T) {
	x, _, _ := newTestIndex()
	dir := filepath.FromSlash("/data")
	x.GetNode(dir)
	x.ApplyScanResult(dir, x.Ticket(dir), entries(dir, "x", "y"), nil)
	first := x.GetNode(dir)

	x.Refresh(dir)
	x.ApplyScanResult(dir, x.Ticket(dir), entries(dir, "y", "x"), nil)
	second := x.GetNode(dir)

	assert.Equal(t, first.Entries, second.Entries)
	assert.True(t, second.Loaded)
}

func TestForgetAndContains(t *testing.T) {
	x, _, _ := newTestIndex()
	root := filepath.FromSlash("/a")
	sub := filepath.Join(root, "b")
	x.GetNode(root)
	x.ApplyScanResult(root, x.Ticket(root), entries(root, "b", "f.txt"), nil)
	x.GetNode(sub)

	assert.True(t, x.Contains(root))
	assert.True(t, x.Contains(filepath.Join(root, "f.txt")))
	assert.False(t, x.Contains(filepath.Join(root, "nope")))

	dropped := x.Forget(root)
	assert.Equal(t, []string{root, sub}, dropped)
	assert.Equal(t, 0, x.Len())

	// A late result for a forgotten path does not resurrect it.
	x.ApplyScanResult(sub, 99, nil, nil)
	assert.Equal(t, 0, x.Len())
}
