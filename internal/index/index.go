// Package index holds the lazily populated model of the directory tree.
//
// The Index is the single owner of directory nodes. Readers get copies via
// GetNode; node content is only ever written by ApplyScanResult, which the
// scanner calls when a read finishes.
package index

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/event"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/metrics"
)

// Node is a snapshot of one directory. Entries are shared between snapshots
// and must not be modified.
type Node struct {
	Path        string
	Entries     []fs.Entry
	Loaded      bool
	LastScanned time.Time // zero until the first scan lands
	Err         error     // set when the last scan failed; Entries is nil then
	Scanning    bool
}

// Failed reports whether the last scan of the node failed.
func (n Node) Failed() bool { return n.Err != nil }

// TreeUpdated is emitted every time a scan result is applied.
type TreeUpdated struct {
	Path    string
	Entries []fs.Entry
	Err     error
	Loaded  bool
}

func (TreeUpdated) Topic() string { return "index.tree_updated" }

// Requester starts an asynchronous scan of path. It must not block.
type Requester interface {
	Request(path string)
}

type node struct {
	Node
	invalidatedAt uint64 // seq at the last invalidation
	appliedTicket uint64 // ticket of the last applied result
	requested     bool   // a scan has been asked for and not yet applied
}

// Index caches directory nodes keyed by clean absolute path.
type Index struct {
	mu      sync.Mutex
	nodes   map[string]*node
	seq     uint64
	scanner Requester
	sink    event.Sink
}

// New creates an empty index that reports changes to sink.
func New(sink event.Sink) *Index {
	if sink == nil {
		sink = event.Discard
	}
	return &Index{
		nodes: make(map[string]*node),
		sink:  sink,
	}
}

// SetRequester wires the scanner. It must be called before GetNode.
func (x *Index) SetRequester(r Requester) {
	x.mu.Lock()
	x.scanner = r
	x.mu.Unlock()
}

// GetNode returns the cached node for path. If it is not loaded a scan is
// requested, once per outstanding need, and the not-yet-loaded node comes
// back immediately with whatever entries it had before.
func (x *Index) GetNode(path string) Node {
	x.mu.Lock()
	n := x.lookup(path)
	if n.Loaded {
		out := n.Node
		x.mu.Unlock()
		return out
	}
	trigger := x.markRequested(n)
	out := n.Node
	r := x.scanner
	x.mu.Unlock()

	if trigger && r != nil {
		debug.Log(debug.INDEX, "GetNode: requesting scan of %q", path)
		r.Request(path)
	}
	return out
}

// Peek returns the cached node without triggering a scan.
func (x *Index) Peek(path string) (Node, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n, ok := x.nodes[path]
	if !ok {
		return Node{}, false
	}
	return n.Node, true
}

// Invalidate marks path, and its cached ancestors when withAncestors is set,
// as not loaded. Entries are kept so callers can still show them.
func (x *Index) Invalidate(path string, withAncestors bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.invalidate(path)
	if !withAncestors {
		return
	}
	for p := fs.Parent(path); p != path; p, path = fs.Parent(p), p {
		if _, ok := x.nodes[p]; ok {
			x.invalidate(p)
		}
	}
}

func (x *Index) invalidate(path string) {
	n, ok := x.nodes[path]
	if !ok {
		return
	}
	n.Loaded = false
	n.invalidatedAt = x.seq
	debug.Log(debug.INDEX, "invalidate %q at seq %d", path, x.seq)
}

// Refresh invalidates path and requests a new scan of it.
func (x *Index) Refresh(path string) {
	x.mu.Lock()
	n := x.lookup(path)
	n.Loaded = false
	n.invalidatedAt = x.seq
	trigger := x.markRequested(n)
	r := x.scanner
	x.mu.Unlock()

	if trigger && r != nil {
		r.Request(path)
	}
}

// Ticket returns the next sequence number for a scan of path that is about
// to start reading.
func (x *Index) Ticket(path string) uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.seq++
	if n, ok := x.nodes[path]; ok {
		n.Scanning = true
	}
	return x.seq
}

// ApplyScanResult stores the outcome of a scan. Results for forgotten paths,
// cancelled scans and results older than the last applied one are dropped.
// A result whose scan started before the latest invalidation is stored but
// leaves the node not loaded, and a new scan is requested.
func (x *Index) ApplyScanResult(path string, ticket uint64, entries []fs.Entry, err error) {
	x.mu.Lock()
	n, ok := x.nodes[path]
	if !ok {
		x.mu.Unlock()
		debug.Log(debug.INDEX, "apply: %q was forgotten, dropping result", path)
		return
	}
	if errors.Is(err, fs.ErrCancelled) {
		n.requested = false
		n.Scanning = false
		x.mu.Unlock()
		debug.Log(debug.INDEX, "apply: scan of %q cancelled", path)
		return
	}
	if ticket < n.appliedTicket {
		x.mu.Unlock()
		metrics.RecordStaleResult()
		debug.Log(debug.INDEX, "apply: dropping ticket %d for %q (applied %d)", ticket, path, n.appliedTicket)
		return
	}

	n.appliedTicket = ticket
	n.LastScanned = time.Now()
	n.Scanning = false
	n.requested = false
	if err != nil {
		n.Entries = nil
		n.Err = err
	} else {
		sorted := make([]fs.Entry, len(entries))
		copy(sorted, entries)
		fs.SortEntries(sorted)
		n.Entries = sorted
		n.Err = nil
	}
	n.Loaded = ticket > n.invalidatedAt
	loaded := n.Loaded

	trigger := false
	if !loaded {
		trigger = x.markRequested(n)
	}
	// Emitting under the lock keeps events in apply order.
	x.sink.Emit(TreeUpdated{Path: path, Entries: n.Entries, Err: n.Err, Loaded: n.Loaded})
	r := x.scanner
	x.mu.Unlock()

	debug.Log(debug.INDEX, "apply: %q ticket=%d entries=%d loaded=%v err=%v", path, ticket, len(entries), loaded, err)
	if trigger && r != nil {
		r.Request(path)
	}
}

// Forget drops path and every cached node below it and returns the
// dropped paths.
func (x *Index) Forget(path string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	var dropped []string
	for p := range x.nodes {
		if fs.IsWithin(p, path) {
			delete(x.nodes, p)
			dropped = append(dropped, p)
		}
	}
	sort.Strings(dropped)
	metrics.SetIndexNodes(len(x.nodes))
	return dropped
}

// Contains reports whether path is a cached node or an entry of one.
func (x *Index) Contains(path string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.nodes[path]; ok {
		return true
	}
	parent, ok := x.nodes[fs.Parent(path)]
	if !ok {
		return false
	}
	for _, e := range parent.Entries {
		if e.Path == path {
			return true
		}
	}
	return false
}

// Len returns the number of cached nodes.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.nodes)
}

func (x *Index) lookup(path string) *node {
	n, ok := x.nodes[path]
	if !ok {
		n = &node{Node: Node{Path: path}}
		x.nodes[path] = n
		metrics.SetIndexNodes(len(x.nodes))
	}
	return n
}

func (x *Index) markRequested(n *node) bool {
	if n.requested {
		return false
	}
	n.requested = true
	n.Scanning = true
	return true
}
