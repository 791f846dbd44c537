// Package ops runs copy, move, delete, rename, trash and create-folder
// operations in the background with progress, pause and cancellation.
package ops

import (
	"path/filepath"
	"time"

	"github.com/justyntemme/strop/internal/conflict"
	"github.com/justyntemme/strop/internal/fs"
)

// Kind is the operation a task performs.
type Kind int

const (
	Copy Kind = iota
	Move
	Delete
	Rename
	Trash
	CreateFolder
)

func (k Kind) String() string {
	switch k {
	case Copy:
		return "copy"
	case Move:
		return "move"
	case Delete:
		return "delete"
	case Rename:
		return "rename"
	case Trash:
		return "trash"
	case CreateFolder:
		return "mkdir"
	default:
		return "unknown"
	}
}

// Status is where a task is in its lifecycle.
type Status int

const (
	Pending Status = iota
	Running
	Paused
	Cancelled
	Succeeded
	PartiallyFailed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Cancelled:
		return "cancelled"
	case Succeeded:
		return "succeeded"
	case PartiallyFailed:
		return "partially-failed"
	default:
		return "failed"
	}
}

// Terminal reports whether the task will not change any more.
func (s Status) Terminal() bool {
	return s == Cancelled || s == Succeeded || s == PartiallyFailed || s == Failed
}

// Outcome is the state of one item of a task.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeRunning
	OutcomeWaiting // blocked on a conflict answer
	OutcomeSucceeded
	OutcomeSkipped
	OutcomePartial
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeRunning:
		return "running"
	case OutcomeWaiting:
		return "waiting"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomePartial:
		return "partial"
	case OutcomeFailed:
		return "failed"
	default:
		return "cancelled"
	}
}

// Failure is one path inside an item that could not be processed.
type Failure struct {
	Path string
	Code fs.Code
	Err  error
}

// Item is the progress of one source.
type Item struct {
	Source     string
	Target     string // where the source ends up, once known
	BytesDone  int64
	BytesTotal int64
	Outcome    Outcome
	Code       fs.Code
	Err        error
	Failures   []Failure // nested paths that failed inside a directory

	// Cross-device moves report both halves.
	Copied        bool
	SourceRemoved bool
}

// Request describes an operation to submit.
type Request struct {
	Kind        Kind
	Sources     []string
	Destination string // target directory for Copy, Move and CreateFolder
	NewName     string // Rename and CreateFolder
	Policy      conflict.Policy
}

// Task is a snapshot of a submitted operation. Snapshots are copies and are
// never updated after they are returned.
type Task struct {
	ID          string
	Kind        Kind
	Sources     []string
	Destination string
	NewName     string
	Policy      conflict.Policy
	Status      Status
	Items       []Item
	Err         error // task-level reason, such as an abort
	Created     time.Time
	Started     time.Time
	Finished    time.Time
}

// BytesDone sums the items' progress.
func (t Task) BytesDone() int64 {
	var n int64
	for _, it := range t.Items {
		n += it.BytesDone
	}
	return n
}

// BytesTotal sums the items' sizes.
func (t Task) BytesTotal() int64 {
	var n int64
	for _, it := range t.Items {
		n += it.BytesTotal
	}
	return n
}

// AffectedDirs lists the directories whose listing the task may have changed.
func (t Task) AffectedDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			dirs = append(dirs, p)
		}
	}
	switch t.Kind {
	case Copy, CreateFolder:
		add(t.Destination)
	case Move:
		add(t.Destination)
		for _, s := range t.Sources {
			add(filepath.Dir(s))
		}
	default:
		for _, s := range t.Sources {
			add(filepath.Dir(s))
		}
	}
	// A directory that was only partly emptied is still there and changed.
	for _, it := range t.Items {
		if it.Outcome == OutcomePartial && !it.SourceRemoved {
			add(it.Source)
		}
	}
	return dirs
}

// Removed lists sources that no longer exist at their old path.
func (t Task) Removed() []string {
	if t.Kind == Copy || t.Kind == CreateFolder {
		return nil
	}
	var out []string
	for _, it := range t.Items {
		switch {
		case it.SourceRemoved:
			out = append(out, it.Source)
		case it.Outcome == OutcomeSucceeded && it.Target != it.Source:
			out = append(out, it.Source)
		}
	}
	return out
}

// footprint is every path the task reads or writes.
func (t Task) footprint() []string {
	paths := append([]string(nil), t.Sources...)
	switch t.Kind {
	case Rename:
		if len(t.Sources) == 1 {
			paths = append(paths, filepath.Join(filepath.Dir(t.Sources[0]), t.NewName))
		}
	case CreateFolder:
		paths = append(paths, filepath.Join(t.Destination, t.NewName))
	default:
		if t.Destination != "" {
			paths = append(paths, t.Destination)
		}
	}
	return paths
}

func (t Task) overlaps(other Task) bool {
	for _, a := range t.footprint() {
		for _, b := range other.footprint() {
			if fs.Overlaps(a, b) {
				return true
			}
		}
	}
	return false
}

// deriveStatus computes the final status from the items.
func deriveStatus(items []Item, cancelled bool) Status {
	if cancelled {
		return Cancelled
	}
	var ok, partial, failed int
	for _, it := range items {
		switch it.Outcome {
		case OutcomeSucceeded, OutcomeSkipped:
			ok++
		case OutcomePartial:
			partial++
		case OutcomeFailed:
			failed++
		case OutcomeCancelled:
			return Cancelled
		}
	}
	switch {
	case failed == 0 && partial == 0:
		return Succeeded
	case ok == 0 && partial == 0:
		return Failed
	default:
		return PartiallyFailed
	}
}

func (t Task) clone() Task {
	c := t
	c.Sources = append([]string(nil), t.Sources...)
	c.Items = make([]Item, len(t.Items))
	for i, it := range t.Items {
		it.Failures = append([]Failure(nil), it.Failures...)
		c.Items[i] = it
	}
	return c
}
