// Package conflict decides what happens when an operation's target already
// exists.
package conflict

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/fs"
)

// DefaultMaxProbes bounds the auto-rename search.
const DefaultMaxProbes = 100

// ErrNoPrompt is returned when answering a question nobody asked.
var ErrNoPrompt = errors.New("no such conflict prompt")

// Policy is a task-wide rule for conflicts.
type Policy int

const (
	AlwaysAsk Policy = iota
	AlwaysOverwrite
	AlwaysSkip
	AutoRename
)

func (p Policy) String() string {
	switch p {
	case AlwaysOverwrite:
		return "overwrite"
	case AlwaysSkip:
		return "skip"
	case AutoRename:
		return "rename"
	default:
		return "ask"
	}
}

// ParsePolicy accepts the names printed by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ask":
		return AlwaysAsk, nil
	case "overwrite", "replace":
		return AlwaysOverwrite, nil
	case "skip":
		return AlwaysSkip, nil
	case "rename", "keep-both":
		return AutoRename, nil
	}
	return AlwaysAsk, fmt.Errorf("unknown conflict policy %q", s)
}

// Decision is what to do with one conflicting item.
type Decision int

const (
	Overwrite Decision = iota
	Skip
	Rename
	Abort
)

func (d Decision) String() string {
	switch d {
	case Overwrite:
		return "overwrite"
	case Skip:
		return "skip"
	case Rename:
		return "rename"
	default:
		return "abort"
	}
}

// ParseDecision accepts the names printed by Decision.String.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overwrite", "replace":
		return Overwrite, nil
	case "skip":
		return Skip, nil
	case "rename", "keep-both":
		return Rename, nil
	case "abort", "stop":
		return Abort, nil
	}
	return Abort, fmt.Errorf("unknown conflict decision %q", s)
}

// Resolve turns a policy into a decision. ask is true for AlwaysAsk, in which
// case the decision is meaningless until someone answers.
func Resolve(p Policy) (d Decision, ask bool) {
	switch p {
	case AlwaysOverwrite:
		return Overwrite, false
	case AlwaysSkip:
		return Skip, false
	case AutoRename:
		return Rename, false
	default:
		return Abort, true
	}
}

// PolicyFor returns the policy that always yields d, used when an answer
// applies to every remaining item. Abort has no such policy.
func PolicyFor(d Decision) (Policy, bool) {
	switch d {
	case Overwrite:
		return AlwaysOverwrite, true
	case Skip:
		return AlwaysSkip, true
	case Rename:
		return AutoRename, true
	}
	return AlwaysAsk, false
}

// Detect reports whether writing src to dst would clobber something. A
// target that is the source itself, such as a case-only rename on a
// case-insensitive volume, is not a conflict.
func Detect(fsys fs.FileSystem, src, dst string) (fs.Entry, bool) {
	existing, err := fs.Stat(fsys, dst)
	if err != nil {
		return fs.Entry{}, false
	}
	if src != "" && fs.SameFile(fsys, src, dst) && src != dst {
		return fs.Entry{}, false
	}
	return existing, true
}

// RenameTarget finds a free sibling of dst named "name_copyN.ext", trying
// N = 1..maxProbes in order.
func RenameTarget(fsys fs.FileSystem, dst string, maxProbes int) (string, error) {
	if maxProbes <= 0 {
		maxProbes = DefaultMaxProbes
	}
	dir := filepath.Dir(dst)
	name := filepath.Base(dst)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		// ".bashrc" has no extension, only a leading dot.
		base, ext = name, ""
	}
	for i := 1; i <= maxProbes; i++ {
		candidate := filepath.Join(dir, base+"_copy"+strconv.Itoa(i)+ext)
		if !fs.Exists(fsys, candidate) {
			debug.Log(debug.CONFLICT, "rename target for %q: %q", dst, candidate)
			return candidate, nil
		}
	}
	return "", fs.Categorize("rename-probe", dst, fs.ErrTooManyConflicts)
}

// Key identifies one open question.
type Key struct {
	TaskID string
	Source string
}

// Prompt is a question put to the user about one item.
type Prompt struct {
	Key
	Destination string
	Existing    fs.Entry
	Incoming    fs.Entry
}

// Answer is the reply to a prompt.
type Answer struct {
	Decision   Decision
	ApplyToAll bool
}

// Prompts tracks unanswered questions.
type Prompts struct {
	mu   sync.Mutex
	open map[Key]Prompt
}

// NewPrompts creates an empty registry.
func NewPrompts() *Prompts {
	return &Prompts{open: make(map[Key]Prompt)}
}

// Open registers p. Reopening a key replaces the earlier question.
func (r *Prompts) Open(p Prompt) {
	r.mu.Lock()
	r.open[p.Key] = p
	r.mu.Unlock()
}

// Take removes and returns the prompt for key.
func (r *Prompts) Take(key Key) (Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.open[key]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: task %s item %s", ErrNoPrompt, key.TaskID, key.Source)
	}
	delete(r.open, key)
	return p, nil
}

// Pending returns the open prompts of a task in no particular order.
func (r *Prompts) Pending(taskID string) []Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Prompt
	for k, p := range r.open {
		if k.TaskID == taskID {
			out = append(out, p)
		}
	}
	return out
}

// Drop forgets every prompt of a task.
func (r *Prompts) Drop(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.open {
		if k.TaskID == taskID {
			delete(r.open, k)
		}
	}
}
