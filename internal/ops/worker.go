package ops

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/justyntemme/strop/internal/conflict"
	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/metrics"
)

var (
	errIntoItself = errors.New("cannot copy or move a directory into itself")
	errNoTrash    = errors.New("no trash available")
)

type answer struct {
	source string
	conflict.Answer
}

// task is the live state behind a Task snapshot. Only its worker writes the
// snapshot after it starts running.
type task struct {
	mu      sync.Mutex
	t       Task
	gate    chan struct{} // non-nil while paused, closed on resume
	ctx     context.Context
	cancel  context.CancelFunc
	answers chan answer
	done    chan struct{}
	limiter *rate.Limiter
}

func (t *task) snapshot() Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t.clone()
}

func (t *task) update(fn func(*Task)) {
	t.mu.Lock()
	fn(&t.t)
	t.mu.Unlock()
}

func (t *task) item(i int, fn func(*Item)) {
	t.mu.Lock()
	fn(&t.t.Items[i])
	t.mu.Unlock()
}

func (t *task) setStatus(s Status) {
	t.update(func(snap *Task) {
		snap.Status = s
		if s == Running && snap.Started.IsZero() {
			snap.Started = time.Now()
		}
	})
}

func (t *task) pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t.Status != Running {
		return false
	}
	t.t.Status = Paused
	t.gate = make(chan struct{})
	return true
}

func (t *task) resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t.Status != Paused {
		return false
	}
	t.t.Status = Running
	close(t.gate)
	t.gate = nil
	return true
}

// checkpoint blocks while the task is paused and reports cancellation.
func (t *task) checkpoint() error {
	t.mu.Lock()
	gate := t.gate
	t.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-t.ctx.Done():
		}
	}
	if err := t.ctx.Err(); err != nil {
		return fs.Categorize("checkpoint", "", err)
	}
	return nil
}

// run is the worker for one task.
func (q *Queue) run(t *task) {
	defer q.wg.Done()
	defer q.finished()

	metrics.OperationStarted()
	snap := t.snapshot()
	q.log.Info("operation started",
		zap.String("id", snap.ID),
		zap.Stringer("kind", snap.Kind),
		zap.Int("items", len(snap.Items)))

	policy := snap.Policy
	var waiting []int
	for i := range snap.Items {
		if t.checkpoint() != nil {
			break
		}
		if q.runItem(t, i, policy, nil) {
			waiting = append(waiting, i)
		}
	}

	// Revisit items that asked a question, in the order answers arrive.
	for len(waiting) > 0 && t.ctx.Err() == nil {
		var a answer
		select {
		case a = <-t.answers:
		case <-t.ctx.Done():
			continue
		}
		idx := -1
		for k, i := range waiting {
			if snap.Items[i].Source == a.source {
				idx = k
				break
			}
		}
		if idx < 0 {
			continue
		}
		i := waiting[idx]
		waiting = append(waiting[:idx], waiting[idx+1:]...)

		if a.ApplyToAll {
			if p, ok := conflict.PolicyFor(a.Decision); ok {
				policy = p
				t.update(func(s *Task) { s.Policy = p })
			}
		}
		if t.checkpoint() != nil {
			break
		}
		d := a.Decision
		q.runItem(t, i, policy, &d)

		if a.ApplyToAll && policy != conflict.AlwaysAsk {
			// The other open questions are answered by the new policy.
			rest := waiting
			waiting = nil
			for _, j := range rest {
				if _, err := q.prompts.Take(conflict.Key{TaskID: snap.ID, Source: snap.Items[j].Source}); err != nil {
					// Answered meanwhile; the answer is already queued.
					waiting = append(waiting, j)
					continue
				}
				if t.checkpoint() != nil {
					break
				}
				q.runItem(t, j, policy, nil)
			}
		}
	}

	q.complete(t)
}

// complete derives the final status and reports it.
func (q *Queue) complete(t *task) {
	cancelled := t.ctx.Err() != nil
	q.prompts.Drop(t.t.ID)
	t.update(func(s *Task) {
		for i := range s.Items {
			switch s.Items[i].Outcome {
			case OutcomePending, OutcomeRunning, OutcomeWaiting:
				s.Items[i].Outcome = OutcomeCancelled
				s.Items[i].Code = fs.CodeCancelled
				cancelled = true
			}
		}
		s.Status = deriveStatus(s.Items, cancelled)
		s.Finished = time.Now()
	})
	t.cancel()

	snap := t.snapshot()
	metrics.RecordOperation(snap.Kind.String(), snap.Status.String(), snap.Finished.Sub(snap.Started))
	q.log.Info("operation finished",
		zap.String("id", snap.ID),
		zap.Stringer("kind", snap.Kind),
		zap.Stringer("status", snap.Status),
		zap.Int64("bytes", snap.BytesDone()),
		zap.Duration("took", snap.Finished.Sub(snap.Started)))

	close(t.done)
	q.sink.Emit(Completed{Task: snap})
}

// runItem processes item i. It returns true when the item is waiting for a
// conflict answer. decision is the answer when revisiting such an item.
func (q *Queue) runItem(t *task, i int, policy conflict.Policy, decision *conflict.Decision) bool {
	t.item(i, func(it *Item) { it.Outcome = OutcomeRunning })
	q.emitProgress(t, i, true)

	var (
		res itemResult
		ask bool
	)
	switch t.t.Kind {
	case Copy:
		res, ask = q.transfer(t, i, policy, decision, false)
	case Move:
		res, ask = q.transfer(t, i, policy, decision, true)
	case Delete:
		res = q.deleteItem(t, i)
	case Rename:
		res, ask = q.renameItem(t, i, policy, decision)
	case Trash:
		res = q.trashItem(t, i)
	case CreateFolder:
		res, ask = q.mkdirItem(t, i, policy, decision)
	}
	if ask {
		t.item(i, func(it *Item) { it.Outcome = OutcomeWaiting })
		q.emitProgress(t, i, true)
		return true
	}

	t.item(i, func(it *Item) {
		it.Outcome = res.outcome
		it.Err = res.err
		it.Code = fs.CodeOf(res.err)
		if res.target != "" {
			it.Target = res.target
		}
		it.Failures = append(it.Failures, res.failures...)
		if it.Code == fs.CodeOK && len(res.failures) > 0 {
			it.Code = res.failures[0].Code
		}
	})
	if res.err != nil || len(res.failures) > 0 {
		q.log.Debug("item failed",
			zap.String("id", t.t.ID),
			zap.String("source", t.t.Items[i].Source),
			zap.Stringer("outcome", res.outcome),
			zap.Error(res.err),
			zap.Int("failures", len(res.failures)))
	}
	q.emitProgress(t, i, true)
	return false
}

type itemResult struct {
	outcome  Outcome
	target   string
	err      error
	failures []Failure
}

func failed(err error) itemResult {
	if fs.CodeOf(err) == fs.CodeCancelled {
		return itemResult{outcome: OutcomeCancelled, err: err}
	}
	return itemResult{outcome: OutcomeFailed, err: err}
}

// resolveTarget applies the conflict policy to dst. It returns the path to
// write, or a final result when the item ends here, or ask=true.
func (q *Queue) resolveTarget(t *task, i int, src, dst string, policy conflict.Policy, decision *conflict.Decision) (target string, done *itemResult, ask bool) {
	existing, clash := conflict.Detect(q.fsys, src, dst)
	if !clash {
		return dst, nil, false
	}

	var d conflict.Decision
	if decision != nil {
		d = *decision
	} else {
		var needAsk bool
		d, needAsk = conflict.Resolve(policy)
		if needAsk {
			incoming, _ := fs.Stat(q.fsys, src)
			p := conflict.Prompt{
				Key:         conflict.Key{TaskID: t.t.ID, Source: t.t.Items[i].Source},
				Destination: dst,
				Existing:    existing,
				Incoming:    incoming,
			}
			q.prompts.Open(p)
			q.sink.Emit(ConflictRequest{Prompt: p})
			debug.Log(debug.CONFLICT, "ask: %q -> %q", src, dst)
			return "", nil, true
		}
	}
	metrics.RecordConflict(d.String())
	debug.Log(debug.CONFLICT, "%s: %q -> %q", d, src, dst)

	switch d {
	case conflict.Skip:
		return "", &itemResult{outcome: OutcomeSkipped, target: dst}, false
	case conflict.Abort:
		t.update(func(s *Task) { s.Err = ErrAborted })
		t.cancel()
		err := &fs.PathError{Op: "conflict", Path: dst, Code: fs.CodeCancelled, Err: ErrAborted}
		return "", &itemResult{outcome: OutcomeCancelled, err: err}, false
	case conflict.Rename:
		renamed, err := conflict.RenameTarget(q.fsys, dst, q.cfg.MaxRenameProbes)
		if err != nil {
			r := failed(err)
			return "", &r, false
		}
		return renamed, nil, false
	}

	// Overwrite. Writing something onto itself would destroy it.
	if src == dst || fs.SameFile(q.fsys, src, dst) {
		return "", &itemResult{outcome: OutcomeSkipped, target: dst}, false
	}
	if src == "" && existing.IsDir() {
		// Creating a folder that already exists.
		return "", &itemResult{outcome: OutcomeSucceeded, target: dst}, false
	}
	// Only a regular file can be replaced by renaming over it.
	srcEntry, err := fs.Stat(q.fsys, src)
	if err != nil || existing.Kind != fs.KindFile || srcEntry.Kind != fs.KindFile {
		if _, failures := q.removeTree(t, dst); len(failures) > 0 {
			r := failed(fs.Categorize("overwrite", dst, failures[0].Err))
			r.failures = failures
			return "", &r, false
		}
	}
	return dst, nil, false
}

// transfer copies or moves one source into the destination directory.
func (q *Queue) transfer(t *task, i int, policy conflict.Policy, decision *conflict.Decision, move bool) (itemResult, bool) {
	src := t.t.Items[i].Source
	dst := filepath.Join(t.t.Destination, filepath.Base(src))

	entry, err := fs.Stat(q.fsys, src)
	if err != nil {
		return failed(err), false
	}
	if entry.IsDir() && dst != src && fs.IsWithin(dst, src) {
		return failed(fs.Categorize("transfer", src, errIntoItself)), false
	}

	if move && dst == src {
		return itemResult{outcome: OutcomeSucceeded, target: dst}, false
	}

	target, done, ask := q.resolveTarget(t, i, src, dst, policy, decision)
	if ask {
		return itemResult{}, true
	}
	if done != nil {
		return *done, false
	}

	if move {
		return q.moveItem(t, i, entry, target), false
	}

	total := measure(src)
	t.item(i, func(it *Item) { it.BytesTotal = total })
	q.emitProgress(t, i, true)
	failures, err := q.copyItem(t, i, entry, target)
	if err != nil {
		return failed(err), false
	}
	if len(failures) > 0 {
		return itemResult{outcome: OutcomePartial, target: target, failures: failures}, false
	}
	return itemResult{outcome: OutcomeSucceeded, target: target}, false
}

// copyItem copies entry to target. A directory the copy created is removed
// again when the task is cancelled part way.
func (q *Queue) copyItem(t *task, i int, entry fs.Entry, target string) ([]Failure, error) {
	fresh := entry.IsDir() && !fs.Exists(q.fsys, target)
	failures, err := q.copyTree(t, i, entry, target)
	if err != nil && fresh && fs.CodeOf(err) == fs.CodeCancelled && fs.Exists(q.fsys, target) {
		q.discard(target)
	}
	return failures, err
}

func (q *Queue) moveItem(t *task, i int, entry fs.Entry, target string) itemResult {
	src := entry.Path
	err := q.fsys.Rename(src, target)
	if err == nil {
		debug.Log(debug.OPS, "move %q -> %q by rename", src, target)
		t.item(i, func(it *Item) { it.SourceRemoved = true })
		return itemResult{outcome: OutcomeSucceeded, target: target}
	}
	if fs.CodeOf(err) != fs.CodeCrossDevice {
		return failed(fs.Categorize("move", src, err))
	}

	// Different volume: copy, then delete the source only if the copy is whole.
	debug.Log(debug.OPS, "move %q -> %q crosses devices, copying", src, target)
	total := measure(src)
	t.item(i, func(it *Item) { it.BytesTotal = total })
	failures, err := q.copyItem(t, i, entry, target)
	if err != nil {
		return failed(err)
	}
	if len(failures) > 0 {
		return itemResult{outcome: OutcomePartial, target: target, failures: failures}
	}
	t.item(i, func(it *Item) { it.Copied = true })

	if err := t.checkpoint(); err != nil {
		// The copy is complete; keep both rather than half-delete.
		return itemResult{outcome: OutcomePartial, target: target, err: err}
	}
	removed, failures := q.removeTree(t, src)
	if len(failures) > 0 {
		q.log.Warn("move copied but source not removed",
			zap.String("source", src),
			zap.Bool("partlyRemoved", removed),
			zap.Int("failures", len(failures)))
		return itemResult{
			outcome:  OutcomePartial,
			target:   target,
			err:      fs.Categorize("move", src, failures[0].Err),
			failures: failures,
		}
	}
	t.item(i, func(it *Item) { it.SourceRemoved = true })
	return itemResult{outcome: OutcomeSucceeded, target: target}
}

func (q *Queue) deleteItem(t *task, i int) itemResult {
	src := t.t.Items[i].Source
	if _, err := fs.Stat(q.fsys, src); err != nil {
		return failed(err)
	}
	removed, failures := q.removeTree(t, src)
	switch {
	case len(failures) == 0:
		t.item(i, func(it *Item) { it.SourceRemoved = true })
		return itemResult{outcome: OutcomeSucceeded}
	case t.ctx.Err() != nil:
		return itemResult{outcome: OutcomeCancelled, err: fs.Categorize("delete", src, t.ctx.Err()), failures: failures}
	case removed:
		return itemResult{outcome: OutcomePartial, failures: failures}
	default:
		r := failed(fs.Categorize("delete", failures[0].Path, failures[0].Err))
		r.failures = failures
		return r
	}
}

func (q *Queue) renameItem(t *task, i int, policy conflict.Policy, decision *conflict.Decision) (itemResult, bool) {
	src := t.t.Items[i].Source
	dst := filepath.Join(filepath.Dir(src), t.t.NewName)
	if dst == src {
		return itemResult{outcome: OutcomeSucceeded, target: dst}, false
	}
	if _, err := fs.Stat(q.fsys, src); err != nil {
		return failed(err), false
	}

	target, done, ask := q.resolveTarget(t, i, src, dst, policy, decision)
	if ask {
		return itemResult{}, true
	}
	if done != nil {
		return *done, false
	}
	if err := q.fsys.Rename(src, target); err != nil {
		return failed(fs.Categorize("rename", src, err)), false
	}
	return itemResult{outcome: OutcomeSucceeded, target: target}, false
}

func (q *Queue) trashItem(t *task, i int) itemResult {
	src := t.t.Items[i].Source
	if q.bin == nil {
		return failed(fs.Categorize("trash", src, errNoTrash))
	}
	item, err := q.bin.Put(src)
	if err != nil {
		return failed(fs.Categorize("trash", src, err))
	}
	t.item(i, func(it *Item) { it.SourceRemoved = true })
	return itemResult{outcome: OutcomeSucceeded, target: item.TrashPath}
}

func (q *Queue) mkdirItem(t *task, i int, policy conflict.Policy, decision *conflict.Decision) (itemResult, bool) {
	dst := t.t.Items[i].Source
	target, done, ask := q.resolveTarget(t, i, "", dst, policy, decision)
	if ask {
		return itemResult{}, true
	}
	if done != nil {
		return *done, false
	}
	if err := q.fsys.Mkdir(target, fs.DirPermission); err != nil {
		return failed(fs.Categorize("mkdir", target, err)), false
	}
	return itemResult{outcome: OutcomeSucceeded, target: target}, false
}

// emitProgress reports item i, or only the task status when i is negative.
// Unforced updates are rate limited.
func (q *Queue) emitProgress(t *task, i int, force bool) {
	if !force && !t.limiter.Allow() {
		return
	}
	snap := t.snapshot()
	p := Progress{
		TaskID:         snap.ID,
		Kind:           snap.Kind,
		Status:         snap.Status,
		Item:           i,
		TaskBytesDone:  snap.BytesDone(),
		TaskBytesTotal: snap.BytesTotal(),
	}
	if i >= 0 && i < len(snap.Items) {
		it := snap.Items[i]
		p.Source = it.Source
		p.Outcome = it.Outcome
		p.BytesDone = it.BytesDone
		p.BytesTotal = it.BytesTotal
	}
	q.sink.Emit(p)
}
