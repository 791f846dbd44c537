package ops

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/justyntemme/strop/internal/conflict"
	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/event"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/logging"
	"github.com/justyntemme/strop/internal/trash"
)

// Defaults used for zero Config fields.
const (
	DefaultMaxActive        = 2
	DefaultChunkSize        = 1 << 20
	DefaultProgressInterval = 100 * time.Millisecond
)

var (
	ErrQueueClosed    = errors.New("operation queue is closed")
	ErrUnknownTask    = errors.New("unknown task")
	ErrInvalidRequest = errors.New("invalid operation request")
	ErrNotRunning     = errors.New("task is not running")
	ErrNotFinished    = errors.New("task has not finished")
	ErrAborted        = errors.New("aborted by user")
)

// Config tunes the queue.
type Config struct {
	MaxActive        int
	ChunkSize        int
	MaxRenameProbes  int
	ProgressInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxActive <= 0 {
		c.MaxActive = DefaultMaxActive
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxRenameProbes <= 0 {
		c.MaxRenameProbes = conflict.DefaultMaxProbes
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	return c
}

// Trasher moves a path to the trash.
type Trasher interface {
	Put(path string) (trash.Item, error)
}

// Option configures a Queue.
type Option func(*Queue)

// WithFileSystem replaces the OS filesystem, mainly for tests.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(q *Queue) { q.fsys = fsys }
}

// WithTrash sets the trash used by Trash tasks.
func WithTrash(t Trasher) Option {
	return func(q *Queue) { q.bin = t }
}

// WithArchive sets a hook called with the final snapshot of every
// acknowledged task.
func WithArchive(fn func(Task)) Option {
	return func(q *Queue) { q.archive = fn }
}

// Queue owns every submitted task. Tasks run on their own goroutines, at most
// MaxActive at a time, and tasks whose paths overlap never run together.
type Queue struct {
	cfg     Config
	fsys    fs.FileSystem
	bin     Trasher
	sink    event.Sink
	prompts *conflict.Prompts
	archive func(Task)
	log     *zap.Logger

	mu     sync.Mutex
	tasks  map[string]*task
	order  []string
	active int
	closed bool
	wg     sync.WaitGroup
}

// New creates a queue that reports to sink.
func New(cfg Config, sink event.Sink, opts ...Option) *Queue {
	if sink == nil {
		sink = event.Discard
	}
	q := &Queue{
		cfg:     cfg.withDefaults(),
		fsys:    fs.OS{},
		sink:    sink,
		prompts: conflict.NewPrompts(),
		log:     logging.Named("ops"),
		tasks:   make(map[string]*task),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit validates req and queues it. The task starts as soon as a slot is
// free and nothing it touches is in use.
func (q *Queue) Submit(req Request) (string, error) {
	t, err := q.newTask(req)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	q.tasks[t.t.ID] = t
	q.order = append(q.order, t.t.ID)
	debug.Log(debug.OPS, "submit %s %s sources=%d dest=%q", t.t.ID, t.t.Kind, len(t.t.Sources), t.t.Destination)
	q.schedule()
	return t.t.ID, nil
}

func (q *Queue) newTask(req Request) (*task, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
	}

	sources := make([]string, 0, len(req.Sources))
	seen := make(map[string]bool, len(req.Sources))
	for _, s := range req.Sources {
		clean, err := fs.Clean(s)
		if err != nil {
			return nil, invalid("source %q: %v", s, err)
		}
		if !seen[clean] {
			seen[clean] = true
			sources = append(sources, clean)
		}
	}

	var dest string
	if req.Destination != "" {
		clean, err := fs.Clean(req.Destination)
		if err != nil {
			return nil, invalid("destination: %v", err)
		}
		dest = clean
	}

	switch req.Kind {
	case Copy, Move:
		if len(sources) == 0 || dest == "" {
			return nil, invalid("%s needs sources and a destination", req.Kind)
		}
	case Delete, Trash:
		if len(sources) == 0 {
			return nil, invalid("%s needs sources", req.Kind)
		}
	case Rename:
		if len(sources) != 1 {
			return nil, invalid("rename takes exactly one source, got %d", len(sources))
		}
		if !fs.ValidName(req.NewName) {
			return nil, invalid("bad name %q", req.NewName)
		}
	case CreateFolder:
		if dest == "" || !fs.ValidName(req.NewName) {
			return nil, invalid("mkdir needs a destination and a valid name")
		}
		sources = nil
	default:
		return nil, invalid("unknown kind %d", req.Kind)
	}

	snap := Task{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		Sources:     sources,
		Destination: dest,
		NewName:     req.NewName,
		Policy:      req.Policy,
		Status:      Pending,
		Created:     time.Now(),
	}
	if req.Kind == CreateFolder {
		snap.Items = []Item{{Source: filepath.Join(dest, req.NewName)}}
	} else {
		snap.Items = make([]Item, len(sources))
		for i, s := range sources {
			snap.Items[i] = Item{Source: s}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &task{
		t:       snap,
		ctx:     ctx,
		cancel:  cancel,
		answers: make(chan answer, len(snap.Items)),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Every(q.cfg.ProgressInterval), 1),
	}, nil
}

// schedule starts every pending task that may run. q.mu must be held.
func (q *Queue) schedule() {
	var blocked []Task
	for _, id := range q.order {
		if q.active >= q.cfg.MaxActive {
			return
		}
		t := q.tasks[id]
		snap := t.snapshot()
		if snap.Status != Pending {
			continue
		}
		if q.conflictsWithActive(snap) || overlapsAny(snap, blocked) {
			blocked = append(blocked, snap)
			continue
		}
		t.setStatus(Running)
		q.active++
		q.wg.Add(1)
		go q.run(t)
	}
}

func (q *Queue) conflictsWithActive(snap Task) bool {
	for _, other := range q.tasks {
		if other.t.ID == snap.ID {
			continue
		}
		o := other.snapshot()
		if (o.Status == Running || o.Status == Paused) && snap.overlaps(o) {
			return true
		}
	}
	return false
}

func overlapsAny(snap Task, others []Task) bool {
	for _, o := range others {
		if snap.overlaps(o) {
			return true
		}
	}
	return false
}

// finished releases a slot after a worker exits.
func (q *Queue) finished() {
	q.mu.Lock()
	q.active--
	if !q.closed {
		q.schedule()
	}
	q.mu.Unlock()
}

func (q *Queue) get(id string) (*task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return t, nil
}

// Snapshot returns a copy of the task.
func (q *Queue) Snapshot(id string) (Task, error) {
	t, err := q.get(id)
	if err != nil {
		return Task{}, err
	}
	return t.snapshot(), nil
}

// List returns copies of every task in submission order.
func (q *Queue) List() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.tasks[id].snapshot())
	}
	return out
}

// Wait blocks until the task is terminal or ctx ends.
func (q *Queue) Wait(ctx context.Context, id string) (Task, error) {
	t, err := q.get(id)
	if err != nil {
		return Task{}, err
	}
	select {
	case <-t.done:
		return t.snapshot(), nil
	case <-ctx.Done():
		return t.snapshot(), ctx.Err()
	}
}

// Cancel stops a task. A pending task is finished at once; a running one
// stops at the next item or chunk boundary and removes its partial file.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	t.cancel()
	pending := t.snapshot().Status == Pending
	if pending {
		q.finishUnstarted(t)
	}
	q.mu.Unlock()
	debug.Log(debug.OPS, "cancel %s (pending=%v)", id, pending)
	return nil
}

// finishUnstarted marks a pending task cancelled. q.mu must be held.
func (q *Queue) finishUnstarted(t *task) {
	t.update(func(s *Task) {
		for i := range s.Items {
			s.Items[i].Outcome = OutcomeCancelled
			s.Items[i].Code = fs.CodeCancelled
		}
		s.Status = Cancelled
		s.Finished = time.Now()
	})
	q.prompts.Drop(t.t.ID)
	close(t.done)
	q.sink.Emit(Completed{Task: t.snapshot()})
}

// Pause suspends a running task at the next chunk or item boundary.
func (q *Queue) Pause(id string) error {
	t, err := q.get(id)
	if err != nil {
		return err
	}
	if !t.pause() {
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	q.emitProgress(t, -1, true)
	return nil
}

// Resume continues a paused task where it stopped.
func (q *Queue) Resume(id string) error {
	t, err := q.get(id)
	if err != nil {
		return err
	}
	if !t.resume() {
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	q.emitProgress(t, -1, true)
	return nil
}

// ResolveConflict answers the open question about one item of a task.
// applyToAll turns the decision into the task's policy for later conflicts.
func (q *Queue) ResolveConflict(id, source string, d conflict.Decision, applyToAll bool) error {
	t, err := q.get(id)
	if err != nil {
		return err
	}
	if _, err := q.prompts.Take(conflict.Key{TaskID: id, Source: source}); err != nil {
		return err
	}
	t.answers <- answer{source: source, Answer: conflict.Answer{Decision: d, ApplyToAll: applyToAll}}
	return nil
}

// Prompts returns the unanswered conflict questions of a task.
func (q *Queue) Prompts(id string) []conflict.Prompt {
	return q.prompts.Pending(id)
}

// Acknowledge archives a finished task and forgets it.
func (q *Queue) Acknowledge(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	snap := t.snapshot()
	if !snap.Status.Terminal() {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotFinished, id, snap.Status)
	}
	delete(q.tasks, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if q.archive != nil {
		q.archive(snap)
	}
	return nil
}

// Shutdown stops intake, cancels pending tasks and waits for running ones.
// When ctx ends first the running tasks are cancelled too.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, id := range q.order {
			t := q.tasks[id]
			if t.snapshot().Status == Pending {
				t.cancel()
				q.finishUnstarted(t)
			}
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.log.Warn("shutdown deadline reached, cancelling running operations")
		q.mu.Lock()
		for _, t := range q.tasks {
			t.cancel()
		}
		q.mu.Unlock()
		<-done
		return ctx.Err()
	}
}
