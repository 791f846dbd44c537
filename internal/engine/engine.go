// Package engine ties the index, scanner, operation queue, watcher and
// session together behind one request feed and one event feed.
//
// Requests are handled one at a time on the engine's own goroutine. Scans
// and operations run on their own workers, so no request waits on disk
// I/O longer than a stat.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/justyntemme/strop/internal/config"
	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/event"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/index"
	"github.com/justyntemme/strop/internal/logging"
	"github.com/justyntemme/strop/internal/ops"
	"github.com/justyntemme/strop/internal/scan"
	"github.com/justyntemme/strop/internal/session"
	"github.com/justyntemme/strop/internal/shell"
	"github.com/justyntemme/strop/internal/store"
	"github.com/justyntemme/strop/internal/trash"
	"github.com/justyntemme/strop/internal/watch"
)

const requestBuffer = 64

var (
	// ErrClosed is returned for requests made after Close.
	ErrClosed = errors.New("engine is closed")
	// ErrNoHistory is returned by Back and Forward at the end of history.
	ErrNoHistory = errors.New("no more history")
	// ErrNoStore is returned by bookmark requests when no database is open.
	ErrNoStore = errors.New("no database")
	// ErrEmptyClipboard is returned by Paste with nothing to paste.
	ErrEmptyClipboard = errors.New("clipboard is empty")
)

// Option configures an Engine.
type Option func(*Engine)

// WithFileSystem replaces the OS filesystem for operations and stats.
func WithFileSystem(fsys fs.FileSystem) Option { return func(e *Engine) { e.fsys = fsys } }

// WithShell replaces the desktop integration.
func WithShell(s shell.Shell) Option { return func(e *Engine) { e.shell = s } }

// WithStore persists bookmarks, recents and finished operations in db.
// The caller keeps ownership of db.
func WithStore(db *store.DB) Option { return func(e *Engine) { e.store = db } }

// WithTrash replaces the trash used by Trash operations.
func WithTrash(t ops.Trasher) Option { return func(e *Engine) { e.bin = t } }

// Engine is the coordinating context of the file manager.
type Engine struct {
	cfg   config.Config
	fsys  fs.FileSystem
	shell shell.Shell
	store *store.DB
	bin   ops.Trasher
	log   *zap.Logger

	idx     *index.Index
	scanner *scan.Scanner
	queue   *ops.Queue
	watcher *watch.Watcher
	sess    *session.State

	in  *event.Bus // from the components
	out *event.Bus // to the front end

	requests   chan Request
	done       chan struct{}
	loopDone   chan struct{}
	routerDone chan struct{}
	closeOnce  sync.Once
	closeErr   error

	showHidden atomic.Bool

	cuts map[string]bool // tasks pasted from a cut clipboard; loop only
}

// New builds and starts an engine.
func New(cfg config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		fsys:       fs.OS{},
		log:        logging.Named("engine"),
		in:         event.NewBus(),
		out:        event.NewBus(),
		requests:   make(chan Request, requestBuffer),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		routerDone: make(chan struct{}),
		cuts:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.shell == nil {
		e.shell = shell.New()
	}
	if e.bin == nil {
		e.bin = trash.Default()
	}
	e.showHidden.Store(cfg.Session.ShowHidden)
	if e.store != nil {
		if v, err := e.store.Setting(context.Background(), settingShowHidden); err == nil {
			e.showHidden.Store(v == "true")
		}
	}

	e.idx = index.New(e.in)
	e.scanner = scan.New(e.idx, cfg.Scanner.Workers)
	e.idx.SetRequester(e.scanner)

	e.queue = ops.New(ops.Config{
		MaxActive:        cfg.Operations.MaxActive,
		ChunkSize:        cfg.Operations.ChunkSize,
		MaxRenameProbes:  cfg.Operations.MaxRenameProbes,
		ProgressInterval: cfg.Operations.ProgressInterval,
	}, e.in,
		ops.WithFileSystem(e.fsys),
		ops.WithTrash(e.bin),
		ops.WithArchive(e.archive),
	)

	e.watcher = watch.New(watch.Config{
		Enabled:      cfg.Watcher.Enabled,
		Debounce:     cfg.Watcher.Debounce,
		PollInterval: cfg.Watcher.PollInterval,
		MaxWatches:   cfg.Watcher.MaxWatches,
	}, e.dirChanged)

	e.sess = session.New(e.idx.Contains, cfg.Session.MaxHistory)

	go e.loop()
	go e.route()

	e.log.Debug("engine started",
		zap.Int("scanWorkers", cfg.Scanner.Workers),
		zap.Int("maxActive", cfg.Operations.MaxActive),
		zap.Stringer("watchMode", e.watcher.Mode()))
	return e
}

// Events returns the event feed: index.TreeUpdated, ops.Progress,
// ops.Completed and ops.ConflictRequest, in emission order. It must be
// drained; it is closed after Close.
func (e *Engine) Events() <-chan event.Event { return e.out.C() }

// Submit queues a request without waiting for it.
func (e *Engine) Submit(req Request) error {
	req.reply = nil
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	select {
	case e.requests <- req:
		return nil
	case <-e.done:
		return ErrClosed
	}
}

// Do queues a request and waits for its result.
func (e *Engine) Do(ctx context.Context, req Request) (Result, error) {
	req.reply = make(chan Result, 1)
	select {
	case <-e.done:
		return Result{}, ErrClosed
	default:
	}
	select {
	case e.requests <- req:
	case <-e.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, res.Err
	case <-e.loopDone:
		// The loop may have answered just before stopping.
		select {
		case res := <-req.reply:
			return res, res.Err
		default:
			return Result{}, ErrClosed
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (e *Engine) loop() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.done:
			return
		case req := <-e.requests:
			res := e.dispatch(req)
			if res.Err != nil {
				e.log.Debug("request failed", zap.Stringer("action", req.Action), zap.Error(res.Err))
			}
			if req.reply != nil {
				req.reply <- res
			}
		}
	}
}

// Session returns a copy of the navigation and selection state.
func (e *Engine) Session() session.Snapshot { return e.sess.Snapshot() }

// Node returns the cached node for path without scanning.
func (e *Engine) Node(path string) (index.Node, bool) {
	n, ok := e.idx.Peek(path)
	if ok {
		n.Entries = e.visible(n.Entries)
	}
	return n, ok
}

// ShowHidden reports whether hidden entries are included in nodes and events.
func (e *Engine) ShowHidden() bool { return e.showHidden.Load() }

// Task returns a snapshot of an operation.
func (e *Engine) Task(id string) (ops.Task, error) { return e.queue.Snapshot(id) }

// Tasks returns snapshots of every operation not yet acknowledged.
func (e *Engine) Tasks() []ops.Task { return e.queue.List() }

// Wait blocks until the operation finishes.
func (e *Engine) Wait(ctx context.Context, id string) (ops.Task, error) {
	return e.queue.Wait(ctx, id)
}

// Volumes lists mounted drives.
func (e *Engine) Volumes() []shell.Volume { return e.shell.Volumes() }

// Bookmarks lists saved bookmarks.
func (e *Engine) Bookmarks(ctx context.Context) ([]store.Bookmark, error) {
	if e.store == nil {
		return nil, ErrNoStore
	}
	return e.store.Bookmarks(ctx)
}

// StartPath is where a new window opens: the configured start path, else
// the last visited directory if it still exists, else home.
func (e *Engine) StartPath(ctx context.Context) string {
	if p := e.cfg.Session.StartPath; p != "" {
		if clean, err := e.clean(p); err == nil {
			return clean
		}
	}
	if e.store != nil {
		if p, err := e.store.Setting(ctx, settingLastPath); err == nil {
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				return p
			}
		}
	}
	if home, err := e.shell.SpecialFolder(shell.Home); err == nil {
		return home
	}
	wd, _ := os.Getwd()
	return wd
}

// dirChanged is called by the watcher after a burst of changes settles.
func (e *Engine) dirChanged(dir string) {
	debug.Log(debug.ENGINE, "external change in %s", dir)
	e.idx.Refresh(dir)
}

// archive is called by the queue for every acknowledged task.
func (e *Engine) archive(t ops.Task) {
	if e.store == nil {
		return
	}
	rec := store.OperationRecord{
		ID:          t.ID,
		Kind:        t.Kind.String(),
		Status:      t.Status.String(),
		Sources:     t.Sources,
		Destination: t.Destination,
		Items:       len(t.Items),
		Bytes:       t.BytesDone(),
		Started:     t.Started,
		Finished:    t.Finished,
	}
	for _, it := range t.Items {
		if it.Outcome == ops.OutcomeFailed || it.Outcome == ops.OutcomePartial {
			rec.Failed++
		}
	}
	if t.Err != nil {
		rec.Err = t.Err.Error()
	}
	if err := e.store.LogOperation(context.Background(), rec); err != nil {
		e.log.Warn("archiving operation failed", zap.String("task", t.ID), zap.Error(err))
	}
}

// Close stops intake, cancels pending operations and waits for running
// ones until ctx ends, then cancels those too. The event feed is closed
// once everything emitted so far has been delivered.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		close(e.done)
		<-e.loopDone

		var errs []error
		if err := e.queue.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("operations: %w", err))
		}
		if err := e.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("watcher: %w", err))
		}
		e.scanner.Close()
		e.in.Close()
		<-e.routerDone
		e.out.Close()
		e.closeErr = errors.Join(errs...)
		e.log.Debug("engine stopped")
	})
	return e.closeErr
}
