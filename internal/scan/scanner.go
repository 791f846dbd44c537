// Package scan reads directories on a bounded pool of workers and hands the
// results to the index.
package scan

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/logging"
	"github.com/justyntemme/strop/internal/metrics"
)

// DefaultWorkers is the scan concurrency used when none is configured.
const DefaultWorkers = 4

// Sink receives scan results. The Index implements it.
type Sink interface {
	Ticket(path string) uint64
	ApplyScanResult(path string, ticket uint64, entries []fs.Entry, err error)
}

// Result is the outcome of a synchronous Scan.
type Result struct {
	Path    string
	Entries []fs.Entry
	Err     error
}

// Scanner runs directory reads. Requests for a path already being read join
// the read in flight.
type Scanner struct {
	sink  Sink
	sem   *semaphore.Weighted
	group singleflight.Group
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// New creates a scanner that runs at most workers reads at once.
func New(sink Sink, workers int) *Scanner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scanner{
		sink:    sink,
		sem:     semaphore.NewWeighted(int64(workers)),
		log:     logging.Named("scan"),
		ctx:     ctx,
		cancel:  cancel,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Request schedules an asynchronous scan of path and returns immediately.
func (s *Scanner) Request(path string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		_, _, shared := s.group.Do(path, func() (any, error) {
			s.run(path)
			return nil, nil
		})
		if shared {
			metrics.RecordScanCoalesced()
		}
	}()
}

func (s *Scanner) run(path string) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.cancels[path] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, path)
		s.mu.Unlock()
		cancel()
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.group.Forget(path)
		s.sink.ApplyScanResult(path, 0, nil, fs.Categorize("scan", path, err))
		return
	}
	defer s.sem.Release(1)

	ticket := s.sink.Ticket(path)
	start := time.Now()
	entries, err := s.read(ctx, path)
	metrics.RecordScan(time.Since(start), err, fs.CodeOf(err) == fs.CodeCancelled)
	if err != nil && fs.CodeOf(err) != fs.CodeCancelled {
		s.log.Debug("scan failed", zap.String("path", path), zap.Error(err))
	}

	// Forget before applying: a re-request triggered by the apply must start
	// a new read rather than join this finished one.
	s.group.Forget(path)
	s.sink.ApplyScanResult(path, ticket, entries, err)
}

// Scan reads path synchronously without touching the sink.
func (s *Scanner) Scan(ctx context.Context, path string) Result {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Result{Path: path, Err: fs.Categorize("scan", path, err)}
	}
	defer s.sem.Release(1)
	entries, err := s.read(ctx, path)
	return Result{Path: path, Entries: entries, Err: err}
}

func (s *Scanner) read(ctx context.Context, path string) ([]fs.Entry, error) {
	var entries []fs.Entry
	err := Walk(ctx, path, func(e fs.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	fs.SortEntries(entries)
	return entries, nil
}

// Cancel stops the scan of path if one is running. The index keeps the
// node as it was.
func (s *Scanner) Cancel(path string) {
	s.mu.Lock()
	cancel, ok := s.cancels[path]
	s.mu.Unlock()
	if ok {
		debug.Log(debug.SCAN, "cancel scan of %q", path)
		cancel()
	}
}

// Close cancels every scan and waits for the workers to exit.
func (s *Scanner) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Walk calls fn for every immediate child of dir. Symlinks are reported as
// links and never followed, so a link cycle cannot make the walk loop. fn is
// never called concurrently. An error returned by fn stops the walk.
func Walk(ctx context.Context, dir string, fn func(fs.Entry) error) error {
	// fastwalk swallows a root it cannot read, so check it first.
	root := dir
	if info, err := os.Lstat(dir); err != nil {
		return fs.Categorize("scan", dir, err)
	} else if info.Mode()&iofs.ModeSymlink != 0 {
		// The directory being listed may itself be reached through a link.
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return fs.Categorize("scan", dir, err)
		}
		root = resolved
	}
	f, err := os.Open(root)
	if err != nil {
		return fs.Categorize("scan", dir, err)
	}
	f.Close()

	conf := &fastwalk.Config{
		Follow: false,
	}

	var mu sync.Mutex
	var fnErr error
	walkErr := fastwalk.Walk(conf, root, func(fullPath string, d iofs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if fullPath == root {
			if err != nil {
				return err
			}
			return nil
		}
		if err != nil {
			debug.Log(debug.SCAN_ENTRY, "walk error at %q: %v", fullPath, err)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Vanished between readdir and lstat.
			debug.Log(debug.SCAN_ENTRY, "skipping %q: %v", d.Name(), err)
			return nil
		}
		entry := fs.EntryFromInfo(filepath.Join(dir, d.Name()), info)
		debug.Log(debug.SCAN_ENTRY, "%q kind=%s size=%d", entry.Name, entry.Kind, entry.Size)

		mu.Lock()
		if fnErr == nil {
			fnErr = fn(entry)
		}
		stop := fnErr != nil
		mu.Unlock()
		if stop {
			return fnErr
		}

		// Direct children only.
		if d.IsDir() {
			return fastwalk.SkipDir
		}
		return nil
	})

	if err := ctx.Err(); err != nil {
		return fs.Categorize("scan", dir, err)
	}
	if fnErr != nil {
		return fnErr
	}
	if walkErr != nil && !errors.Is(walkErr, fastwalk.SkipDir) {
		return fs.Categorize("scan", dir, walkErr)
	}
	return nil
}
