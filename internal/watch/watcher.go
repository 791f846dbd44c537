// Package watch notices changes other programs make to loaded directories.
package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/logging"
	"github.com/justyntemme/strop/internal/metrics"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 200 * time.Millisecond

// ErrLimit is returned by Watch when MaxWatches directories are watched.
var ErrLimit = errors.New("watch limit reached")

// Config tunes the watcher.
type Config struct {
	Enabled      bool
	Debounce     time.Duration
	PollInterval time.Duration // fallback when fsnotify is unavailable; zero disables it
	MaxWatches   int           // zero means no limit
}

// Mode is how changes are detected.
type Mode int

const (
	ModeNotify Mode = iota // OS notifications
	ModePoll               // directory modtime polling
	ModeOff                // no live updates
)

func (m Mode) String() string {
	switch m {
	case ModeNotify:
		return "notify"
	case ModePoll:
		return "poll"
	default:
		return "off"
	}
}

// newNotifier is swapped in tests to simulate a missing notification
// subsystem.
var newNotifier = fsnotify.NewWatcher

type watched struct {
	polled  bool      // fsnotify could not take it
	modTime time.Time // last seen when polled
}

// Watcher reports debounced directory changes to a callback.
type Watcher struct {
	cfg      Config
	onChange func(dir string)
	fsw      *fsnotify.Watcher
	mode     Mode
	log      *zap.Logger

	mu       sync.Mutex
	watching map[string]*watched
	pending  map[string]time.Time // last event per directory

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New starts a watcher. It never fails: without fsnotify it falls back to
// polling, and without polling to doing nothing.
func New(cfg Config, onChange func(dir string)) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	w := &Watcher{
		cfg:      cfg,
		onChange: onChange,
		log:      logging.Named("watch"),
		watching: make(map[string]*watched),
		pending:  make(map[string]time.Time),
		done:     make(chan struct{}),
		mode:     ModeOff,
	}
	if !cfg.Enabled {
		return w
	}

	fsw, err := newNotifier()
	switch {
	case err == nil:
		w.fsw = fsw
		w.mode = ModeNotify
	case cfg.PollInterval > 0:
		w.log.Warn("file notifications unavailable, polling instead", zap.Error(err), zap.Duration("interval", cfg.PollInterval))
		w.mode = ModePoll
	default:
		w.log.Warn("file notifications unavailable, live updates off", zap.Error(err))
		return w
	}

	w.wg.Add(1)
	go w.run()
	return w
}

// Mode reports how changes are being detected.
func (w *Watcher) Mode() Mode { return w.mode }

func (w *Watcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Debounce)
	defer ticker.Stop()

	var pollC <-chan time.Time
	if w.cfg.PollInterval > 0 {
		poll := time.NewTicker(w.cfg.PollInterval)
		defer poll.Stop()
		pollC = poll.C
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.fsw != nil {
		events = w.fsw.Events
		errs = w.fsw.Errors
	}

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Chmod) {
				continue
			}
			// The event names the child that changed; the listing that changed
			// is its parent. A watched directory can also change itself.
			parent := filepath.Dir(ev.Name)
			w.mu.Lock()
			if _, ok := w.watching[parent]; ok {
				w.pending[parent] = time.Now()
				debug.Log(debug.WATCH, "%s on %s (parent %s)", ev.Op, ev.Name, parent)
			} else if _, ok := w.watching[ev.Name]; ok {
				w.pending[ev.Name] = time.Now()
				debug.Log(debug.WATCH, "%s on watched dir %s", ev.Op, ev.Name)
			}
			w.mu.Unlock()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// Overflow and friends: the watches are still there, keep going.
			w.log.Debug("fsnotify error", zap.Error(err))

		case <-pollC:
			w.poll()

		case <-ticker.C:
			w.flush()
		}
	}
}

// flush fires the callback for directories that have been quiet for the
// debounce window.
func (w *Watcher) flush() {
	now := time.Now()
	var ready []string
	w.mu.Lock()
	for dir, last := range w.pending {
		if now.Sub(last) >= w.cfg.Debounce {
			ready = append(ready, dir)
			delete(w.pending, dir)
		}
	}
	w.mu.Unlock()

	sort.Strings(ready)
	for _, dir := range ready {
		debug.Log(debug.WATCH, "change notification: %s", dir)
		metrics.RecordWatchRefresh()
		if w.onChange != nil {
			w.onChange(dir)
		}
	}
}

// poll checks the modtime of every polled directory.
func (w *Watcher) poll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir, wd := range w.watching {
		if !wd.polled {
			continue
		}
		info, err := os.Stat(dir)
		if err != nil {
			// Gone; report it so the index notices.
			if !wd.modTime.IsZero() {
				wd.modTime = time.Time{}
				w.pending[dir] = time.Now()
			}
			continue
		}
		if !info.ModTime().Equal(wd.modTime) {
			wd.modTime = info.ModTime()
			w.pending[dir] = time.Now()
		}
	}
}

// Watch starts watching path. Watching an already watched path is a no-op.
func (w *Watcher) Watch(path string) error {
	if w.mode == ModeOff {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.watching[path]; ok {
		return nil
	}
	if w.cfg.MaxWatches > 0 && len(w.watching) >= w.cfg.MaxWatches {
		return ErrLimit
	}

	wd := &watched{}
	if w.fsw != nil {
		if err := w.fsw.Add(path); err != nil {
			if w.cfg.PollInterval <= 0 {
				return err
			}
			debug.Log(debug.WATCH, "fsnotify refused %s (%v), polling it", path, err)
			wd.polled = true
		}
	} else {
		wd.polled = true
	}
	if wd.polled {
		if info, err := os.Stat(path); err == nil {
			wd.modTime = info.ModTime()
		}
	}

	w.watching[path] = wd
	metrics.SetWatchedDirs(len(w.watching))
	debug.Log(debug.WATCH, "now watching %s (polled=%v)", path, wd.polled)
	return nil
}

// Unwatch stops watching path.
func (w *Watcher) Unwatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wd, ok := w.watching[path]
	if !ok {
		return
	}
	if !wd.polled && w.fsw != nil {
		if err := w.fsw.Remove(path); err != nil {
			// Usually the directory is already gone.
			debug.Log(debug.WATCH, "unwatch %s: %v", path, err)
		}
	}
	delete(w.watching, path)
	delete(w.pending, path)
	metrics.SetWatchedDirs(len(w.watching))
}

// Watching returns the watched paths, sorted.
func (w *Watcher) Watching() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.watching))
	for p := range w.watching {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		if w.fsw != nil {
			err = w.fsw.Close()
		}
	})
	return err
}
