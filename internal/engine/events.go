package engine

import (
	"errors"

	"go.uber.org/zap"

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/index"
	"github.com/justyntemme/strop/internal/ops"
	"github.com/justyntemme/strop/internal/watch"
)

// route reacts to component events and forwards them to the front end in
// the order they were emitted.
func (e *Engine) route() {
	defer close(e.routerDone)
	for ev := range e.in.C() {
		switch ev := ev.(type) {
		case index.TreeUpdated:
			e.treeUpdated(ev)
			ev.Entries = e.visible(ev.Entries)
			e.out.Emit(ev)
		case ops.Completed:
			e.completed(ev.Task)
			e.out.Emit(ev)
		default:
			e.out.Emit(ev)
		}
	}
}

// treeUpdated keeps the watch set equal to the loaded nodes.
func (e *Engine) treeUpdated(ev index.TreeUpdated) {
	switch {
	case ev.Err == nil && ev.Loaded:
		if err := e.watcher.Watch(ev.Path); err != nil {
			if errors.Is(err, watch.ErrLimit) {
				debug.Log(debug.WATCH, "not watching %s: %v", ev.Path, err)
			} else {
				e.log.Debug("watch failed", zap.String("path", ev.Path), zap.Error(err))
			}
		}
	case errors.Is(ev.Err, fs.ErrNotFound):
		e.watcher.Unwatch(ev.Path)
	}
}

// completed refreshes what a finished operation changed and forgets what it
// removed. The session side runs on the request loop before the event goes
// out.
func (e *Engine) completed(t ops.Task) {
	removed := t.Removed()
	for _, p := range removed {
		for _, dropped := range e.idx.Forget(p) {
			e.watcher.Unwatch(dropped)
		}
	}
	for _, dir := range t.AffectedDirs() {
		if _, ok := e.idx.Peek(dir); ok {
			e.idx.Refresh(dir)
		}
	}
	e.internal(Request{Action: actionSettleOperation, finished: t})

	e.log.Info("operation finished",
		zap.String("task", t.ID),
		zap.Stringer("kind", t.Kind),
		zap.Stringer("status", t.Status),
		zap.Int("items", len(t.Items)))
}

// internal runs req on the request loop and waits for it. It gives up once
// the loop has stopped.
func (e *Engine) internal(req Request) {
	req.reply = make(chan Result, 1)
	select {
	case e.requests <- req:
	case <-e.done:
		return
	}
	select {
	case <-req.reply:
	case <-e.loopDone:
	}
}

// settle drops removed paths from the session and clears the clipboard
// after a cut was pasted successfully.
func (e *Engine) settle(t ops.Task) {
	e.sess.Drop(t.Removed()...)
	if e.cuts[t.ID] {
		delete(e.cuts, t.ID)
		if t.Status == ops.Succeeded {
			e.sess.ClearClipboard()
		}
	}
}
