package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/ops"
	"github.com/justyntemme/strop/internal/session"
	"github.com/justyntemme/strop/internal/shell"
)

const (
	settingLastPath   = "session.lastPath"
	settingShowHidden = "show_hidden"
)

func (e *Engine) dispatch(req Request) Result {
	debug.Log(debug.ENGINE, "request %s path=%q task=%q", req.Action, req.Path, req.TaskID)

	switch req.Action {
	case ActionNavigate:
		return e.navigate(req.Path)
	case ActionBack:
		entry, ok := e.sess.Back()
		if !ok {
			return Result{Err: ErrNoHistory}
		}
		return e.show(entry.Path)
	case ActionForward:
		entry, ok := e.sess.Forward()
		if !ok {
			return Result{Err: ErrNoHistory}
		}
		return e.show(entry.Path)
	case ActionUp:
		cur := e.sess.Current()
		if cur == "" || fs.Parent(cur) == cur {
			return Result{Err: ErrNoHistory}
		}
		return e.navigate(fs.Parent(cur))
	case ActionRefresh:
		path, err := e.pathOrCurrent(req.Path)
		if err != nil {
			return Result{Err: err}
		}
		e.idx.Refresh(path)
		n, _ := e.idx.Peek(path)
		n.Entries = e.visible(n.Entries)
		return Result{Node: n}

	case ActionStartOperation:
		id, err := e.startOperation(req.Operation)
		return Result{TaskID: id, Err: err}
	case ActionResolveConflict:
		return Result{Err: e.queue.ResolveConflict(req.TaskID, req.Source, req.Decision, req.ApplyToAll)}
	case ActionCancelOperation:
		return Result{Err: e.queue.Cancel(req.TaskID)}
	case ActionPauseOperation:
		return Result{Err: e.queue.Pause(req.TaskID)}
	case ActionResumeOperation:
		return Result{Err: e.queue.Resume(req.TaskID)}
	case ActionAcknowledgeOperation:
		return Result{Err: e.queue.Acknowledge(req.TaskID)}

	case ActionSelect:
		return Result{Err: e.sess.Select(req.Paths...)}
	case ActionDeselect:
		e.sess.Deselect(req.Paths...)
		return Result{}
	case ActionClearSelection:
		e.sess.Clear()
		return Result{}
	case ActionPin:
		return Result{Err: e.sess.Pin(req.Paths...)}
	case ActionSelectMatching:
		return e.selectMatching(req.Name)
	case ActionCopyToClipboard:
		e.sess.Copy(e.pathsOrSelection(req.Paths)...)
		return Result{}
	case ActionCutToClipboard:
		e.sess.Cut(e.pathsOrSelection(req.Paths)...)
		return Result{}
	case ActionPaste:
		return e.paste(req.Path)

	case ActionAddBookmark, ActionRemoveBookmark:
		return Result{Err: e.bookmark(req)}
	case ActionOpen:
		path, err := e.pathOrCurrent(req.Path)
		if err != nil {
			return Result{Err: err}
		}
		return Result{Err: e.shell.Open(path)}
	case ActionShowProperties:
		return e.properties(req.Path)
	case ActionSetShowHidden:
		e.showHidden.Store(req.Show)
		e.saveSetting(settingShowHidden, strconv.FormatBool(req.Show))
		return Result{}
	case ActionSetScroll:
		e.sess.SetScroll(req.Scroll)
		return Result{}
	case actionSettleOperation:
		e.settle(req.finished)
		return Result{}
	}
	return Result{Err: fmt.Errorf("unknown action %d", int(req.Action))}
}

// clean resolves ~, relative paths against the current directory, and
// normalizes the result.
func (e *Engine) clean(p string) (string, error) {
	if home, err := e.shell.SpecialFolder(shell.Home); err == nil {
		p = fs.ExpandHome(p, home)
	}
	if p != "" && !filepath.IsAbs(filepath.FromSlash(p)) {
		if cur := e.sess.Current(); cur != "" {
			p = filepath.Join(cur, p)
		}
	}
	return fs.Clean(p)
}

func (e *Engine) pathOrCurrent(p string) (string, error) {
	if p == "" {
		if cur := e.sess.Current(); cur != "" {
			return cur, nil
		}
	}
	return e.clean(p)
}

func (e *Engine) pathsOrSelection(paths []string) []string {
	if len(paths) == 0 {
		return e.sess.Selected()
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if c, err := e.clean(p); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// navigate records path in the history and returns its node, scanning it
// in the background when it is not loaded.
func (e *Engine) navigate(p string) Result {
	path, err := e.clean(p)
	if err != nil {
		return Result{Err: err}
	}
	e.sess.Navigate(path)
	if e.store != nil {
		ctx := context.Background()
		if err := e.store.TouchRecent(ctx, path); err != nil {
			e.log.Debug("recording recent path failed", zap.Error(err))
		}
		e.saveSetting(settingLastPath, path)
	}
	return e.show(path)
}

// show returns the node for path, possibly stale, requesting a scan when
// it is not loaded.
func (e *Engine) show(path string) Result {
	n := e.idx.GetNode(path)
	n.Entries = e.visible(n.Entries)
	return Result{Node: n}
}

// visible drops hidden entries unless they are shown.
func (e *Engine) visible(entries []fs.Entry) []fs.Entry {
	if e.showHidden.Load() || entries == nil {
		return entries
	}
	out := make([]fs.Entry, 0, len(entries))
	for _, en := range entries {
		if !en.Hidden {
			out = append(out, en)
		}
	}
	return out
}

func (e *Engine) saveSetting(key, value string) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveSetting(context.Background(), key, value); err != nil {
		e.log.Debug("saving setting failed", zap.String("key", key), zap.Error(err))
	}
}

// startOperation fills in the selection and the current directory where the
// request leaves them out.
func (e *Engine) startOperation(req ops.Request) (string, error) {
	if len(req.Sources) == 0 {
		req.Sources = e.sess.Selected()
	} else {
		req.Sources = e.pathsOrSelection(req.Sources)
	}
	switch req.Kind {
	case ops.Copy, ops.Move, ops.CreateFolder:
		dst, err := e.pathOrCurrent(req.Destination)
		if err != nil {
			return "", fmt.Errorf("%w: destination: %v", ops.ErrInvalidRequest, err)
		}
		req.Destination = dst
	}
	id, err := e.queue.Submit(req)
	if err != nil {
		return "", err
	}
	e.log.Info("operation started",
		zap.String("task", id),
		zap.Stringer("kind", req.Kind),
		zap.Int("sources", len(req.Sources)),
		zap.String("destination", req.Destination))
	return id, nil
}

// paste copies or moves the clipboard into dir (default: current).
func (e *Engine) paste(dir string) Result {
	clip := e.sess.Clipboard()
	if clip.Mode == session.ClipNone || len(clip.Paths) == 0 {
		return Result{Err: ErrEmptyClipboard}
	}
	kind := ops.Copy
	if clip.Mode == session.ClipCut {
		kind = ops.Move
	}
	id, err := e.startOperation(ops.Request{
		Kind:        kind,
		Sources:     clip.Paths,
		Destination: dir,
		Policy:      e.cfg.Operations.Policy(),
	})
	if err != nil {
		return Result{Err: err}
	}
	if kind == ops.Move {
		e.cuts[id] = true
	}
	return Result{TaskID: id}
}

func (e *Engine) selectMatching(pattern string) Result {
	cur := e.sess.Current()
	n, ok := e.idx.Peek(cur)
	if !ok {
		return Result{}
	}
	entries := e.visible(n.Entries)
	names := make([]string, len(entries))
	for i, en := range entries {
		names[i] = en.Name
	}
	matched, err := e.sess.SelectMatching(pattern, names)
	return Result{Matched: matched, Err: err}
}

func (e *Engine) bookmark(req Request) error {
	if e.store == nil {
		return ErrNoStore
	}
	path, err := e.pathOrCurrent(req.Path)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if req.Action == ActionAddBookmark {
		return e.store.AddBookmark(ctx, path, req.Name)
	}
	return e.store.RemoveBookmark(ctx, path)
}

// properties asks the desktop for its dialog and falls back to describing
// the path ourselves.
func (e *Engine) properties(p string) Result {
	path, err := e.pathOrCurrent(p)
	if err != nil {
		return Result{Err: err}
	}
	err = e.shell.ShowProperties(path)
	if err == nil {
		return Result{}
	}
	if !errors.Is(err, shell.ErrUnsupported) {
		e.log.Debug("native properties failed, describing instead", zap.Error(err))
	}
	props, derr := shell.Describe(e.fsys, path)
	if derr != nil {
		return Result{Err: derr}
	}
	return Result{Properties: &props}
}
