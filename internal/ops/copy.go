package ops

import (
	"io"
	iofs "io/fs"
	"path/filepath"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/metrics"
)

// tempPattern names the hidden file a copy is written to before it is
// renamed into place.
const tempPattern = ".strop-*.part"

// measure sums the sizes of the regular files under path without following
// symlinks. Unreadable parts count as zero.
func measure(path string) int64 {
	var total atomic.Int64
	conf := &fastwalk.Config{Follow: false}
	fastwalk.Walk(conf, path, func(_ string, d iofs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total.Add(info.Size())
		}
		return nil
	})
	return total.Load()
}

// copyTree copies entry to dst. A directory is copied recursively; a child
// that fails is recorded and its siblings still copy. The returned error is
// set when nothing useful was copied or the task was cancelled.
func (q *Queue) copyTree(t *task, i int, entry fs.Entry, dst string) ([]Failure, error) {
	if err := t.checkpoint(); err != nil {
		return nil, err
	}

	switch entry.Kind {
	case fs.KindSymlink:
		link, err := q.fsys.Readlink(entry.Path)
		if err != nil {
			return nil, fs.Categorize("readlink", entry.Path, err)
		}
		if err := q.fsys.Symlink(link, dst); err != nil {
			return nil, fs.Categorize("symlink", dst, err)
		}
		return nil, nil

	case fs.KindFile:
		return nil, q.copyFile(t, i, entry, dst)
	}

	if err := q.fsys.Mkdir(dst, fs.DirPermission); err != nil {
		return nil, fs.Categorize("mkdir", dst, err)
	}
	children, err := q.fsys.ReadDir(entry.Path)
	if err != nil {
		return nil, fs.Categorize("readdir", entry.Path, err)
	}

	var failures []Failure
	for _, d := range children {
		childPath := filepath.Join(entry.Path, d.Name())
		child, err := fs.Stat(q.fsys, childPath)
		if err != nil {
			failures = append(failures, failure(childPath, err))
			continue
		}
		nested, err := q.copyTree(t, i, child, filepath.Join(dst, d.Name()))
		failures = append(failures, nested...)
		if err != nil {
			if fs.CodeOf(err) == fs.CodeCancelled {
				return failures, err
			}
			failures = append(failures, failure(childPath, err))
		}
	}

	// Permissions last, so a read-only source directory can still be filled.
	if err := q.fsys.Chmod(dst, entry.Perm); err != nil {
		failures = append(failures, failure(dst, err))
	}
	if !entry.ModTime.IsZero() {
		if err := q.fsys.Chtimes(dst, entry.ModTime, entry.ModTime); err != nil {
			failures = append(failures, failure(dst, err))
		}
	}
	return failures, nil
}

func failure(path string, err error) Failure {
	err = fs.Categorize("copy", path, err)
	return Failure{Path: path, Code: fs.CodeOf(err), Err: err}
}

// copyFile streams entry into a temp file beside dst and renames it over dst.
// The temp file never outlives a failed or cancelled copy.
func (q *Queue) copyFile(t *task, i int, entry fs.Entry, dst string) (err error) {
	in, err := q.fsys.Open(entry.Path)
	if err != nil {
		return fs.Categorize("open", entry.Path, err)
	}
	defer in.Close()

	tmp, err := q.fsys.CreateTemp(filepath.Dir(dst), tempPattern)
	if err != nil {
		return fs.Categorize("create", dst, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			q.fsys.Remove(tmpName)
		}
	}()

	r := &checkpointReader{r: in, t: t}
	w := &progressWriter{
		w: tmp,
		onWrite: func(n int64) {
			t.item(i, func(it *Item) { it.BytesDone += n })
			metrics.AddBytesCopied(n)
			debug.Log(debug.OPS_CHUNK, "%s: +%d bytes", entry.Name, n)
			q.emitProgress(t, i, false)
		},
	}
	buf := make([]byte, q.cfg.ChunkSize)
	if _, err = io.CopyBuffer(w, r, buf); err != nil {
		return fs.Categorize("copy", entry.Path, err)
	}
	if err = tmp.Close(); err != nil {
		return fs.Categorize("close", tmpName, err)
	}
	if err = q.fsys.Chmod(tmpName, entry.Perm); err != nil {
		return fs.Categorize("chmod", tmpName, err)
	}
	if !entry.ModTime.IsZero() {
		if err = q.fsys.Chtimes(tmpName, entry.ModTime, entry.ModTime); err != nil {
			return fs.Categorize("chtimes", tmpName, err)
		}
	}
	if err = q.fsys.Rename(tmpName, dst); err != nil {
		return fs.Categorize("rename", dst, err)
	}
	return nil
}

// removeTree deletes path, children before their parent. A directory whose
// children could not all be removed is left in place. removed reports
// whether anything was deleted.
func (q *Queue) removeTree(t *task, path string) (removed bool, failures []Failure) {
	return q.remove(t.checkpoint, path)
}

// discard removes what a cancelled copy left at dst. It ignores the task's
// cancellation.
func (q *Queue) discard(dst string) {
	removed, failures := q.remove(func() error { return nil }, dst)
	debug.Log(debug.OPS, "discarded partial copy %q (removed=%t)", dst, removed)
	if len(failures) > 0 {
		q.log.Warn("partial copy left behind",
			zap.String("path", dst),
			zap.Int("failures", len(failures)),
			zap.Error(failures[0].Err))
	}
}

func (q *Queue) remove(check func() error, path string) (removed bool, failures []Failure) {
	if err := check(); err != nil {
		return false, []Failure{failure(path, err)}
	}
	info, err := q.fsys.Lstat(path)
	if err != nil {
		return false, []Failure{failure(path, err)}
	}

	if info.IsDir() {
		children, err := q.fsys.ReadDir(path)
		if err != nil {
			return false, []Failure{failure(path, err)}
		}
		for _, d := range children {
			r, f := q.remove(check, filepath.Join(path, d.Name()))
			removed = removed || r
			failures = append(failures, f...)
		}
		if len(failures) > 0 {
			return removed, failures
		}
	}

	if err := q.fsys.Remove(path); err != nil {
		return removed, append(failures, failure(path, err))
	}
	debug.Log(debug.OPS, "removed %q", path)
	return true, failures
}

// checkpointReader stops a copy between chunks when the task is paused or
// cancelled.
type checkpointReader struct {
	r io.Reader
	t *task
}

func (cr *checkpointReader) Read(p []byte) (int, error) {
	if err := cr.t.checkpoint(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// progressWriter wraps an io.Writer and calls onWrite after each write
type progressWriter struct {
	w       io.Writer
	onWrite func(int64)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	if n > 0 && pw.onWrite != nil {
		pw.onWrite(int64(n))
	}
	return n, err
}
