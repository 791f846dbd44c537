package search

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/fs"
)

const (
	// DefaultDepth is how deep Find goes without a depth: term.
	DefaultDepth = 8
	// maxContentSize skips larger files in contents searches.
	maxContentSize = 10 << 20
)

// skipRoots are top-level pseudo filesystems never worth walking.
var skipRoots = map[string]bool{
	"dev": true, "proc": true, "sys": true, "run": true,
	"snap": true, "boot": true, "lost+found": true,
}

// Options tune Find.
type Options struct {
	Depth  int  // used when the query has no depth: term; 0 means DefaultDepth
	Hidden bool // include hidden entries and descend into hidden directories
	Tool   Tool // external program for contents: terms, ToolBuiltin to read files
}

// Find walks root and calls fn for each matching entry. fn is never called
// concurrently. Unreadable directories are skipped. Returning an error from
// fn stops the walk and Find returns it.
func Find(ctx context.Context, root string, q Query, opts Options, fn func(fs.Entry) error) error {
	if q.Empty() {
		return nil
	}
	depth := q.Depth(opts.Depth)
	if depth <= 0 {
		depth = DefaultDepth
	}
	debug.Log(debug.SEARCH, "find %q under %s depth=%d tool=%s", q.Raw, root, depth, opts.Tool)

	contents := q.Contents()
	var prefiltered map[string]bool
	if len(contents) > 0 && opts.Tool != ToolBuiltin {
		paths, err := Grep(ctx, opts.Tool, contents[0], root, depth)
		switch {
		case err == nil:
			prefiltered = make(map[string]bool, len(paths))
			for _, p := range paths {
				prefiltered[p] = true
			}
			contents = contents[1:]
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			debug.Log(debug.SEARCH, "%s failed, reading files instead: %v", opts.Tool, err)
		}
	}

	var mu sync.Mutex
	var stop error
	conf := &fastwalk.Config{Follow: false}
	err := fastwalk.Walk(conf, root, func(path string, d iofs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			debug.Log(debug.SEARCH, "skipping %s: %v", path, err)
			return nil
		}
		if path == root {
			return nil
		}
		if skipRoot(path) || fastwalk.DirEntryDepth(d) > depth {
			return skip(d)
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		e := fs.EntryFromInfo(path, info)
		if e.Hidden && !opts.Hidden {
			return skip(d)
		}
		if !info.Mode().IsRegular() && e.Kind == fs.KindFile {
			return nil
		}
		if !q.MatchEntry(e) {
			return nil
		}
		if prefiltered != nil && !prefiltered[path] {
			return nil
		}
		for _, pat := range contents {
			if !fileContains(path, e.Size, pat) {
				return nil
			}
		}

		mu.Lock()
		defer mu.Unlock()
		if stop != nil {
			return fastwalk.SkipDir
		}
		if err := fn(e); err != nil {
			stop = err
			return err
		}
		return nil
	})
	if stop != nil {
		return stop
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func skip(d iofs.DirEntry) error {
	if d.IsDir() {
		return fastwalk.SkipDir
	}
	return nil
}

func skipRoot(path string) bool {
	if filepath.Separator != '/' || len(path) < 2 || path[0] != '/' {
		return false
	}
	first, _, _ := strings.Cut(path[1:], "/")
	return skipRoots[first] && !strings.Contains(path[1:], "/")
}

// fileContains reports whether the file holds pat, ignoring case. Binary
// files and files over maxContentSize never match.
func fileContains(path string, size int64, pat string) bool {
	if size > maxContentSize {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	data, err := io.ReadAll(bufio.NewReader(io.LimitReader(f, maxContentSize)))
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	if bytes.IndexByte(data[:min(len(data), 8000)], 0) >= 0 {
		return false
	}
	return bytes.Contains(bytes.ToLower(data), []byte(pat))
}
