package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/strop/internal/fs"
)

func tree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"notes.txt":               "Remember the MILK",
		"a/todo.txt":              "nothing here",
		"a/b/deep.txt":            "milk again",
		"a/b/c/deeper.go":         "package milk",
		".hidden/secret.txt":      "milk",
		"bin/blob.dat":            "milk\x00\x01",
		"a/report.final.pdf":      "",
		"a/b/Report-draft.pdf":    "",
		"a/b/c/d/report-old.pdf":  "",
		"a/b/c/d/e/report-x.pdf":  "",
		"a/b/c/d/e/f/report-y.md": "",
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func find(t *testing.T, root, query string, opts Options) []string {
	t.Helper()
	q, err := Parse(query)
	require.NoError(t, err)
	var got []string
	err = Find(context.Background(), root, q, opts, func(e fs.Entry) error {
		rel, err := filepath.Rel(root, e.Path)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(got)
	return got
}

func TestFind_NamesAndDepth(t *testing.T) {
	root := tree(t)

	assert.Equal(t, []string{
		"a/b/Report-draft.pdf",
		"a/b/c/d/e/report-x.pdf",
		"a/b/c/d/report-old.pdf",
		"a/report.final.pdf",
	}, find(t, root, "report ext:pdf", Options{}))

	assert.Equal(t, []string{"a/b/Report-draft.pdf", "a/report.final.pdf"},
		find(t, root, "report ext:pdf depth:3", Options{}))

	assert.Equal(t, []string{"a/report.final.pdf"}, find(t, root, "report*.pdf", Options{Depth: 2}))
}

func TestFind_Hidden(t *testing.T) {
	root := tree(t)
	assert.NotContains(t, find(t, root, "secret", Options{}), ".hidden/secret.txt")
	assert.Contains(t, find(t, root, "secret", Options{Hidden: true}), ".hidden/secret.txt")
}

func TestFind_Contents(t *testing.T) {
	root := tree(t)
	assert.Equal(t, []string{"a/b/c/deeper.go", "a/b/deep.txt", "notes.txt"},
		find(t, root, "contents:milk", Options{}))
	assert.Equal(t, []string{"a/b/deep.txt", "notes.txt"},
		find(t, root, "contents:milk ext:txt", Options{}))
}

func TestFind_ExternalTool(t *testing.T) {
	if !Available(ToolRipgrep) {
		t.Skip("ripgrep not installed")
	}
	root := tree(t)
	assert.Equal(t, []string{"a/b/c/deeper.go", "a/b/deep.txt", "notes.txt"},
		find(t, root, "contents:milk", Options{Tool: ToolRipgrep}))
}

func TestFind_StopsOnCallbackError(t *testing.T) {
	root := tree(t)
	q, err := Parse("txt")
	require.NoError(t, err)

	boom := errors.New("enough")
	calls := 0
	err = Find(context.Background(), root, q, Options{}, func(fs.Entry) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestFind_Cancelled(t *testing.T) {
	root := tree(t)
	q, err := Parse("txt")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Find(ctx, root, q, Options{}, func(fs.Entry) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseTool(t *testing.T) {
	defer func(orig func(string) (string, error)) { lookPath = orig }(lookPath)
	lookPath = func(name string) (string, error) {
		if name == "ugrep" {
			return "/usr/bin/ugrep", nil
		}
		return "", os.ErrNotExist
	}

	tool, err := ParseTool("rg")
	require.NoError(t, err)
	assert.Equal(t, ToolRipgrep, tool)
	assert.False(t, Available(ToolRipgrep))
	assert.True(t, Available(ToolUgrep))

	tool, err = ParseTool("auto")
	require.NoError(t, err)
	assert.Equal(t, ToolUgrep, tool)

	_, err = ParseTool("ack")
	assert.Error(t, err)
}
