package search

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/justyntemme/strop/internal/debug"
)

// Tool is the program that answers contents: terms.
type Tool int

const (
	ToolBuiltin Tool = iota // read files in-process
	ToolRipgrep
	ToolUgrep
)

func (t Tool) String() string {
	switch t {
	case ToolRipgrep:
		return "ripgrep"
	case ToolUgrep:
		return "ugrep"
	default:
		return "builtin"
	}
}

// commands lists the executables to try for each tool.
var commands = map[Tool][]string{
	ToolRipgrep: {"rg"},
	ToolUgrep:   {"ug", "ugrep"},
}

var lookPath = exec.LookPath

// ParseTool accepts tool names and their command names. "auto" picks the
// first installed external tool.
func ParseTool(name string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "builtin", "go":
		return ToolBuiltin, nil
	case "ripgrep", "rg":
		return ToolRipgrep, nil
	case "ugrep", "ug":
		return ToolUgrep, nil
	case "auto":
		for _, t := range []Tool{ToolRipgrep, ToolUgrep} {
			if _, err := command(t); err == nil {
				return t, nil
			}
		}
		return ToolBuiltin, nil
	}
	return ToolBuiltin, fmt.Errorf("unknown search tool %q", name)
}

// Available reports whether t can run here.
func Available(t Tool) bool {
	if t == ToolBuiltin {
		return true
	}
	_, err := command(t)
	return err == nil
}

func command(t Tool) (string, error) {
	for _, name := range commands[t] {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s: %w", t, exec.ErrNotFound)
}

// Grep runs an external tool and returns the absolute paths of files below
// root containing pattern, ignoring case. depth 1 means root's own files.
func Grep(ctx context.Context, t Tool, pattern, root string, depth int) ([]string, error) {
	cmd, err := command(t)
	if err != nil {
		return nil, err
	}
	var args []string
	switch t {
	case ToolRipgrep:
		args = []string{"--files-with-matches", "--no-heading", "--ignore-case", "--fixed-strings", "--max-filesize", "10M"}
		if depth > 0 {
			args = append(args, "--max-depth", strconv.Itoa(depth))
		}
	case ToolUgrep:
		args = []string{"-l", "-i", "-F", "--ignore-binary", "-r"}
		if depth > 0 {
			args = append(args, "--max-depth="+strconv.Itoa(depth))
		}
	}
	args = append(args, "--", pattern, root)
	debug.Log(debug.SEARCH, "running %s %v", cmd, args)
	return run(ctx, cmd, args)
}

func run(ctx context.Context, name string, args []string) ([]string, error) {
	c := exec.CommandContext(ctx, name, args...)
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, err
	}

	var paths []string
	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if abs, err := filepath.Abs(line); err == nil {
			line = abs
		}
		paths = append(paths, line)
	}
	scanErr := sc.Err()

	err = c.Wait()
	var exit *exec.ExitError
	switch {
	case ctx.Err() != nil:
		return paths, ctx.Err()
	case errors.As(err, &exit) && exit.ExitCode() == 1:
		// grep-style tools exit 1 when nothing matched.
		return paths, scanErr
	case err != nil:
		return paths, fmt.Errorf("%s: %w", filepath.Base(name), err)
	}
	return paths, scanErr
}
