// Package shell hands paths to the desktop: opening files, showing native
// property dialogs, locating well-known folders and listing volumes.
//
// Each platform fills in the same small set of hooks, so callers never
// branch on GOOS.
package shell

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/fs"
)

// ErrUnsupported is returned when the platform has no way to do something.
var ErrUnsupported = errors.New("not supported on this platform")

// Folder names a well-known user directory.
type Folder int

const (
	Home Folder = iota
	Desktop
	Documents
	Downloads
	Music
	Pictures
	Videos
)

func (f Folder) String() string {
	switch f {
	case Home:
		return "Home"
	case Desktop:
		return "Desktop"
	case Documents:
		return "Documents"
	case Downloads:
		return "Downloads"
	case Music:
		return "Music"
	case Pictures:
		return "Pictures"
	case Videos:
		return "Videos"
	default:
		return fmt.Sprintf("Folder(%d)", int(f))
	}
}

// ParseFolder accepts the names printed by Folder.String, any case.
func ParseFolder(s string) (Folder, error) {
	for f := Home; f <= Videos; f++ {
		if strings.EqualFold(f.String(), s) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown folder %q", s)
}

// Volume is a mounted drive.
type Volume struct {
	Name string
	Path string
}

// Shell is what the engine needs from the desktop.
type Shell interface {
	Open(path string) error
	ShowProperties(path string) error
	SpecialFolder(f Folder) (string, error)
	Volumes() []Volume
}

// Runner launches a detached helper program.
type Runner func(name string, args ...string) error

// Start runs the command without waiting for it to finish.
func Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// System is the Shell for the running platform.
type System struct {
	run       Runner
	home      string
	configDir string
}

var _ Shell = (*System)(nil)

// Option configures a System.
type Option func(*System)

// WithRunner replaces the program launcher; tests record commands with it.
func WithRunner(r Runner) Option { return func(s *System) { s.run = r } }

// WithHome overrides the home directory.
func WithHome(home string) Option { return func(s *System) { s.home = home } }

// WithConfigDir overrides where per-user desktop settings are read from.
func WithConfigDir(dir string) Option { return func(s *System) { s.configDir = dir } }

// New returns the platform shell.
func New(opts ...Option) *System {
	s := &System{run: Start}
	if home, err := os.UserHomeDir(); err == nil {
		s.home = home
	}
	if dir, err := os.UserConfigDir(); err == nil {
		s.configDir = dir
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open launches the default application for path.
func (s *System) Open(path string) error {
	name, args := openCommand(path)
	debug.Log(debug.SHELL, "open %s: %s %v", path, name, args)
	if err := s.run(name, args...); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	return nil
}

// ShowProperties asks the desktop to show its properties dialog for path.
func (s *System) ShowProperties(path string) error {
	name, args, ok := propertiesCommand(path)
	if !ok {
		return fmt.Errorf("properties %s: %w", path, ErrUnsupported)
	}
	debug.Log(debug.SHELL, "properties %s: %s %v", path, name, args)
	if err := s.run(name, args...); err != nil {
		return fmt.Errorf("properties %s: %w", path, err)
	}
	return nil
}

// SpecialFolder returns the location of a well-known folder.
func (s *System) SpecialFolder(f Folder) (string, error) {
	if s.home == "" {
		return "", errors.New("home directory unknown")
	}
	if f == Home {
		return s.home, nil
	}
	if f < Home || f > Videos {
		return "", fmt.Errorf("special folder %d: %w", int(f), ErrUnsupported)
	}
	return userDir(s.home, s.configDir, f), nil
}

// Volumes lists mounted drives, the system root first.
func (s *System) Volumes() []Volume {
	return listVolumes()
}

// Properties is the engine-side description of a path, for front ends
// without a native properties dialog.
type Properties struct {
	fs.Entry
	MIME     string
	Size     string // human readable, empty for directories
	Modified string // relative, e.g. "3 hours ago"
	Children int    // directories only
	Target   string // symlinks only
}

// Describe gathers Properties for path.
func Describe(fsys fs.FileSystem, path string) (Properties, error) {
	e, err := fs.Stat(fsys, path)
	if err != nil {
		return Properties{}, err
	}
	p := Properties{Entry: e}
	if !e.ModTime.IsZero() {
		p.Modified = humanize.RelTime(e.ModTime, time.Now(), "ago", "from now")
	}

	switch e.Kind {
	case fs.KindDirectory:
		p.MIME = "inode/directory"
		names, err := fs.List(fsys, path)
		if err == nil {
			p.Children = len(names)
		}
	case fs.KindSymlink:
		p.MIME = "inode/symlink"
		p.Target, _ = fsys.Readlink(path)
	default:
		p.Size = humanize.IBytes(uint64(e.Size))
		if m, err := mimetype.DetectFile(path); err == nil {
			p.MIME = m.String()
		} else {
			p.MIME = "application/octet-stream"
		}
	}
	return p, nil
}
