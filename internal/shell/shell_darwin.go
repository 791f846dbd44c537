//go:build darwin

package shell

import (
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/charlievieth/fastwalk"
)

func openCommand(path string) (string, []string) {
	return "open", []string{path}
}

func propertiesCommand(path string) (string, []string, bool) {
	script := `tell application "Finder"
	activate
	open information window of (POSIX file ` + strconv.Quote(path) + ` as alias)
end tell`
	return "osascript", []string{"-e", script}, true
}

func userDir(home, _ string, f Folder) string {
	if f == Videos {
		return filepath.Join(home, "Movies")
	}
	return filepath.Join(home, f.String())
}

func listVolumes() []Volume {
	var (
		mu   sync.Mutex
		root Volume
		vols []Volume
	)
	conf := &fastwalk.Config{Follow: false}
	err := fastwalk.Walk(conf, "/Volumes", func(path string, d iofs.DirEntry, err error) error {
		if err != nil || path == "/Volumes" {
			return nil
		}
		if filepath.Dir(path) != "/Volumes" {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		// The boot volume shows up as a symlink to /.
		if target, err := os.Readlink(path); err == nil && target == "/" {
			mu.Lock()
			root = Volume{Name: d.Name(), Path: "/"}
			mu.Unlock()
			return nil
		}
		if _, err := os.Stat(path); err != nil {
			return fastwalk.SkipDir
		}
		mu.Lock()
		vols = append(vols, Volume{Name: d.Name(), Path: path})
		mu.Unlock()
		return fastwalk.SkipDir
	})
	if root.Path == "" {
		root = Volume{Name: "Macintosh HD", Path: "/"}
	}
	if err != nil {
		return []Volume{root}
	}
	sort.Slice(vols, func(i, j int) bool { return vols[i].Name < vols[j].Name })
	return append([]Volume{root}, vols...)
}
