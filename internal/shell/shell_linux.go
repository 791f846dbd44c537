//go:build linux

package shell

import (
	"bufio"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

func openCommand(path string) (string, []string) {
	return "xdg-open", []string{path}
}

// propertiesCommand calls the freedesktop FileManager1 interface, which
// Nautilus, Dolphin, Nemo and friends implement.
func propertiesCommand(path string) (string, []string, bool) {
	uri := (&url.URL{Scheme: "file", Path: path}).String()
	return "dbus-send", []string{
		"--session",
		"--dest=org.freedesktop.FileManager1",
		"--type=method_call",
		"/org/freedesktop/FileManager1",
		"org.freedesktop.FileManager1.ShowItemProperties",
		"array:string:" + uri,
		"string:",
	}, true
}

var xdgKeys = map[Folder]string{
	Desktop:   "XDG_DESKTOP_DIR",
	Documents: "XDG_DOCUMENTS_DIR",
	Downloads: "XDG_DOWNLOAD_DIR",
	Music:     "XDG_MUSIC_DIR",
	Pictures:  "XDG_PICTURES_DIR",
	Videos:    "XDG_VIDEOS_DIR",
}

// userDir reads user-dirs.dirs, falling back to ~/<Folder>.
func userDir(home, configDir string, f Folder) string {
	fallback := filepath.Join(home, f.String())
	if configDir == "" {
		return fallback
	}
	file, err := os.Open(filepath.Join(configDir, "user-dirs.dirs"))
	if err != nil {
		return fallback
	}
	defer file.Close()
	if dir, ok := parseUserDirs(file, home)[f]; ok {
		return dir
	}
	return fallback
}

// parseUserDirs reads lines such as XDG_DOWNLOAD_DIR="$HOME/Downloads".
func parseUserDirs(r io.Reader, home string) map[Folder]string {
	out := make(map[Folder]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		value = strings.Replace(value, "$HOME", home, 1)
		if !filepath.IsAbs(value) {
			continue
		}
		for f, k := range xdgKeys {
			if k == key {
				out[f] = filepath.Clean(value)
			}
		}
	}
	return out
}

func listVolumes() []Volume {
	file, err := os.Open("/proc/mounts")
	if err != nil {
		return []Volume{{Name: "/ (Root)", Path: "/"}}
	}
	defer file.Close()
	return parseMounts(file)
}

var virtualFS = map[string]bool{
	"tmpfs": true, "devtmpfs": true, "cgroup": true, "cgroup2": true,
	"proc": true, "sysfs": true, "overlay": true, "squashfs": true,
}

// parseMounts turns /proc/mounts into user-facing volumes.
func parseMounts(r io.Reader) []Volume {
	vols := []Volume{{Name: "/ (Root)", Path: "/"}}
	seen := map[string]bool{"/": true}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		mount, fsType := unescapeMount(fields[1]), fields[2]
		if virtualFS[fsType] || seen[mount] {
			continue
		}
		if strings.HasPrefix(mount, "/sys") || strings.HasPrefix(mount, "/proc") ||
			strings.HasPrefix(mount, "/dev") || strings.HasPrefix(mount, "/run") ||
			strings.HasPrefix(mount, "/snap") || strings.HasPrefix(mount, "/boot") {
			// /run/media holds removable drives on most desktops.
			if !strings.HasPrefix(mount, "/run/media/") {
				continue
			}
		}

		name := mount
		switch {
		case strings.HasPrefix(mount, "/media/"), strings.HasPrefix(mount, "/mnt/"), strings.HasPrefix(mount, "/run/media/"):
			name = filepath.Base(mount)
		case mount == "/home":
			name = "Home"
		}
		seen[mount] = true
		vols = append(vols, Volume{Name: name, Path: mount})
	}
	return vols
}

// unescapeMount undoes the octal escapes /proc/mounts uses for spaces and
// tabs.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(s)
}
