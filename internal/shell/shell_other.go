//go:build !linux && !darwin && !windows

package shell

import "path/filepath"

func openCommand(path string) (string, []string) {
	return "xdg-open", []string{path}
}

func propertiesCommand(string) (string, []string, bool) {
	return "", nil, false
}

func userDir(home, _ string, f Folder) string {
	return filepath.Join(home, f.String())
}

func listVolumes() []Volume {
	return []Volume{{Name: "/", Path: "/"}}
}
