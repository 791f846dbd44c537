//go:build windows

package shell

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

func openCommand(path string) (string, []string) {
	return "rundll32", []string{"url.dll,FileProtocolHandler", path}
}

// The properties sheet needs ShellExecuteEx with the "properties" verb,
// which cannot be reached through a helper program.
func propertiesCommand(string) (string, []string, bool) {
	return "", nil, false
}

func userDir(home, _ string, f Folder) string {
	return filepath.Join(home, f.String())
}

func listVolumes() []Volume {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		root := os.Getenv("SystemDrive")
		if root == "" {
			root = "C:"
		}
		return []Volume{{Name: root, Path: root + `\`}}
	}
	var vols []Volume
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		letter := string(rune('A'+i)) + ":"
		vols = append(vols, Volume{Name: letter, Path: letter + `\`})
	}
	return vols
}
