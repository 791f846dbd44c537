//go:build linux

package shell

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowProperties_UsesFileManager1(t *testing.T) {
	var calls []call
	s := New(WithRunner(recorder(&calls, nil)))
	require.NoError(t, s.ShowProperties("/home/me/a b.txt"))
	require.Len(t, calls, 1)
	assert.Equal(t, "dbus-send", calls[0].name)
	assert.Contains(t, calls[0].args, "org.freedesktop.FileManager1.ShowItemProperties")
	assert.Contains(t, calls[0].args, "array:string:file:///home/me/a%20b.txt")
}

func TestUserDirs(t *testing.T) {
	home, cfg := t.TempDir(), t.TempDir()
	dirs := `# written by xdg-user-dirs-update
XDG_DESKTOP_DIR="$HOME/Schreibtisch"
XDG_DOWNLOAD_DIR="/data/dl"
XDG_MUSIC_DIR="relative/ignored"
`
	require.NoError(t, os.WriteFile(filepath.Join(cfg, "user-dirs.dirs"), []byte(dirs), 0o644))

	s := New(WithHome(home), WithConfigDir(cfg))
	got, err := s.SpecialFolder(Desktop)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Schreibtisch"), got)

	got, _ = s.SpecialFolder(Downloads)
	assert.Equal(t, "/data/dl", got)

	got, _ = s.SpecialFolder(Music)
	assert.Equal(t, filepath.Join(home, "Music"), got)
}

func TestParseMounts(t *testing.T) {
	mounts := `sysfs /sys sysfs rw 0 0
proc /proc proc rw 0 0
/dev/nvme0n1p2 / ext4 rw 0 0
/dev/nvme0n1p3 /home ext4 rw 0 0
tmpfs /tmp tmpfs rw 0 0
/dev/sdb1 /media/me/USB\040Stick vfat rw 0 0
/dev/sdc1 /run/media/me/Backup ext4 rw 0 0
/dev/sdd1 /mnt/archive xfs rw 0 0
/dev/nvme0n1p1 /boot/efi vfat rw 0 0
`
	vols := parseMounts(strings.NewReader(mounts))
	assert.Equal(t, []Volume{
		{Name: "/ (Root)", Path: "/"},
		{Name: "Home", Path: "/home"},
		{Name: "USB Stick", Path: "/media/me/USB Stick"},
		{Name: "Backup", Path: "/run/media/me/Backup"},
		{Name: "archive", Path: "/mnt/archive"},
	}, vols)
}
