//go:build windows

package trash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Windows hands trashing to the shell (SHFileOperationW with FOF_ALLOWUNDO).
// Listing and restoring read the per-user $Recycle.Bin\<SID> folders:
//
//	$R<id>.<ext>   the trashed entry
//	$I<id>.<ext>   header, size, FILETIME deletion date, UTF-16 original path

// recycleRoot marks the Bin as the system Recycle Bin, which has no single
// directory.
const recycleRoot = "shell:RecycleBinFolder"

var (
	shell32                = windows.NewLazySystemDLL("shell32.dll")
	procSHFileOperationW   = shell32.NewProc("SHFileOperationW")
	procSHEmptyRecycleBinW = shell32.NewProc("SHEmptyRecycleBinW")
)

const (
	foDelete          = 0x0003
	fofSilent         = 0x0004
	fofNoConfirmation = 0x0010
	fofAllowUndo      = 0x0040
	fofNoErrorUI      = 0x0400

	sherbNoConfirmation = 0x1
	sherbNoProgressUI   = 0x2
	sherbNoSound        = 0x4

	// FILETIME ticks between 1601-01-01 and the Unix epoch.
	filetimeEpoch = 116444736000000000
)

type shFileOpStruct struct {
	hwnd                  uintptr
	wFunc                 uint32
	pFrom                 *uint16
	pTo                   *uint16
	fFlags                uint16
	fAnyOperationsAborted int32
	hNameMappings         uintptr
	lpszProgressTitle     *uint16
}

func defaultRoot() string { return recycleRoot }

func (b *Bin) put(path string) (Item, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Item{}, err
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return Item{}, err
	}

	// pFrom is a list terminated by an extra NUL.
	from, err := windows.UTF16PtrFromString(abs + "\x00")
	if err != nil {
		return Item{}, err
	}
	op := shFileOpStruct{
		wFunc:  foDelete,
		pFrom:  from,
		fFlags: fofAllowUndo | fofNoConfirmation | fofNoErrorUI | fofSilent,
	}
	if ret, _, _ := procSHFileOperationW.Call(uintptr(unsafe.Pointer(&op))); ret != 0 {
		return Item{}, fmt.Errorf("SHFileOperationW %s: code %#x", abs, ret)
	}
	if op.fAnyOperationsAborted != 0 {
		return Item{}, fmt.Errorf("trash %s: aborted", abs)
	}
	return Item{
		Name:         filepath.Base(abs),
		OriginalPath: abs,
		DeletedAt:    time.Now(),
		Size:         info.Size(),
		IsDir:        info.IsDir(),
	}, nil
}

func (b *Bin) list() ([]Item, error) {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil, err
	}
	var items []Item
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		drive := string(rune('A'+i)) + `:\`
		found, err := scanRecycleBin(filepath.Join(drive, "$Recycle.Bin"))
		if err != nil {
			continue
		}
		items = append(items, found...)
	}
	return items, nil
}

func scanRecycleBin(root string) ([]Item, error) {
	sids, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var items []Item
	for _, sid := range sids {
		if !sid.IsDir() || !strings.HasPrefix(sid.Name(), "S-") {
			continue
		}
		dir := filepath.Join(root, sid.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.HasPrefix(e.Name(), "$R") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			it := Item{
				Name:      e.Name(),
				TrashPath: filepath.Join(dir, e.Name()),
				DeletedAt: info.ModTime(),
				Size:      info.Size(),
				IsDir:     e.IsDir(),
			}
			if orig, deleted, err := parseInfoFile(filepath.Join(dir, "$I"+strings.TrimPrefix(e.Name(), "$R"))); err == nil {
				it.Name = filepath.Base(orig)
				it.OriginalPath = orig
				it.DeletedAt = deleted
			}
			items = append(items, it)
		}
	}
	return items, nil
}

// parseInfoFile reads a Vista-or-later $I record.
func parseInfoFile(path string) (string, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, err
	}
	if len(data) < 28 {
		return "", time.Time{}, errors.New("short $I record")
	}
	var deleted time.Time
	if ft := binary.LittleEndian.Uint64(data[16:24]); ft > filetimeEpoch {
		deleted = time.Unix(0, int64(ft-filetimeEpoch)*100)
	}
	n := int(binary.LittleEndian.Uint32(data[24:28]))
	if len(data[28:]) < n*2 {
		return "", deleted, errors.New("truncated $I record")
	}
	chars := make([]uint16, n)
	for i := range chars {
		chars[i] = binary.LittleEndian.Uint16(data[28+2*i:])
	}
	return windows.UTF16ToString(chars), deleted, nil
}

// restore moves the $R entry back and drops its $I record. The shell keeps
// no other index, so Explorer agrees with the result.
func (b *Bin) restore(item Item) error {
	if item.OriginalPath == "" || item.TrashPath == "" {
		return errors.New("original location unknown")
	}
	if _, err := os.Lstat(item.OriginalPath); err == nil {
		return fmt.Errorf("restore %s: %w", item.OriginalPath, os.ErrExist)
	}
	if err := os.Rename(item.TrashPath, item.OriginalPath); err != nil {
		return err
	}
	dir, name := filepath.Split(item.TrashPath)
	_ = os.Remove(filepath.Join(dir, "$I"+strings.TrimPrefix(name, "$R")))
	return nil
}

func (b *Bin) empty() error {
	// S_OK, or E_UNEXPECTED when already empty.
	_, _, _ = procSHEmptyRecycleBinW.Call(0, 0, sherbNoConfirmation|sherbNoProgressUI|sherbNoSound)
	return nil
}

func displayName() string { return "Recycle Bin" }
