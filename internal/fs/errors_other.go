//go:build !unix && !windows

package fs

func isCrossDevice(error) bool { return false }
