//go:build !darwin && !linux

package storage

import "fmt"

func detectFilesystemType(path string) (string, error) {
	return "", fmt.Errorf("filesystem detection is unsupported on this platform")
}

func statDisk(path string) (total, free uint64, err error) {
	return 0, 0, fmt.Errorf("disk usage is unsupported on this platform")
}
