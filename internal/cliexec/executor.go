// Package cliexec serves the file-reading side of execute_cli.
package cliexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

const DefaultMaxReadBytes = 10 << 20 // 10 MiB

// Executor reads files from local disk.
type Executor struct {
	maxReadBytes int64
}

func New(maxReadBytes int64) *Executor {
	if maxReadBytes <= 0 {
		maxReadBytes = DefaultMaxReadBytes
	}
	return &Executor{maxReadBytes: maxReadBytes}
}

// ReadFile returns the contents of the regular file at path.
func (e *Executor) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("file path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > e.maxReadBytes {
		return "", fmt.Errorf("%s exceeds max read size (%d bytes)", path, e.maxReadBytes)
	}

	data, err := io.ReadAll(io.LimitReader(f, e.maxReadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > e.maxReadBytes {
		return "", fmt.Errorf("%s exceeds max read size (%d bytes)", path, e.maxReadBytes)
	}
	return string(data), nil
}
