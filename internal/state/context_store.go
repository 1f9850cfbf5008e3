// Package state persists named context documents as JSON files.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const DefaultMaxContextBytes = 1 << 20 // 1 MiB

var (
	ErrContextNotFound = errors.New("context not found")
	ErrInvalidName     = errors.New("invalid context name")
)

// ContextStore reads and writes context files inside one directory.
type ContextStore struct {
	dir             string
	maxContextBytes int
}

func NewContextStore(dir string) (*ContextStore, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("context directory is empty")
	}
	return &ContextStore{
		dir:             filepath.Clean(trimmed),
		maxContextBytes: DefaultMaxContextBytes,
	}, nil
}

// Dir returns the directory holding context files.
func (s *ContextStore) Dir() string { return s.dir }

// Load decodes the context file called name.
func (s *ContextStore) Load(ctx context.Context, name string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.contextPath(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("stat context %q: %w", name, err)
	}
	if info.Size() > int64(s.maxContextBytes) {
		return nil, fmt.Errorf("context %q exceeds max size (%d bytes)", name, s.maxContextBytes)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context %q: %w", name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("context %q is not valid JSON: %w", name, err)
	}
	return doc, nil
}

// Save writes data as the context file called name, replacing any previous
// version atomically.
func (s *ContextStore) Save(ctx context.Context, data any, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.contextPath(name)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode context %q: %w", name, err)
	}
	if len(encoded) > s.maxContextBytes {
		return fmt.Errorf("context %q exceeds max size (%d bytes)", name, s.maxContextBytes)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(append(encoded, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write context %q: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync context %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close context %q: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace context %q: %w", name, err)
	}
	return nil
}

// contextPath maps a plain file name to a path inside the store directory.
func (s *ContextStore) contextPath(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if trimmed != name ||
		strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." ||
		strings.HasPrefix(name, ".") ||
		filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}
