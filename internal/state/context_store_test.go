package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestContextStore(t *testing.T) *ContextStore {
	t.Helper()
	s, err := NewContextStore(filepath.Join(t.TempDir(), "context"))
	if err != nil {
		t.Fatalf("NewContextStore: %v", err)
	}
	return s
}

func TestContextStoreSaveThenLoad(t *testing.T) {
	t.Parallel()

	s := newTestContextStore(t)
	ctx := context.Background()

	doc := map[string]any{"project": "tender", "open_files": []any{"a.go", "b.go"}}
	if err := s.Save(ctx, doc, "custom_context.json"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx, "custom_context.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Load returned %T, want map", got)
	}
	if m["project"] != "tender" {
		t.Fatalf("project = %#v", m["project"])
	}
	files, _ := m["open_files"].([]any)
	if len(files) != 2 {
		t.Fatalf("open_files = %#v", m["open_files"])
	}
}

func TestContextStoreSaveOverwritesAndLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	s := newTestContextStore(t)
	ctx := context.Background()

	for _, v := range []string{"one", "two"} {
		if err := s.Save(ctx, map[string]any{"v": v}, "ctx.json"); err != nil {
			t.Fatalf("Save(%s): %v", v, err)
		}
	}
	got, err := s.Load(ctx, "ctx.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.(map[string]any)["v"] != "two" {
		t.Fatalf("expected latest save, got %#v", got)
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only ctx.json, got %d entries", len(entries))
	}
}

func TestContextStoreLoadMissing(t *testing.T) {
	t.Parallel()

	s := newTestContextStore(t)
	_, err := s.Load(context.Background(), "default_context.json")
	if !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("expected ErrContextNotFound, got %v", err)
	}
}

func TestContextStoreLoadInvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestContextStore(t)
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "bad.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(context.Background(), "bad.json"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestContextStoreRejectsUnsafeNames(t *testing.T) {
	t.Parallel()

	s := newTestContextStore(t)
	for _, name := range []string{"", " ", "..", "../escape.json", "a/b.json", `a\b.json`, ".hidden", " padded.json"} {
		if err := s.Save(context.Background(), map[string]any{"x": 1}, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Save(%q) error = %v, want ErrInvalidName", name, err)
		}
		if _, err := s.Load(context.Background(), name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Load(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestContextStoreMaxSize(t *testing.T) {
	t.Parallel()

	s := newTestContextStore(t)
	s.maxContextBytes = 16
	err := s.Save(context.Background(), map[string]any{"long": "0123456789abcdef"}, "big.json")
	if err == nil {
		t.Fatal("expected size error")
	}
}
