package storage

import (
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestCheckLocalFilesystem_AllowsLocalFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	err := checkLocalFilesystemWithDetector(dbPath, func(string) (string, error) {
		return "apfs", nil
	})
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestCheckLocalFilesystem_RejectsNetworkFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	err := checkLocalFilesystemWithDetector(dbPath, func(string) (string, error) {
		return "NFS", nil
	})
	if err == nil {
		t.Fatal("expected network filesystem validation error")
	}
	if !strings.Contains(err.Error(), "SQLite requires a local filesystem") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckLocalFilesystem_UsesNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "a", "b", "state.db")
	var inspected string
	err := checkLocalFilesystemWithDetector(dbPath, func(path string) (string, error) {
		inspected = path
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := filepath.Abs(root)
	if inspected != want {
		t.Fatalf("inspected %q, want %q", inspected, want)
	}
}

func TestCheckLocalFilesystem_DetectorFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystemWithDetector(filepath.Join(t.TempDir(), "x.db"), func(string) (string, error) {
		return "", errors.New("unsupported")
	})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestDiskUsage(t *testing.T) {
	t.Parallel()

	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("statfs not supported")
	}
	stats, err := DiskUsage(filepath.Join(t.TempDir(), "missing", "child"))
	if err != nil {
		t.Fatalf("DiskUsage: %v", err)
	}
	if stats.TotalBytes == 0 {
		t.Fatal("expected non-zero total bytes")
	}
	if stats.FreeBytes > stats.TotalBytes {
		t.Fatalf("free %d > total %d", stats.FreeBytes, stats.TotalBytes)
	}
	if stats.UsedPercent < 0 || stats.UsedPercent > 100 {
		t.Fatalf("used percent out of range: %f", stats.UsedPercent)
	}
}
