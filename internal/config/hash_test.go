package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockConfigAndVerify(t *testing.T) {
	path := writeConfig(t, "config.yaml", "api:\n  listen: :9000\n")

	locked, err := IsLocked(path)
	if err != nil || locked {
		t.Fatalf("IsLocked() before lock = %v, %v", locked, err)
	}

	manifest, err := LockConfig(path)
	if err != nil {
		t.Fatalf("LockConfig() error = %v", err)
	}
	if got := manifest.Files(); len(got) != 1 || got[0] != "config.yaml" {
		t.Fatalf("manifest files = %v", got)
	}

	info, err := os.Stat(filepath.Join(filepath.Dir(path), ChecksumFile))
	if err != nil {
		t.Fatalf("checksums not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("checksums mode = %v, want 0600", info.Mode().Perm())
	}

	if locked, err := IsLocked(path); err != nil || !locked {
		t.Fatalf("IsLocked() after lock = %v, %v", locked, err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() of locked config error = %v", err)
	}

	if err := os.WriteFile(path, []byte("api:\n  listen: :9999\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = Load(path)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("Load() of tampered config error = %v, want hash mismatch", err)
	}
}

func TestLockConfigKeepsOtherEntries(t *testing.T) {
	path := writeConfig(t, "config.yaml", "")
	dir := filepath.Dir(path)
	other := filepath.Join(dir, "mcp_config.json")
	if err := os.WriteFile(other, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LockConfig(other); err != nil {
		t.Fatal(err)
	}
	manifest, err := LockConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := manifest.Files(); len(got) != 2 {
		t.Fatalf("manifest files = %v, want both entries", got)
	}
}

func TestLoadChecksumsMissing(t *testing.T) {
	_, err := LoadChecksums(t.TempDir())
	if !errors.Is(err, ErrNoChecksums) {
		t.Fatalf("LoadChecksums() error = %v, want ErrNoChecksums", err)
	}
}

func TestLoadChecksumsRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("version: 2\nhashes: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChecksums(dir); err == nil {
		t.Fatal("LoadChecksums() error = nil, want version error")
	}
}

func TestVerifyFileHash(t *testing.T) {
	path := writeConfig(t, "a.yaml", "x: 1\n")
	hash, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(hash) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(hash))
	}
	if err := VerifyFileHash(path, hash); err != nil {
		t.Fatalf("VerifyFileHash() error = %v", err)
	}
	if err := VerifyFileHash(path, strings.Repeat("0", 64)); err == nil {
		t.Fatal("VerifyFileHash() error = nil, want mismatch")
	}
}
