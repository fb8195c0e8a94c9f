package telegram

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsureSecureCacheDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")

	if err := EnsureSecureCacheDir(dir); err != nil {
		t.Fatalf("EnsureSecureCacheDir: %v", err)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode().Perm() != 0o700 {
		t.Fatalf("perm = %#o, want 0700", fi.Mode().Perm())
	}

	// Idempotent, and loose perms get tightened.
	if err := os.Chmod(dir, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := EnsureSecureCacheDir(dir); err != nil {
		t.Fatalf("EnsureSecureCacheDir (repair): %v", err)
	}
	fi, err = os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode().Perm() != 0o700 {
		t.Fatalf("perm after repair = %#o, want 0700", fi.Mode().Perm())
	}
}

func TestCleanupFileCacheDirMaxFiles(t *testing.T) {
	dir := t.TempDir()

	base := time.Now().Add(-time.Hour)
	names := []string{"a.txt", "b.txt", "c.txt"}
	for i, name := range names {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("data"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		mt := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	if err := CleanupFileCacheDir(dir, 0, 1, 0); err != nil {
		t.Fatalf("CleanupFileCacheDir: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}
	if entries[0].Name() != "c.txt" {
		t.Fatalf("survivor = %q, want c.txt (newest)", entries[0].Name())
	}
}

func TestCleanupFileCacheDirTotalBytes(t *testing.T) {
	dir := t.TempDir()

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"first.bin", "second.bin", "third.bin"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, make([]byte, 100), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		mt := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	// 300 bytes on disk, 150 allowed: the two oldest must go.
	if err := CleanupFileCacheDir(dir, 0, 0, 150); err != nil {
		t.Fatalf("CleanupFileCacheDir: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "third.bin" {
		t.Fatalf("survivors = %v, want just third.bin", names(entries))
	}
}

func TestCleanupFileCacheDirSweepsEmptySubdirs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "downloads", "nested")
	if err := os.MkdirAll(sub, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	p := filepath.Join(sub, "stale.bin")
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(p, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if err := CleanupFileCacheDir(dir, 24*time.Hour, 0, 0); err != nil {
		t.Fatalf("CleanupFileCacheDir: %v", err)
	}

	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Fatalf("emptied subdir survived (err=%v)", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("root cache dir must survive: %v", err)
	}
}

func names(entries []os.DirEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestCleanupFileCacheDirMaxAge(t *testing.T) {
	dir := t.TempDir()

	oldPath := filepath.Join(dir, "old.bin")
	newPath := filepath.Join(dir, "new.bin")
	if err := os.WriteFile(oldPath, []byte("old"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(newPath, []byte("new"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldPath, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if err := CleanupFileCacheDir(dir, 24*time.Hour, 0, 0); err != nil {
		t.Fatalf("CleanupFileCacheDir: %v", err)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("old file still present (err=%v)", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("new file missing: %v", err)
	}
}
