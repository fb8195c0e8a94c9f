package telegram

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// EnsureSecureCacheDir creates dir (0700) and refuses to use it unless it
// is a real, owner-only directory. Downloaded chat files land here, so a
// symlinked, shared, or foreign-owned dir is rejected. The ownership check
// is platform-specific (cache_unix.go / cache_windows.go).
func EnsureSecureCacheDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fmt.Errorf("empty dir")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	dir = abs

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	fi, err := os.Lstat(dir)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing symlink path: %s", dir)
	}
	if !fi.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}
	if err := checkCacheDirOwner(dir, fi); err != nil {
		return err
	}

	if perm := fi.Mode().Perm(); perm != 0o700 {
		// We own it, so tighten loose perms instead of refusing outright.
		if err := os.Chmod(dir, 0o700); err != nil {
			return fmt.Errorf("cache dir has insecure perms (%#o) and chmod failed: %w", perm, err)
		}
		fixed, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if got := fixed.Mode().Perm(); got != 0o700 {
			return fmt.Errorf("cache dir has insecure perms (%#o): %s", got, dir)
		}
	}
	return nil
}

type cachedFile struct {
	path    string
	modTime time.Time
	size    int64
}

// CleanupFileCacheDir prunes dir by age, file count, and total size. Files
// past maxAge go first; the remainder is trimmed oldest-first until both
// the count and byte caps hold. Empty subdirectories are swept afterwards,
// best effort. Symlinks are never followed.
func CleanupFileCacheDir(dir string, maxAge time.Duration, maxFiles int, maxTotalBytes int64) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fmt.Errorf("missing dir")
	}
	if maxAge <= 0 && maxFiles <= 0 && maxTotalBytes <= 0 {
		return nil
	}

	now := time.Now()
	var survivors []cachedFile
	var total int64

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.Type()&os.ModeSymlink != 0:
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		case d.IsDir():
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if maxAge > 0 && now.Sub(info.ModTime()) > maxAge {
			_ = os.Remove(path)
			return nil
		}
		survivors = append(survivors, cachedFile{path: path, modTime: info.ModTime(), size: info.Size()})
		total += info.Size()
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return walkErr
	}

	sort.Slice(survivors, func(i, j int) bool { return survivors[i].modTime.Before(survivors[j].modTime) })
	overCaps := func() bool {
		return (maxFiles > 0 && len(survivors) > maxFiles) ||
			(maxTotalBytes > 0 && total > maxTotalBytes)
	}
	for overCaps() && len(survivors) > 0 {
		oldest := survivors[0]
		survivors = survivors[1:]
		total -= oldest.size
		_ = os.Remove(oldest.path)
	}

	sweepEmptyDirs(dir)
	return nil
}

// sweepEmptyDirs removes now-empty subdirectories of root, deepest first.
func sweepEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	cleanRoot := filepath.Clean(root)
	for _, d := range dirs {
		if filepath.Clean(d) == cleanRoot {
			continue
		}
		_ = os.Remove(d)
	}
}
