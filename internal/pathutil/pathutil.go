package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHomePath expands a leading "~" or "~/" to the current user's home
// directory. Paths that do not start with "~" are returned unchanged.
func ExpandHomePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}

// ResolveStateDir returns the effective state directory for raw, falling back
// to fallback when raw is blank. The result is home-expanded.
func ResolveStateDir(raw, fallback string) string {
	dir := strings.TrimSpace(raw)
	if dir == "" {
		dir = fallback
	}
	return ExpandHomePath(dir)
}
