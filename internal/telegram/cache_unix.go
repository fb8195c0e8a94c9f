//go:build !windows

package telegram

import (
	"fmt"
	"os"
	"syscall"
)

// checkCacheDirOwner rejects a cache dir owned by another user. Chat files
// land here with 0600 perms, but a foreign owner defeats that.
func checkCacheDirOwner(dir string, fi os.FileInfo) error {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return fmt.Errorf("unsupported stat for: %s", dir)
	}
	if uid := uint32(os.Getuid()); st.Uid != uid {
		return fmt.Errorf("cache dir not owned by current user (uid=%d, owner=%d): %s", uid, st.Uid, dir)
	}
	return nil
}
