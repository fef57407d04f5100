//go:build !windows

package engine

import "golang.org/x/sys/unix"

// freeBytes returns the bytes available to unprivileged users under path.
func freeBytes(path string) (int64, bool) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, false
	}
	return int64(fs.Bavail) * int64(fs.Bsize), true
}
