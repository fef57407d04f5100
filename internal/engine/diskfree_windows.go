//go:build windows

package engine

import "golang.org/x/sys/windows"

// freeBytes returns the bytes available to the caller under path.
func freeBytes(path string) (int64, bool) {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, false
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &free, &total, &totalFree); err != nil {
		return 0, false
	}
	return int64(free), true
}
