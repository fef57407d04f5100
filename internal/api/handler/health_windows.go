//go:build windows

package handler

import "golang.org/x/sys/windows"

// getDiskStats returns disk usage statistics for the volume holding path.
func getDiskStats(path string) (total, free, used int64, usedPct float64) {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, 0, 0
	}
	var avail, totalBytes, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &avail, &totalBytes, &totalFree); err != nil {
		return 0, 0, 0, 0
	}
	total, free = int64(totalBytes), int64(avail)
	used = total - int64(totalFree)
	if total > 0 {
		usedPct = float64(used) / float64(total) * 100
	}
	return total, free, used, usedPct
}

// getCPUUsage is not tracked on Windows.
func getCPUUsage() float64 {
	return 0
}
