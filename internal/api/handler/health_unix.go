//go:build !windows

package handler

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// CPU tracking state for calculating delta between polls
var (
	cpuMu          sync.Mutex
	lastCPUTime    time.Duration // user + system time
	lastWallTime   time.Time
	cpuInitialized bool
)

// getDiskStats returns disk usage statistics for the given path.
func getDiskStats(path string) (total, free, used int64, usedPct float64) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, 0, 0, 0
	}
	total = int64(fs.Blocks) * int64(fs.Bsize)
	free = int64(fs.Bavail) * int64(fs.Bsize)
	used = total - free
	if total > 0 {
		usedPct = float64(used) / float64(total) * 100
	}
	return total, free, used, usedPct
}

// getCPUUsage returns this process's CPU usage since the previous call as
// a percentage of one core, capped at 100.
func getCPUUsage() float64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	cpu := time.Duration(ru.Utime.Nano()) + time.Duration(ru.Stime.Nano())
	now := time.Now()

	cpuMu.Lock()
	defer cpuMu.Unlock()

	if !cpuInitialized {
		lastCPUTime, lastWallTime, cpuInitialized = cpu, now, true
		return 0
	}

	cpuDelta := cpu - lastCPUTime
	wallDelta := now.Sub(lastWallTime)
	lastCPUTime, lastWallTime = cpu, now
	if wallDelta <= 0 {
		return 0
	}
	pct := float64(cpuDelta) / float64(wallDelta) * 100
	return max(0, min(pct, 100))
}
