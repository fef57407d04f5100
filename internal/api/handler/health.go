package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/mediagrab/internal/repository"
)

var startTime = time.Now()

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	history  repository.JobHistory
	sessions Pinger
	workRoot string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(history repository.JobHistory, sessions Pinger, workRoot string) *HealthHandler {
	return &HealthHandler{
		history:  history,
		sessions: sessions,
		workRoot: workRoot,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string               `json:"status"`
	Timestamp string               `json:"timestamp"`
	Jobs      *repository.JobStats `json:"jobs,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe. Job history and the session
// store must both answer.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.history.Stats(ctx)
	if err == nil && h.sessions != nil {
		if perr := h.sessions.Ping(ctx); perr != nil {
			err = fmt.Errorf("session store: %w", perr)
		}
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Jobs:      stats,
	})
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64                `json:"uptime_seconds"`
	UptimeHuman    string               `json:"uptime_human"`
	MemAllocMB     int64                `json:"mem_alloc_mb"`
	MemSysMB       int64                `json:"mem_sys_mb"`
	MemHeapMB      int64                `json:"mem_heap_mb"`
	NumGoroutines  int                  `json:"num_goroutines"`
	NumCPU         int                  `json:"num_cpu"`
	CPUPercent     float64              `json:"cpu_percent"`
	DiskUsedBytes  int64                `json:"disk_used_bytes"`
	DiskFreeBytes  int64                `json:"disk_free_bytes"`
	DiskTotalBytes int64                `json:"disk_total_bytes"`
	DiskUsedPct    float64              `json:"disk_used_pct"`
	WorkRoot       string               `json:"work_root"`
	Jobs           *repository.JobStats `json:"jobs,omitempty"`
}

// Stats handles GET /api/v1/stats - system and job statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPercent:    getCPUUsage(),
		WorkRoot:      h.workRoot,
	}
	stats.DiskTotalBytes, stats.DiskFreeBytes, stats.DiskUsedBytes, stats.DiskUsedPct = getDiskStats(h.workRoot)

	jobs, err := h.history.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	stats.Jobs = jobs

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
