package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/iconidentify/mediagrab/internal/domain"
)

// InMemoryJobHistory implements JobHistory using in-memory storage.
type InMemoryJobHistory struct {
	mu   sync.RWMutex
	jobs map[domain.JobID]*JobRecord
}

// NewInMemoryJobHistory creates a new in-memory job history.
func NewInMemoryJobHistory() *InMemoryJobHistory {
	return &InMemoryJobHistory{
		jobs: make(map[domain.JobID]*JobRecord),
	}
}

// RecordJob upserts the job's current state.
func (h *InMemoryJobHistory) RecordJob(ctx context.Context, job *domain.AcquisitionJob) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.jobs[job.ID] = recordOf(job)
	return nil
}

// Get retrieves a job record by ID.
func (h *InMemoryJobHistory) Get(ctx context.Context, id domain.JobID) (*JobRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rec, ok := h.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *rec
	return &cp, nil
}

// Recent returns up to limit records, newest first.
func (h *InMemoryJobHistory) Recent(ctx context.Context, limit int) ([]*JobRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*JobRecord, 0, len(h.jobs))
	for _, rec := range h.jobs {
		cp := *rec
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *JobRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats returns aggregate job statistics.
func (h *InMemoryJobHistory) Stats(ctx context.Context) (*JobStats, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := &JobStats{MergeMode: make(map[string]int)}
	for _, rec := range h.jobs {
		stats.Total++
		switch rec.Outcome {
		case domain.JobStateCompleted:
			stats.Completed++
		case domain.JobStateFailed:
			stats.Failed++
		default:
			stats.Running++
		}
		if rec.MergeMode != domain.MergeModeNone {
			stats.MergeMode[string(rec.MergeMode)]++
		}
	}
	return stats, nil
}

// Close is a no-op.
func (h *InMemoryJobHistory) Close() error {
	return nil
}
