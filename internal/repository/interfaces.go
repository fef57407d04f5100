package repository

import (
	"context"
	"time"

	"github.com/iconidentify/mediagrab/internal/domain"
)

// SessionStore holds pending selections between resolve and redeem, keyed
// by token. Entries expire after their TTL.
type SessionStore interface {
	// Put stores sel under token for ttl.
	Put(ctx context.Context, token string, sel *domain.Selection, ttl time.Duration) error

	// Take returns and deletes the selection for token. It returns
	// domain.ErrSessionNotFound for unknown or expired tokens.
	Take(ctx context.Context, token string) (*domain.Selection, error)

	// Sweep drops expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// JobHistory persists acquisition job outcomes.
type JobHistory interface {
	// RecordJob upserts the job's current state.
	RecordJob(ctx context.Context, job *domain.AcquisitionJob) error

	// Get retrieves a job record by ID.
	Get(ctx context.Context, id domain.JobID) (*JobRecord, error)

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]*JobRecord, error)

	// Stats returns aggregate job statistics.
	Stats(ctx context.Context) (*JobStats, error)

	// Close releases backend resources.
	Close() error
}

// JobRecord is the persisted view of an acquisition job.
type JobRecord struct {
	ID        domain.JobID         `json:"id"`
	SourceID  string               `json:"source_id"`
	Quality   string               `json:"quality"`
	Kind      domain.CandidateKind `json:"kind"`
	State     domain.JobState      `json:"state"`
	Outcome   domain.JobState      `json:"outcome,omitempty"`
	MergeMode domain.MergeMode     `json:"merge_mode,omitempty"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// recordOf converts a job to its record.
func recordOf(job *domain.AcquisitionJob) *JobRecord {
	return &JobRecord{
		ID:        job.ID,
		SourceID:  job.SourceID,
		Quality:   job.Quality.String(),
		Kind:      job.Kind,
		State:     job.State,
		Outcome:   job.Outcome,
		MergeMode: job.MergeMode,
		Error:     job.LastError,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

// JobStats contains job history statistics.
type JobStats struct {
	Total     int            `json:"total"`
	Running   int            `json:"running"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	MergeMode map[string]int `json:"merge_mode"`
}
