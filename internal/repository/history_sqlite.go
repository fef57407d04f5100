package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/iconidentify/mediagrab/internal/domain"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL,
	quality    TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL,
	outcome    TEXT NOT NULL DEFAULT '',
	merge_mode TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_outcome ON jobs(outcome);
`

// SQLiteJobHistory implements JobHistory on a SQLite database.
type SQLiteJobHistory struct {
	db *sql.DB
}

// NewSQLiteJobHistory opens (creating if needed) the database at path.
func NewSQLiteJobHistory(path string) (*SQLiteJobHistory, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent jobs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(jobsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &SQLiteJobHistory{db: db}, nil
}

// RecordJob upserts the job's current state.
func (h *SQLiteJobHistory) RecordJob(ctx context.Context, job *domain.AcquisitionJob) error {
	rec := recordOf(job)
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_id, quality, kind, state, outcome, merge_mode, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			outcome = excluded.outcome,
			merge_mode = excluded.merge_mode,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		string(rec.ID), rec.SourceID, rec.Quality, string(rec.Kind), string(rec.State),
		string(rec.Outcome), string(rec.MergeMode), rec.Error,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", rec.ID, err)
	}
	return nil
}

const selectJobs = `SELECT id, source_id, quality, kind, state, outcome, merge_mode, last_error, created_at, updated_at FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*JobRecord, error) {
	var (
		rec                  JobRecord
		id, kind, state      string
		outcome, mergeMode   string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&id, &rec.SourceID, &rec.Quality, &kind, &state, &outcome, &mergeMode, &rec.Error, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.ID = domain.JobID(id)
	rec.Kind = domain.CandidateKind(kind)
	rec.State = domain.JobState(state)
	rec.Outcome = domain.JobState(outcome)
	rec.MergeMode = domain.MergeMode(mergeMode)
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rec, nil
}

// Get retrieves a job record by ID.
func (h *SQLiteJobHistory) Get(ctx context.Context, id domain.JobID) (*JobRecord, error) {
	rec, err := scanRecord(h.db.QueryRowContext(ctx, selectJobs+` WHERE id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (h *SQLiteJobHistory) Recent(ctx context.Context, limit int) ([]*JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.QueryContext(ctx, selectJobs+` ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*JobRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats returns aggregate job statistics.
func (h *SQLiteJobHistory) Stats(ctx context.Context) (*JobStats, error) {
	stats := &JobStats{MergeMode: make(map[string]int)}

	rows, err := h.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM jobs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		stats.Total += n
		switch domain.JobState(outcome) {
		case domain.JobStateCompleted:
			stats.Completed += n
		case domain.JobStateFailed:
			stats.Failed += n
		default:
			stats.Running += n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = h.db.QueryContext(ctx, `SELECT merge_mode, COUNT(*) FROM jobs WHERE merge_mode != '' GROUP BY merge_mode`)
	if err != nil {
		return nil, fmt.Errorf("count merge modes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mode string
		var n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, fmt.Errorf("scan merge modes: %w", err)
		}
		stats.MergeMode[mode] = n
	}
	return stats, rows.Err()
}

// Close closes the database.
func (h *SQLiteJobHistory) Close() error {
	return h.db.Close()
}
