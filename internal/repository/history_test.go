package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/iconidentify/mediagrab/internal/domain"
)

func historyImpls(t *testing.T) map[string]JobHistory {
	t.Helper()
	sqlite, err := NewSQLiteJobHistory(filepath.Join(t.TempDir(), "sub", "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteJobHistory: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]JobHistory{
		"memory": NewInMemoryJobHistory(),
		"sqlite": sqlite,
	}
}

func newJob(id string, created time.Time) *domain.AcquisitionJob {
	job := domain.NewAcquisitionJob(domain.JobID(id), "/scratch/"+id)
	job.SourceID = "src-" + id
	job.Quality = domain.Quality720p
	job.Kind = domain.KindSplit
	// Millisecond precision survives the sqlite round trip.
	job.CreatedAt = created.Truncate(time.Millisecond).UTC()
	job.UpdatedAt = job.CreatedAt
	return job
}

func TestJobHistory_RecordAndGet(t *testing.T) {
	for name, h := range historyImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob("a", time.Now())

			if err := h.RecordJob(ctx, job); err != nil {
				t.Fatalf("RecordJob: %v", err)
			}
			job.MarkFetching()
			job.MarkAssembling()
			job.MergeMode = domain.MergeModeReencode
			job.MarkCompleted()
			job.MarkCleaned()
			job.UpdatedAt = job.UpdatedAt.Truncate(time.Millisecond).UTC()
			if err := h.RecordJob(ctx, job); err != nil {
				t.Fatalf("RecordJob update: %v", err)
			}

			got, err := h.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			want := &JobRecord{
				ID:        "a",
				SourceID:  "src-a",
				Quality:   "720p",
				Kind:      domain.KindSplit,
				State:     domain.JobStateCleaned,
				Outcome:   domain.JobStateCompleted,
				MergeMode: domain.MergeModeReencode,
				CreatedAt: job.CreatedAt,
				UpdatedAt: job.UpdatedAt,
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}

			if _, err := h.Get(ctx, "missing"); !errors.Is(err, domain.ErrJobNotFound) {
				t.Errorf("Get missing err = %v, want ErrJobNotFound", err)
			}
		})
	}
}

func TestJobHistory_RecentAndStats(t *testing.T) {
	for name, h := range historyImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

			done := newJob("done", base)
			done.MergeMode = domain.MergeModeCopy
			done.MarkCompleted()

			failed := newJob("failed", base.Add(time.Minute))
			failed.MarkFailed(errors.New("stream fetch failed"))
			failed.MarkCleaned()

			running := newJob("running", base.Add(2*time.Minute))
			running.MarkFetching()

			for _, j := range []*domain.AcquisitionJob{done, failed, running} {
				if err := h.RecordJob(ctx, j); err != nil {
					t.Fatalf("RecordJob: %v", err)
				}
			}

			recent, err := h.Recent(ctx, 2)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			var ids []domain.JobID
			for _, r := range recent {
				ids = append(ids, r.ID)
			}
			if diff := cmp.Diff([]domain.JobID{"running", "failed"}, ids); diff != "" {
				t.Errorf("recent ids mismatch (-want +got):\n%s", diff)
			}
			if recent[1].Error != "stream fetch failed" {
				t.Errorf("Error = %q", recent[1].Error)
			}

			stats, err := h.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			want := &JobStats{
				Total:     3,
				Running:   1,
				Completed: 1,
				Failed:    1,
				MergeMode: map[string]int{"copy": 1},
			}
			if diff := cmp.Diff(want, stats); diff != "" {
				t.Errorf("stats mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
