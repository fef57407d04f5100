// Package metrics exposes Prometheus collectors for resolution and acquisition.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolveTotal counts resolve calls by profile and result.
	ResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagrab_resolve_total",
		Help: "Total catalog resolutions",
	}, []string{"profile", "result"})

	// CandidatesOffered counts offered candidates by kind.
	CandidatesOffered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagrab_candidates_offered_total",
		Help: "Total format candidates offered",
	}, []string{"kind"})

	// JobsTotal counts finished acquisition jobs.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagrab_jobs_total",
		Help: "Total acquisition jobs by kind and outcome",
	}, []string{"kind", "outcome"})

	// JobDuration tracks acquisition wall time.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediagrab_job_duration_seconds",
		Help:    "Duration of acquisition jobs",
		Buckets: prometheus.ExponentialBuckets(0.5, 2.0, 12), // 0.5s to ~17m
	}, []string{"kind"})

	// ActiveJobs is the number of jobs holding a scratch directory.
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediagrab_active_jobs",
		Help: "Acquisition jobs currently running",
	})

	// MergeTotal counts ffmpeg merge attempts by mode and result.
	MergeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagrab_merge_total",
		Help: "Total ffmpeg merge attempts",
	}, []string{"mode", "result"})

	// FetchedBytes counts bytes written by stream fetches.
	FetchedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagrab_fetched_bytes_total",
		Help: "Total bytes fetched from stream URLs",
	}, []string{"part"})

	// SweptTotal counts entries removed by the sweeper.
	SweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagrab_swept_total",
		Help: "Total expired sessions and orphaned scratch dirs removed",
	}, []string{"target"})
)

// RecordJob records a finished job.
func RecordJob(kind, outcome string, elapsed time.Duration) {
	JobsTotal.WithLabelValues(kind, outcome).Inc()
	JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordMerge records one merge attempt.
func RecordMerge(mode string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	MergeTotal.WithLabelValues(mode, result).Inc()
}
