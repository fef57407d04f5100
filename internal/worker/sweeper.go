// Package worker runs background maintenance next to the API server.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/mediagrab/internal/metrics"
)

// ErrShutdownTimeout is returned when the sweeper doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("sweeper shutdown timed out")

// SessionSweeper drops expired pending offers.
type SessionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ScratchSweeper removes abandoned job scratch directories.
type ScratchSweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

// Config holds sweeper configuration.
type Config struct {
	Interval time.Duration
	// ScratchAge is how old an unowned scratch directory must be before it
	// is removed.
	ScratchAge time.Duration
}

// Sweeper periodically expires sessions and orphaned scratch directories.
type Sweeper struct {
	interval   time.Duration
	scratchAge time.Duration
	sessions   SessionSweeper
	scratch    ScratchSweeper
	logger     *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweeper creates a sweeper. Either target may be nil.
func NewSweeper(cfg Config, sessions SessionSweeper, scratch ScratchSweeper, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.ScratchAge <= 0 {
		cfg.ScratchAge = 2 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		interval:   cfg.Interval,
		scratchAge: cfg.ScratchAge,
		sessions:   sessions,
		scratch:    scratch,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the sweep loop. A first sweep runs immediately to pick up
// leftovers from a previous crash.
func (s *Sweeper) Start() {
	s.logger.Info("starting sweeper", "interval", s.interval, "scratch_age", s.scratchAge)

	s.wg.Add(1)
	go s.loop()
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop(timeout time.Duration) error {
	s.logger.Info("stopping sweeper")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sweeper stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(s.ctx)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(s.ctx)
		}
	}
}

// SweepOnce runs both sweeps and returns how many entries each removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (sessions, scratch int) {
	if s.sessions != nil {
		n, err := s.sessions.Sweep(ctx)
		if err != nil {
			s.logger.Warn("session sweep failed", "error", err)
		}
		sessions = n
		metrics.SweptTotal.WithLabelValues("session").Add(float64(n))
	}
	if s.scratch != nil {
		n, err := s.scratch.Sweep(s.scratchAge)
		if err != nil {
			s.logger.Warn("scratch sweep failed", "error", err)
		}
		scratch = n
		metrics.SweptTotal.WithLabelValues("scratch").Add(float64(n))
	}
	if sessions > 0 || scratch > 0 {
		s.logger.Info("sweep completed", "sessions", sessions, "scratch_dirs", scratch)
	}
	return sessions, scratch
}
