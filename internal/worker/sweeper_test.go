package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSessions struct {
	mu    sync.Mutex
	calls int
	n     int
	err   error
}

func (m *mockSessions) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.n, m.err
}

func (m *mockSessions) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockScratch struct {
	mu     sync.Mutex
	maxAge time.Duration
	n      int
}

func (m *mockScratch) Sweep(maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxAge = maxAge
	return m.n, nil
}

func TestSweeper_SweepOnce(t *testing.T) {
	sessions := &mockSessions{n: 3}
	scratch := &mockScratch{n: 1}
	s := NewSweeper(Config{Interval: time.Hour, ScratchAge: 90 * time.Minute}, sessions, scratch, testLogger())

	gotSessions, gotScratch := s.SweepOnce(context.Background())
	if gotSessions != 3 || gotScratch != 1 {
		t.Errorf("SweepOnce = %d, %d", gotSessions, gotScratch)
	}
	if scratch.maxAge != 90*time.Minute {
		t.Errorf("maxAge = %v", scratch.maxAge)
	}
}

func TestSweeper_ErrorsDoNotStopScratch(t *testing.T) {
	sessions := &mockSessions{err: errors.New("redis down")}
	scratch := &mockScratch{n: 2}
	s := NewSweeper(Config{}, sessions, scratch, testLogger())

	if _, n := s.SweepOnce(context.Background()); n != 2 {
		t.Errorf("scratch swept = %d, want 2", n)
	}
}

func TestSweeper_NilTargets(t *testing.T) {
	s := NewSweeper(Config{}, nil, nil, testLogger())
	if a, b := s.SweepOnce(context.Background()); a != 0 || b != 0 {
		t.Errorf("SweepOnce = %d, %d", a, b)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sessions := &mockSessions{}
	s := NewSweeper(Config{Interval: 10 * time.Millisecond}, sessions, &mockScratch{}, testLogger())
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for sessions.Calls() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sessions.Calls() < 3 {
		t.Errorf("sweeps = %d, want at least 3", sessions.Calls())
	}

	calls := sessions.Calls()
	time.Sleep(30 * time.Millisecond)
	if sessions.Calls() != calls {
		t.Error("sweeper kept running after Stop")
	}
}
