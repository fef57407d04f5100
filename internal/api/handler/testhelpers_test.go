package handler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/repository"
	"github.com/iconidentify/mediagrab/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobHistory is a test implementation of repository.JobHistory.
type mockJobHistory struct {
	*repository.InMemoryJobHistory
	statsErr error
}

func newMockJobHistory() *mockJobHistory {
	return &mockJobHistory{InMemoryJobHistory: repository.NewInMemoryJobHistory()}
}

func (m *mockJobHistory) Stats(ctx context.Context) (*repository.JobStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.InMemoryJobHistory.Stats(ctx)
}

type mockPinger struct {
	err error
}

func (m mockPinger) Ping(ctx context.Context) error { return m.err }

// mockMediaService is a test implementation of MediaService.
type mockMediaService struct {
	resolution *service.Resolution
	file       *domain.LocalMediaFile
	err        error
	dir        string

	gotSourceID, gotProfile, gotToken string
	discarded                         []string
}

func (m *mockMediaService) Resolve(ctx context.Context, sourceID, profile string) (*service.Resolution, error) {
	m.gotSourceID, m.gotProfile = sourceID, profile
	if m.err != nil {
		return nil, m.err
	}
	return m.resolution, nil
}

func (m *mockMediaService) Redeem(ctx context.Context, tok string) (*domain.LocalMediaFile, error) {
	m.gotToken = tok
	if m.err != nil {
		return nil, m.err
	}
	return m.file, nil
}

func (m *mockMediaService) Open(name string) (*os.File, os.FileInfo, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	f, err := os.Open(filepath.Join(m.dir, name))
	if err != nil {
		return nil, nil, domain.ErrMediaNotFound
	}
	info, _ := f.Stat()
	return f, info, nil
}

func (m *mockMediaService) Discard(ctx context.Context, name string) error {
	if m.err != nil {
		return m.err
	}
	m.discarded = append(m.discarded, name)
	return nil
}

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
