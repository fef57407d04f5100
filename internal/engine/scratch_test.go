package engine

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/mediagrab/internal/domain"
)

func TestScratch_OpenAndPath(t *testing.T) {
	s, err := NewScratch(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}

	a, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("job ids must be unique")
	}

	if info, err := os.Stat(a.Dir); err != nil || !info.IsDir() {
		t.Fatalf("scratch dir missing: %v", err)
	}
	want := filepath.Join(s.Root(), jobsDirName, a.ID.String(), a.ID.String()+".video")
	if got := a.Path("video"); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestScratch_Release(t *testing.T) {
	s, err := NewScratch(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	job, _ := s.Open()
	other, _ := s.Open()

	write := func(path string) {
		t.Helper()
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(job.Path("video"))
	write(job.Path("audio"))
	keep := filepath.Join(s.Root(), job.ID.String()+"_Clip.mp4")
	stray := filepath.Join(s.Root(), job.ID.String()+"_Clip.mp4.tmp")
	unrelated := filepath.Join(s.Root(), "notes.txt")
	write(keep)
	write(stray)
	write(unrelated)
	write(other.Path("video"))

	if err := s.Release(job, keep); err != nil {
		t.Fatalf("Release: %v", err)
	}

	for _, gone := range []string{job.Dir, stray} {
		if _, err := os.Stat(gone); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should be removed", gone)
		}
	}
	for _, kept := range []string{keep, unrelated, other.Path("video")} {
		if _, err := os.Stat(kept); err != nil {
			t.Errorf("%s should survive: %v", kept, err)
		}
	}

	// Releasing twice is harmless.
	if err := s.Release(job, keep); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if err := s.Release(nil, ""); err != nil {
		t.Errorf("Release(nil): %v", err)
	}
}

func TestScratch_Sweep(t *testing.T) {
	s, err := NewScratch(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}

	// A crash leftover: a directory no running job owns.
	orphan := filepath.Join(s.Root(), jobsDirName, "orphan-job")
	if err := os.Mkdir(orphan, 0o755); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(orphan, old, old); err != nil {
		t.Fatal(err)
	}

	// A running job with an equally old directory must survive.
	running, _ := s.Open()
	if err := os.Chtimes(running.Dir, old, old); err != nil {
		t.Fatal(err)
	}

	// A fresh orphan is younger than maxAge.
	fresh := filepath.Join(s.Root(), jobsDirName, "fresh-job")
	if err := os.Mkdir(fresh, 0o755); err != nil {
		t.Fatal(err)
	}

	n, err := s.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if _, err := os.Stat(orphan); !errors.Is(err, os.ErrNotExist) {
		t.Error("orphan should be removed")
	}
	for _, dir := range []string{running.Dir, fresh} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s should survive: %v", dir, err)
		}
	}
}

func TestScratch_Resolve(t *testing.T) {
	s, err := NewScratch(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), "abc_Clip.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		file    string
		wantErr error
	}{
		{"existing", "abc_Clip.mp4", nil},
		{"missing", "nope.mp4", domain.ErrMediaNotFound},
		{"directory", jobsDirName, domain.ErrPathOutsideRoot},
		{"parent", "..", domain.ErrPathOutsideRoot},
		{"traversal", "../abc_Clip.mp4", domain.ErrPathOutsideRoot},
		{"nested", "sub/abc_Clip.mp4", domain.ErrPathOutsideRoot},
		{"backslash", `sub\abc_Clip.mp4`, domain.ErrPathOutsideRoot},
		{"empty", "", domain.ErrPathOutsideRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := s.Resolve(tt.file)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Resolve: %v", err)
				}
				if path != filepath.Join(s.Root(), tt.file) {
					t.Errorf("path = %q", path)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestScratch_SweepDuringOpen(t *testing.T) {
	s, err := NewScratch(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = s.Sweep(0)
			}
		}
	}()

	var jobs []*Job
	for i := 0; i < 200; i++ {
		job, err := s.Open()
		if err != nil {
			close(stop)
			wg.Wait()
			t.Fatalf("Open: %v", err)
		}
		jobs = append(jobs, job)
	}
	close(stop)
	wg.Wait()

	for _, job := range jobs {
		if _, err := os.Stat(job.Dir); err != nil {
			t.Fatalf("live job %s lost its scratch dir: %v", job.ID, err)
		}
	}
}

func TestScratch_OpenFailureUnregisters(t *testing.T) {
	s, err := NewScratch(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(s.Root(), jobsDirName)); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Open(); err == nil {
		t.Fatal("Open should fail without a jobs dir")
	}
	s.mu.Lock()
	n := len(s.active)
	s.mu.Unlock()
	if n != 0 {
		t.Errorf("active = %d after failed Open, want 0", n)
	}
}
