package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/mediagrab/internal/domain"
)

const jobsDirName = ".jobs"

// Scratch owns the work root. Every job gets a private directory under
// <root>/.jobs/<id>/ and all its intermediate files carry the job id.
type Scratch struct {
	root    string
	jobsDir string
	logger  *slog.Logger

	mu     sync.Mutex
	active map[domain.JobID]struct{}
}

// Job is one acquisition's scratch namespace.
type Job struct {
	ID        domain.JobID
	Dir       string
	CreatedAt time.Time
}

// Path returns the scratch path of a named part, e.g. "video" or "audio.m4a".
func (j *Job) Path(part string) string {
	return filepath.Join(j.Dir, j.ID.String()+"."+part)
}

// NewScratch creates the work root and jobs directory if needed.
func NewScratch(root string, logger *slog.Logger) (*Scratch, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve work root: %w", err)
	}
	jobsDir := filepath.Join(abs, jobsDirName)
	if err := os.MkdirAll(jobsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	return &Scratch{
		root:    abs,
		jobsDir: jobsDir,
		logger:  logger,
		active:  make(map[domain.JobID]struct{}),
	}, nil
}

// Root returns the absolute work root.
func (s *Scratch) Root() string {
	return s.root
}

// Open allocates a new job with a fresh unique id.
func (s *Scratch) Open() (*Job, error) {
	id := domain.JobID(uuid.New().String())
	dir := filepath.Join(s.jobsDir, id.String())

	// Registered before the directory exists so Sweep never sees it unowned.
	s.mu.Lock()
	s.active[id] = struct{}{}
	s.mu.Unlock()

	if err := os.Mkdir(dir, 0o755); err != nil {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	return &Job{ID: id, Dir: dir, CreatedAt: time.Now().UTC()}, nil
}

// Release removes the job's scratch directory and every entry under the
// work root whose name contains the job id, except keep. Pass keep="" to
// remove everything. Release is safe to call more than once.
func (s *Scratch) Release(job *Job, keep string) error {
	if job == nil {
		return nil
	}
	defer func() {
		s.mu.Lock()
		delete(s.active, job.ID)
		s.mu.Unlock()
	}()

	var errs []error
	if err := os.RemoveAll(job.Dir); err != nil {
		errs = append(errs, err)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		errs = append(errs, fmt.Errorf("list work root: %w", err))
		return errors.Join(errs...)
	}
	if keep != "" {
		keep = filepath.Clean(keep)
	}
	for _, e := range entries {
		if !strings.Contains(e.Name(), job.ID.String()) {
			continue
		}
		path := filepath.Join(s.root, e.Name())
		if path == keep {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("scratch release incomplete", "job_id", job.ID, "error", err)
		return err
	}
	return nil
}

// Sweep removes scratch directories older than maxAge that no running job
// owns, typically left behind by a crash. It returns how many were removed.
func (s *Scratch) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.jobsDir)
	if err != nil {
		return 0, fmt.Errorf("list jobs dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s.mu.Lock()
		_, running := s.active[domain.JobID(e.Name())]
		s.mu.Unlock()
		if running {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.jobsDir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Resolve maps a deliverable file name to its path, refusing anything that
// is not a plain file directly under the work root.
func (s *Scratch) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." ||
		strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", domain.ErrPathOutsideRoot, name)
	}
	path := filepath.Join(s.root, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.ErrMediaNotFound
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", domain.ErrMediaNotFound
	}
	return path, nil
}
