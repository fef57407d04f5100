// Package engine turns a chosen selection into exactly one local media file,
// fetching streams into a per-job scratch namespace and remuxing split
// video and audio with ffmpeg.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/downloader"
	"github.com/iconidentify/mediagrab/internal/metrics"
	"github.com/iconidentify/mediagrab/pkg/ffmpeg"
)

// Remuxer merges a video-only and an audio-only file.
type Remuxer interface {
	Merge(ctx context.Context, videoPath, audioPath, outPath string, mode ffmpeg.Mode) error
	IsAvailable() bool
}

// Prober is implemented by remuxers that can inspect their output.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// JobRecorder receives every job state transition.
type JobRecorder interface {
	RecordJob(ctx context.Context, job *domain.AcquisitionJob) error
}

// Options configures an Acquirer.
type Options struct {
	TitleMaxLen int
	// MinFreeFactor is the free space required as a multiple of the
	// estimated size. Zero disables the check.
	MinFreeFactor float64
}

// Acquirer executes selections. It is safe for concurrent use; jobs share
// nothing but the work root.
type Acquirer struct {
	scratch  *Scratch
	fetcher  downloader.Fetcher
	remuxer  Remuxer
	recorder JobRecorder
	opts     Options
	logger   *slog.Logger

	freeSpace func(path string) (int64, bool)
	stat      func(path string) (os.FileInfo, error)
}

// NewAcquirer creates an acquirer. recorder may be nil.
func NewAcquirer(
	scratch *Scratch,
	fetcher downloader.Fetcher,
	remuxer Remuxer,
	recorder JobRecorder,
	opts Options,
	logger *slog.Logger,
) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TitleMaxLen <= 0 {
		opts.TitleMaxLen = 20
	}
	return &Acquirer{
		scratch:   scratch,
		fetcher:   fetcher,
		remuxer:   remuxer,
		recorder:  recorder,
		opts:      opts,
		logger:    logger,
		freeSpace: freeBytes,
		stat:      os.Stat,
	}
}

// Acquire downloads sel and returns the single deliverable. title names the
// output; when empty the selection's title is used. Whatever happens, no
// file carrying the job id survives except the returned one.
func (a *Acquirer) Acquire(ctx context.Context, sel *domain.Selection, title string) (result *domain.LocalMediaFile, err error) {
	if sel == nil || sel.Primary.URL == "" {
		return nil, fmt.Errorf("acquire: empty selection")
	}
	if sel.Kind == domain.KindSplit && sel.Audio == nil {
		return nil, fmt.Errorf("acquire: %w", domain.ErrNoAudioAvailable)
	}
	if sel.IsSplit() && (a.remuxer == nil || !a.remuxer.IsAvailable()) {
		return nil, fmt.Errorf("acquire: %w", domain.ErrSubprocessUnavailable)
	}
	if err := a.checkFreeSpace(sel.SizeBytes); err != nil {
		return nil, err
	}
	if title == "" {
		title = sel.Title
	}

	job, err := a.scratch.Open()
	if err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}

	rec := domain.NewAcquisitionJob(job.ID, job.Dir)
	rec.SourceID = sel.SourceID
	rec.Quality = domain.ParseQuality(sel.Quality)
	rec.Kind = sel.Kind

	logger := a.logger.With("job_id", job.ID, "source_id", sel.SourceID, "kind", sel.Kind, "quality", sel.Quality)
	start := time.Now()
	metrics.ActiveJobs.Inc()
	a.record(ctx, rec, logger)

	var keep string
	defer func() {
		metrics.ActiveJobs.Dec()
		if err != nil {
			rec.MarkFailed(err)
			logger.Warn("acquisition failed", "error", err)
		} else {
			rec.MarkCompleted()
			logger.Info("acquisition completed", "path", keep, "size_bytes", result.Size, "merge_mode", rec.MergeMode)
		}
		// Recording must outlive a canceled request.
		recordCtx := context.WithoutCancel(ctx)
		a.record(recordCtx, rec, logger)

		if rerr := a.scratch.Release(job, keep); rerr != nil {
			logger.Error("release scratch", "error", rerr)
		} else {
			rec.MarkCleaned()
			a.record(recordCtx, rec, logger)
		}
		metrics.RecordJob(string(sel.Kind), string(rec.Outcome), time.Since(start))
	}()

	rec.MarkFetching()
	a.record(ctx, rec, logger)

	var out, ext string
	if sel.IsSplit() {
		out, err = a.acquireSplit(ctx, job, sel, rec, logger)
		ext = "mp4"
	} else {
		out, err = a.acquireSingle(ctx, job, sel, logger)
		ext = extensionFor(sel)
	}
	if err != nil {
		return nil, domain.NewJobError(job.ID, "acquire", err)
	}

	name := DeliverableName(job.ID.String(), title, a.opts.TitleMaxLen, ext)
	final := filepath.Join(a.scratch.Root(), name)
	if err := os.Rename(out, final); err != nil {
		return nil, domain.NewJobError(job.ID, "deliver", err)
	}
	info, err := a.stat(final)
	if err != nil {
		return nil, domain.NewJobError(job.ID, "deliver", err)
	}
	keep = final

	return &domain.LocalMediaFile{
		Path:  final,
		Name:  name,
		Kind:  sel.Kind.MediaKind(),
		Size:  info.Size(),
		JobID: job.ID,
	}, nil
}

func (a *Acquirer) acquireSingle(ctx context.Context, job *Job, sel *domain.Selection, logger *slog.Logger) (string, error) {
	dst := job.Path("stream")
	logger.Info("fetching stream", "stream_id", sel.Primary.ID)
	if err := a.fetch(ctx, sel.Primary.URL, dst, "single"); err != nil {
		return "", err
	}
	return dst, nil
}

func (a *Acquirer) acquireSplit(ctx context.Context, job *Job, sel *domain.Selection, rec *domain.AcquisitionJob, logger *slog.Logger) (string, error) {
	videoPath := job.Path("video")
	audioPath := job.Path("audio")

	logger.Info("fetching split streams", "video_id", sel.Primary.ID, "audio_id", sel.Audio.ID)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.fetch(gctx, sel.Primary.URL, videoPath, "video")
	})
	g.Go(func() error {
		return a.fetch(gctx, sel.Audio.URL, audioPath, "audio")
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	rec.MarkAssembling()
	a.record(ctx, rec, logger)

	out := job.Path("merged.mp4")
	mode, err := a.merge(ctx, videoPath, audioPath, out, logger)
	if err != nil {
		return "", err
	}
	rec.MergeMode = mode
	return out, nil
}

// merge tries a stream copy first and falls back to re-encoding audio once.
func (a *Acquirer) merge(ctx context.Context, videoPath, audioPath, out string, logger *slog.Logger) (domain.MergeMode, error) {
	copyErr := a.mergeOnce(ctx, videoPath, audioPath, out, ffmpeg.ModeCopy)
	if copyErr == nil {
		return domain.MergeModeCopy, nil
	}
	if errors.Is(copyErr, ffmpeg.ErrNotFound) {
		return "", fmt.Errorf("%w: %v", domain.ErrSubprocessUnavailable, copyErr)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	logger.Warn("stream copy failed, re-encoding audio", "error", copyErr)
	_ = os.Remove(out)

	reencodeErr := a.mergeOnce(ctx, videoPath, audioPath, out, ffmpeg.ModeReencodeAudio)
	if reencodeErr == nil {
		return domain.MergeModeReencode, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", fmt.Errorf("%w: copy: %v; reencode: %v", domain.ErrMergeFailure, copyErr, reencodeErr)
}

func (a *Acquirer) mergeOnce(ctx context.Context, videoPath, audioPath, out string, mode ffmpeg.Mode) error {
	err := a.remuxer.Merge(ctx, videoPath, audioPath, out, mode)
	if err == nil {
		err = a.verify(ctx, out)
	}
	metrics.RecordMerge(string(mode), err)
	return err
}

// verify checks that the merged file carries both tracks when ffprobe is
// present.
func (a *Acquirer) verify(ctx context.Context, path string) error {
	prober, ok := a.remuxer.(Prober)
	if !ok {
		return nil
	}
	info, err := prober.Probe(ctx, path)
	if errors.Is(err, ffmpeg.ErrProbeUnavailable) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("probe output: %w", err)
	}
	if !info.HasVideo || !info.HasAudio {
		return fmt.Errorf("output missing tracks: video=%t audio=%t", info.HasVideo, info.HasAudio)
	}
	return nil
}

func (a *Acquirer) fetch(ctx context.Context, url, dst, part string) error {
	n, err := a.fetcher.Fetch(ctx, url, dst)
	metrics.FetchedBytes.WithLabelValues(part).Add(float64(n))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrStreamFetchFailure, part, err)
	}
	return nil
}

func (a *Acquirer) checkFreeSpace(size int64) error {
	if a.opts.MinFreeFactor <= 0 || size <= 0 || a.freeSpace == nil {
		return nil
	}
	free, ok := a.freeSpace(a.scratch.Root())
	if !ok {
		return nil
	}
	need := int64(float64(size) * a.opts.MinFreeFactor)
	if free < need {
		return fmt.Errorf("%w: need %d MB, have %d MB", domain.ErrStorageFull, need/(1024*1024), free/(1024*1024))
	}
	return nil
}

func (a *Acquirer) record(ctx context.Context, job *domain.AcquisitionJob, logger *slog.Logger) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordJob(ctx, job); err != nil {
		logger.Warn("record job", "state", job.State, "error", err)
	}
}

func extensionFor(sel *domain.Selection) string {
	switch c := strings.ToLower(sel.Primary.Container); c {
	case "":
		if sel.Kind == domain.KindAudio {
			return "m4a"
		}
		return "mp4"
	case "mpeg":
		return "mp3"
	default:
		return c
	}
}
