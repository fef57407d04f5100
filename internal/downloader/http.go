// Package downloader fetches stream URLs into local files.
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
)

// Fetcher writes the body of a stream URL to a local path.
type Fetcher interface {
	// Fetch downloads url into dst and returns the number of bytes written.
	// dst either holds the complete body or does not exist.
	Fetch(ctx context.Context, url, dst string) (int64, error)
}

// HTTPDownloader implements Fetcher using plain HTTP GET requests. It never
// retries: stream URLs are short-lived and callers decide what a failure means.
type HTTPDownloader struct {
	// streamClient has no overall timeout; stalls are caught per read.
	streamClient *http.Client
	cfg          config.DownloadConfig
	logger       *slog.Logger
}

// NewHTTPDownloader creates a new HTTP stream fetcher.
func NewHTTPDownloader(cfg config.DownloadConfig, logger *slog.Logger) *HTTPDownloader {
	if logger == nil {
		logger = slog.Default()
	}
	headerTimeout := cfg.Timeout
	if headerTimeout <= 0 {
		headerTimeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout

	return &HTTPDownloader{
		streamClient: &http.Client{Transport: transport},
		cfg:          cfg,
		logger:       logger,
	}
}

// Fetch implements Fetcher.
func (d *HTTPDownloader) Fetch(ctx context.Context, url, dst string) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	if d.cfg.Referer != "" {
		req.Header.Set("Referer", d.cfg.Referer)
	}
	req.Header.Set("Accept", "video/*,audio/*;q=0.9,*/*;q=0.8")

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return 0, err
	}

	pf, err := newPendingFile(dst)
	if err != nil {
		return 0, fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if cerr := pf.Cleanup(); cerr != nil {
			d.logger.Debug("cleanup pending file", "path", dst, "error", cerr)
		}
	}()

	body := newProgressReader(resp.Body, resp.ContentLength, d.cfg.ReadTimeout, cancel, d.logger.With("path", dst))
	n, err := io.Copy(pf, body)
	body.finish()
	if err != nil {
		if body.stalled() {
			return n, fmt.Errorf("download stalled: no data received for %v", d.cfg.ReadTimeout)
		}
		return n, fmt.Errorf("read body: %w", err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}

	if err := pf.CloseAtomicallyReplace(); err != nil {
		return n, fmt.Errorf("commit %s: %w", dst, err)
	}
	return n, nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusForbidden || code == http.StatusUnauthorized || code == http.StatusGone:
		return domain.ErrURLExpired
	case code == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

const (
	progressInterval = 30 * time.Second
	progressStep     = 50 * 1024 * 1024
)

// progressReader tracks download progress and cancels the request when no
// data arrives for readTimeout.
type progressReader struct {
	reader      io.Reader
	total       int64
	readTimeout time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	downloaded int64
	lastLog    time.Time
	nextStep   int64
	watchdog   *time.Timer
	didStall   bool
}

func newProgressReader(r io.Reader, total int64, readTimeout time.Duration, cancel context.CancelFunc, logger *slog.Logger) *progressReader {
	p := &progressReader{
		reader:      r,
		total:       total,
		readTimeout: readTimeout,
		logger:      logger,
		lastLog:     time.Now(),
		nextStep:    progressStep,
	}
	if readTimeout > 0 {
		p.watchdog = time.AfterFunc(readTimeout, func() {
			p.mu.Lock()
			p.didStall = true
			p.mu.Unlock()
			cancel()
		})
	}
	return p
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n == 0 {
		return n, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.downloaded += int64(n)
	if p.watchdog != nil {
		p.watchdog.Reset(p.readTimeout)
	}
	if p.downloaded >= p.nextStep || time.Since(p.lastLog) > progressInterval {
		p.logProgress()
		p.lastLog = time.Now()
		for p.nextStep <= p.downloaded {
			p.nextStep += progressStep
		}
	}
	return n, err
}

func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchdog != nil {
		p.watchdog.Stop()
	}
	if p.downloaded > 0 {
		p.logProgress()
	}
}

func (p *progressReader) stalled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.didStall
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.downloaded) / float64(p.total) * 100
		p.logger.Debug("download progress",
			"downloaded_mb", p.downloaded/(1024*1024),
			"total_mb", p.total/(1024*1024),
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
		return
	}
	p.logger.Debug("download progress", "downloaded_mb", p.downloaded/(1024*1024))
}
