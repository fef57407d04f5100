// Package source fetches raw stream catalogs from the metadata collaborator.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/iconidentify/mediagrab/internal/catalog"
	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
)

// Source returns the raw catalog of one source.
type Source interface {
	Fetch(ctx context.Context, sourceID string) (*catalog.RawCatalog, error)
}

// maxCatalogBytes bounds a catalog response body.
const maxCatalogBytes = 8 << 20

// HTTPSource implements Source against GET {base}/catalog/{id}.
type HTTPSource struct {
	baseURL    string
	retry      RetryConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPSource creates a collaborator client.
func NewHTTPSource(cfg config.SourceConfig, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	retry := RetryConfig{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.RetryDelay,
		MaxDelay:      cfg.MaxRetryDelay,
		BackoffFactor: 2.0,
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		retry:      retry,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// statusError is a non-200 collaborator response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog API error (status %d): %s", e.code, e.body)
}

// Fetch retrieves the raw catalog, retrying rate limits, server errors and
// network failures. An unknown source fails immediately.
func (s *HTTPSource) Fetch(ctx context.Context, sourceID string) (*catalog.RawCatalog, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, fmt.Errorf("%w: empty source id", domain.ErrSourceNotFound)
	}

	attempt := 0
	rc, err := RetryWithCheck(ctx, s.retry, func() (*catalog.RawCatalog, error) {
		attempt++
		rc, err := s.fetchOnce(ctx, sourceID)
		if err != nil && shouldRetry(err) {
			s.logger.Warn("catalog fetch failed", "source_id", sourceID, "attempt", attempt, "error", err)
		}
		return rc, err
	}, shouldRetry)
	if err != nil {
		return nil, err
	}
	if rc.SourceID == "" {
		rc.SourceID = sourceID
	}
	return rc, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context, sourceID string) (*catalog.RawCatalog, error) {
	endpoint := s.baseURL + "/catalog/" + url.PathEscape(sourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, sourceID)
	case resp.StatusCode != http.StatusOK:
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(body), 200)}
	}

	return decode(body)
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrSourceNotFound) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	var de *decodeError
	return !errors.As(err, &de)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "unmarshal catalog: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func decode(data []byte) (*catalog.RawCatalog, error) {
	var rc catalog.RawCatalog
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, &decodeError{err: err}
	}
	return &rc, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// FileSource reads catalogs saved as JSON files, one per source id, from a
// directory. A source id that names an existing file is read directly.
type FileSource struct {
	Dir string
}

// Fetch implements Source.
func (f FileSource) Fetch(ctx context.Context, sourceID string) (*catalog.RawCatalog, error) {
	path := sourceID
	if _, err := os.Stat(path); err != nil {
		if f.Dir == "" || strings.ContainsAny(sourceID, `/\`) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, sourceID)
		}
		path = filepath.Join(f.Dir, sourceID+".json")
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	rc, err := decode(data)
	if err != nil {
		return nil, err
	}
	if rc.SourceID == "" {
		rc.SourceID = strings.TrimSuffix(filepath.Base(sourceID), ".json")
	}
	return rc, nil
}
