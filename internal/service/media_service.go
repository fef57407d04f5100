package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/iconidentify/mediagrab/internal/catalog"
	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/metrics"
	"github.com/iconidentify/mediagrab/internal/repository"
	"github.com/iconidentify/mediagrab/internal/selector"
	"github.com/iconidentify/mediagrab/internal/source"
	"github.com/iconidentify/mediagrab/internal/token"
)

// Acquirer turns a selection into a delivered file.
type Acquirer interface {
	Acquire(ctx context.Context, sel *domain.Selection, title string) (*domain.LocalMediaFile, error)
}

// FileResolver maps a delivered file name to a path under the work root.
type FileResolver interface {
	Resolve(name string) (string, error)
}

// MediaConfig tunes the media service.
type MediaConfig struct {
	Profiles   Profiles
	Selection  selector.Options
	SessionTTL time.Duration
}

// MediaService orchestrates resolve and redeem: catalog lookup, format
// selection, pending offers and acquisition.
type MediaService struct {
	src      source.Source
	sessions repository.SessionStore
	acquirer Acquirer
	files    FileResolver
	cfg      MediaConfig
	logger   *slog.Logger
}

// NewMediaService creates a new media service.
func NewMediaService(
	src source.Source,
	sessions repository.SessionStore,
	acquirer Acquirer,
	files FileResolver,
	cfg MediaConfig,
	logger *slog.Logger,
) *MediaService {
	if cfg.Profiles == nil {
		cfg.Profiles = DefaultProfiles()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaService{
		src:      src,
		sessions: sessions,
		acquirer: acquirer,
		files:    files,
		cfg:      cfg,
		logger:   logger,
	}
}

// Offer is one redeemable format choice.
type Offer struct {
	Label    string               `json:"label"`
	Quality  string               `json:"quality"`
	Kind     domain.CandidateKind `json:"kind"`
	SizeMB   float64              `json:"size_mb"`
	Verified bool                 `json:"verified"`
	Token    string               `json:"token"`
}

// Resolution is the result of resolving one source.
type Resolution struct {
	SourceID        string  `json:"source_id"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Profile         string  `json:"profile"`
	Offers          []Offer `json:"offers"`
}

// Resolve fetches the catalog of sourceID, selects candidates for profile
// and stores each as a pending offer keyed by its token.
func (s *MediaService) Resolve(ctx context.Context, sourceID, profile string) (res *Resolution, err error) {
	sourceID = strings.TrimSpace(sourceID)
	if profile == "" {
		profile = ProfileDefault
	}
	tiers, err := s.cfg.Profiles.Tiers(profile)
	if err != nil {
		return nil, err
	}

	defer func() {
		result := "ok"
		switch {
		case err == nil:
		case domain.IsSourceLimitation(err):
			result = "source_limitation"
		default:
			result = "error"
		}
		metrics.ResolveTotal.WithLabelValues(profile, result).Inc()
	}()

	cat, err := s.fetchCatalog(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if len(cat.Rejected) > 0 {
		s.logger.Debug("catalog entries rejected", "source_id", sourceID, "count", len(cat.Rejected))
	}

	candidates, err := selector.Select(cat, tiers, s.cfg.Selection)
	if err != nil {
		s.logger.Info("no candidates", "source_id", sourceID, "profile", profile, "error", err)
		return nil, err
	}

	res = &Resolution{
		SourceID:        sourceID,
		Title:           cat.Title,
		DurationSeconds: cat.Duration.Seconds(),
		Profile:         profile,
		Offers:          make([]Offer, 0, len(candidates)),
	}
	for _, c := range candidates {
		sel := domain.NewSelection(sourceID, cat.Title, c)
		tok := token.Encode(token.RefOf(sel))
		if err := s.sessions.Put(ctx, tok, sel, s.cfg.SessionTTL); err != nil {
			return nil, fmt.Errorf("store offer: %w", err)
		}
		metrics.CandidatesOffered.WithLabelValues(string(c.Kind)).Inc()
		res.Offers = append(res.Offers, Offer{
			Label:    offerLabel(c),
			Quality:  c.Quality.String(),
			Kind:     c.Kind,
			SizeMB:   math.Round(c.SizeMB*10) / 10,
			Verified: c.Verified,
			Token:    tok,
		})
	}

	s.logger.Info("source resolved",
		"source_id", sourceID,
		"profile", profile,
		"streams", cat.Len(),
		"offers", len(res.Offers),
	)
	return res, nil
}

func offerLabel(c domain.FormatCandidate) string {
	approx := ""
	if !c.Verified {
		approx = "~"
	}
	if c.Kind == domain.KindAudio {
		return fmt.Sprintf("Audio only (%s%.1f MB)", approx, c.SizeMB)
	}
	return fmt.Sprintf("%s (%s%.1f MB)", c.Label, approx, c.SizeMB)
}

// Redeem acquires the offer behind tok. A live session is used as stored;
// otherwise the selection is rebuilt from a fresh catalog by stream id.
// When stored stream URLs turn out to have expired, the selection is
// rebuilt once and retried.
func (s *MediaService) Redeem(ctx context.Context, tok string) (*domain.LocalMediaFile, error) {
	ref, err := token.Decode(tok)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("source_id", ref.SourceID, "kind", ref.Kind, "quality", ref.Quality)

	fromSession := true
	sel, err := s.sessions.Take(ctx, tok)
	if errors.Is(err, domain.ErrSessionNotFound) {
		logger.Info("session missing, rebuilding selection from catalog")
		fromSession = false
		sel, err = s.rebuild(ctx, ref)
	}
	if err != nil {
		return nil, err
	}

	file, err := s.acquirer.Acquire(ctx, sel, sel.Title)
	if err != nil && fromSession && errors.Is(err, domain.ErrURLExpired) {
		logger.Warn("stream URL expired, refreshing catalog", "error", err)
		sel, err = s.rebuild(ctx, ref)
		if err != nil {
			return nil, err
		}
		file, err = s.acquirer.Acquire(ctx, sel, sel.Title)
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

// rebuild reconstructs a selection from a fresh catalog.
func (s *MediaService) rebuild(ctx context.Context, ref token.Ref) (*domain.Selection, error) {
	cat, err := s.fetchCatalog(ctx, ref.SourceID)
	if err != nil {
		return nil, err
	}

	primary, ok := cat.Lookup(ref.VideoID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrStreamNotFound, ref.VideoID)
	}

	c := domain.FormatCandidate{
		Quality:      domain.ParseQuality(ref.Quality),
		Label:        ref.Quality,
		Kind:         ref.Kind,
		AudioTrackID: ref.AudioTrackID,
	}
	switch ref.Kind {
	case domain.KindSplit:
		audio, ok := cat.Lookup(ref.AudioID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrStreamNotFound, ref.AudioID)
		}
		if !primary.HasVideo || !audio.IsAudioOnly() {
			return nil, fmt.Errorf("%w: streams %s+%s no longer split video and audio", domain.ErrStreamNotFound, ref.VideoID, ref.AudioID)
		}
		c.Video, c.Audio = &primary, &audio
		c.SizeBytes = primary.ContentLength + audio.ContentLength
	case domain.KindAudio:
		if !primary.IsAudioOnly() {
			return nil, fmt.Errorf("%w: stream %s is no longer audio only", domain.ErrStreamNotFound, ref.VideoID)
		}
		c.Stream = &primary
		c.SizeBytes = primary.ContentLength
	default:
		if !primary.IsCombined() {
			return nil, fmt.Errorf("%w: stream %s is no longer combined", domain.ErrStreamNotFound, ref.VideoID)
		}
		c.Stream = &primary
		c.SizeBytes = primary.ContentLength
	}
	return domain.NewSelection(ref.SourceID, cat.Title, c), nil
}

func (s *MediaService) fetchCatalog(ctx context.Context, sourceID string) (*catalog.Catalog, error) {
	rc, err := s.src.Fetch(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	cat, err := catalog.BuildFrom(rc)
	if err != nil {
		return nil, err
	}
	if cat.SourceID == "" {
		cat.SourceID = sourceID
	}
	return cat, nil
}

// Open opens a delivered file for reading.
func (s *MediaService) Open(name string) (*os.File, os.FileInfo, error) {
	path, err := s.files.Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open media: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat media: %w", err)
	}
	return f, info, nil
}

// Discard removes a delivered file once the caller is done with it.
func (s *MediaService) Discard(ctx context.Context, name string) error {
	path, err := s.files.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrMediaNotFound
		}
		return fmt.Errorf("remove media: %w", err)
	}
	s.logger.Info("media discarded", "name", name)
	return nil
}

// Profiles returns the configured profile names.
func (s *MediaService) Profiles() []string {
	return s.cfg.Profiles.Names()
}
