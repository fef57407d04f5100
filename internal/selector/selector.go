// Package selector resolves a stream catalog into size-bounded format
// candidates, one per requested quality tier.
package selector

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/iconidentify/mediagrab/internal/catalog"
	"github.com/iconidentify/mediagrab/internal/domain"
)

// UnknownSizePolicy decides what happens to streams with no reported length.
type UnknownSizePolicy string

const (
	// UnknownSizeSkip never emits a candidate whose size cannot be verified.
	UnknownSizeSkip UnknownSizePolicy = "skip"
	// UnknownSizeFlag estimates size from bitrate and duration and emits the
	// candidate with Verified=false when the estimate fits.
	UnknownSizeFlag UnknownSizePolicy = "flag"
)

// ParseUnknownSizePolicy parses a policy name. Empty means skip.
func ParseUnknownSizePolicy(s string) (UnknownSizePolicy, error) {
	switch UnknownSizePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnknownSizeSkip:
		return UnknownSizeSkip, nil
	case UnknownSizeFlag:
		return UnknownSizeFlag, nil
	default:
		return "", fmt.Errorf("unknown size policy %q", s)
	}
}

// Tier is a target quality paired with a maximum total size.
type Tier struct {
	Quality   domain.Quality
	CeilingMB float64
}

// NewTier builds a tier from a label in any accepted spelling.
func NewTier(label string, ceilingMB float64) (Tier, error) {
	q := domain.ParseQuality(label)
	if q == domain.QualityUnknown {
		return Tier{}, fmt.Errorf("unknown quality label %q", label)
	}
	if ceilingMB <= 0 {
		return Tier{}, fmt.Errorf("tier %s: ceiling must be positive", label)
	}
	return Tier{Quality: q, CeilingMB: ceilingMB}, nil
}

// Options tunes selection.
type Options struct {
	UnknownSize UnknownSizePolicy
}

// Select evaluates tiers in caller order and returns at most one candidate
// per quality. It is a pure function of its inputs.
func Select(cat *catalog.Catalog, tiers []Tier, opts Options) ([]domain.FormatCandidate, error) {
	if cat == nil || cat.Len() == 0 {
		return nil, domain.ErrEmptyCatalog
	}
	if opts.UnknownSize == "" {
		opts.UnknownSize = UnknownSizeSkip
	}

	s := &tierSelector{cat: cat, opts: opts}
	audio, audioErr := ChooseAudioTrack(cat.AudioOnly())
	if audioErr == nil {
		s.audio = &audio
	}

	var out []domain.FormatCandidate
	byQuality := make(map[domain.Quality]int)
	for _, t := range tiers {
		if !t.Quality.IsVideo() && t.Quality != domain.QualityAudio {
			continue
		}
		c, ok := s.selectTier(t)
		if !ok {
			continue
		}
		if i, dup := byQuality[c.Quality]; dup {
			if out[i].Kind == domain.KindSplit && c.Kind == domain.KindCombined {
				out[i] = c
			}
			continue
		}
		byQuality[c.Quality] = len(out)
		out = append(out, c)
	}

	if len(out) == 0 {
		if audioErr != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrNoSuitableFormat, audioErr)
		}
		return nil, domain.ErrNoSuitableFormat
	}
	return out, nil
}

type tierSelector struct {
	cat   *catalog.Catalog
	opts  Options
	audio *domain.StreamDescriptor
}

func (s *tierSelector) selectTier(t Tier) (domain.FormatCandidate, bool) {
	ceiling := domain.MBToBytes(t.CeilingMB)

	if t.Quality == domain.QualityAudio {
		if s.audio == nil {
			return domain.FormatCandidate{}, false
		}
		size, verified, ok := s.size(*s.audio)
		if !ok || size > ceiling {
			return domain.FormatCandidate{}, false
		}
		a := *s.audio
		return domain.FormatCandidate{
			Quality:      t.Quality,
			Label:        t.Quality.String(),
			Kind:         domain.KindAudio,
			SizeBytes:    size,
			SizeMB:       domain.BytesToMB(size),
			Verified:     verified,
			Stream:       &a,
			AudioTrackID: a.TrackID(),
		}, true
	}

	if c, ok := s.combined(t, ceiling); ok {
		return c, true
	}
	return s.split(t, ceiling)
}

func (s *tierSelector) combined(t Tier, ceiling int64) (domain.FormatCandidate, bool) {
	streams := s.cat.Combined(t.Quality)
	slices.SortStableFunc(streams, func(a, b domain.StreamDescriptor) int {
		if ra, rb := containerRank(a.Container), containerRank(b.Container); ra != rb {
			return ra - rb
		}
		return compareDesc(a.Bitrate, b.Bitrate)
	})

	for _, st := range streams {
		size, verified, ok := s.size(st)
		if !ok || size > ceiling {
			continue
		}
		return domain.FormatCandidate{
			Quality:   t.Quality,
			Label:     t.Quality.String(),
			Kind:      domain.KindCombined,
			SizeBytes: size,
			SizeMB:    domain.BytesToMB(size),
			Verified:  verified,
			Stream:    &st,
		}, true
	}
	return domain.FormatCandidate{}, false
}

func (s *tierSelector) split(t Tier, ceiling int64) (domain.FormatCandidate, bool) {
	if s.audio == nil {
		return domain.FormatCandidate{}, false
	}
	audioSize, audioVerified, ok := s.size(*s.audio)
	if !ok {
		return domain.FormatCandidate{}, false
	}

	var videos []domain.StreamDescriptor
	for _, v := range s.cat.VideoOnly(t.Quality) {
		if catalog.RemuxableToMP4(v.VideoCodec) {
			videos = append(videos, v)
		}
	}
	slices.SortStableFunc(videos, func(a, b domain.StreamDescriptor) int {
		return compareDesc(a.Bitrate, b.Bitrate)
	})

	for _, v := range videos {
		videoSize, videoVerified, ok := s.size(v)
		if !ok {
			continue
		}
		total := videoSize + audioSize
		if total > ceiling {
			continue
		}
		a := *s.audio
		return domain.FormatCandidate{
			Quality:      t.Quality,
			Label:        t.Quality.String(),
			Kind:         domain.KindSplit,
			SizeBytes:    total,
			SizeMB:       domain.BytesToMB(total),
			Verified:     videoVerified && audioVerified,
			Video:        &v,
			Audio:        &a,
			AudioTrackID: a.TrackID(),
		}, true
	}
	return domain.FormatCandidate{}, false
}

// size returns the byte length used for budgeting. ok is false when the
// length cannot be established under the active policy.
func (s *tierSelector) size(st domain.StreamDescriptor) (int64, bool, bool) {
	if st.HasLength() {
		return st.ContentLength, true, true
	}
	if s.opts.UnknownSize != UnknownSizeFlag {
		return 0, false, false
	}
	est := estimateSize(st.Bitrate, s.cat.Duration)
	if est <= 0 {
		return 0, false, false
	}
	return est, false, true
}

func estimateSize(bitrate int64, d time.Duration) int64 {
	if bitrate <= 0 || d <= 0 {
		return 0
	}
	return int64(float64(bitrate) * d.Seconds() / 8)
}

// containerRank orders containers by how broadly they play; lower is better.
func containerRank(c string) int {
	switch strings.ToLower(c) {
	case "mp4", "m4a":
		return 0
	case "webm":
		return 1
	default:
		return 2
	}
}

func compareDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
