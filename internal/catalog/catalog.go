// Package catalog normalizes provider stream descriptors into typed records
// the selector can reason about.
package catalog

import (
	"fmt"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/mediagrab/internal/domain"
)

// Rejection records a raw entry that failed validation.
type Rejection struct {
	Index  int
	ID     string
	Reason string
}

// Catalog holds the validated streams of one source.
type Catalog struct {
	SourceID string
	Title    string
	Duration time.Duration
	Streams  []domain.StreamDescriptor
	Rejected []Rejection

	byQuality map[domain.Quality][]int
	byID      map[string]int
}

// Build validates raw descriptors into a Catalog. It fails with
// domain.ErrEmptyCatalog when the source reports zero streams or when every
// entry is malformed. Streams are never discarded for quality reasons.
func Build(raw []RawStream) (*Catalog, error) {
	if len(raw) == 0 {
		return nil, domain.ErrEmptyCatalog
	}

	c := &Catalog{
		Streams:   make([]domain.StreamDescriptor, 0, len(raw)),
		byQuality: make(map[domain.Quality][]int),
		byID:      make(map[string]int, len(raw)),
	}

	for i, r := range raw {
		sd, err := normalize(r)
		if err != nil {
			c.Rejected = append(c.Rejected, Rejection{Index: i, ID: r.StreamID(), Reason: err.Error()})
			continue
		}
		if _, dup := c.byID[sd.ID]; dup {
			c.Rejected = append(c.Rejected, Rejection{Index: i, ID: sd.ID, Reason: "duplicate stream id"})
			continue
		}
		idx := len(c.Streams)
		c.Streams = append(c.Streams, sd)
		c.byID[sd.ID] = idx
		c.byQuality[sd.Quality] = append(c.byQuality[sd.Quality], idx)
	}

	if len(c.Streams) == 0 {
		return nil, fmt.Errorf("%w: all %d entries malformed", domain.ErrEmptyCatalog, len(raw))
	}
	return c, nil
}

// BuildFrom builds a catalog from a collaborator payload, keeping its
// source id, title and duration.
func BuildFrom(rc *RawCatalog) (*Catalog, error) {
	if rc == nil {
		return nil, domain.ErrEmptyCatalog
	}
	c, err := Build(rc.Streams)
	if err != nil {
		return nil, err
	}
	c.SourceID = rc.SourceID
	c.Title = rc.Title
	if rc.DurationSeconds > 0 {
		c.Duration = time.Duration(rc.DurationSeconds * float64(time.Second))
	}
	return c, nil
}

// Len returns the number of valid streams.
func (c *Catalog) Len() int {
	return len(c.Streams)
}

// Lookup finds a stream by id.
func (c *Catalog) Lookup(id string) (domain.StreamDescriptor, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return domain.StreamDescriptor{}, false
	}
	return c.Streams[idx], true
}

// ByQuality returns the streams of tier q in catalog order.
func (c *Catalog) ByQuality(q domain.Quality) []domain.StreamDescriptor {
	idxs := c.byQuality[q]
	out := make([]domain.StreamDescriptor, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, c.Streams[i])
	}
	return out
}

// Combined returns combined audio+video streams of tier q.
func (c *Catalog) Combined(q domain.Quality) []domain.StreamDescriptor {
	return c.filter(q, domain.StreamDescriptor.IsCombined)
}

// VideoOnly returns video-only streams of tier q.
func (c *Catalog) VideoOnly(q domain.Quality) []domain.StreamDescriptor {
	return c.filter(q, domain.StreamDescriptor.IsVideoOnly)
}

// AudioOnly returns every audio-only stream.
func (c *Catalog) AudioOnly() []domain.StreamDescriptor {
	return c.filter(domain.QualityAudio, domain.StreamDescriptor.IsAudioOnly)
}

func (c *Catalog) filter(q domain.Quality, keep func(domain.StreamDescriptor) bool) []domain.StreamDescriptor {
	var out []domain.StreamDescriptor
	for _, i := range c.byQuality[q] {
		if keep(c.Streams[i]) {
			out = append(out, c.Streams[i])
		}
	}
	return out
}

func normalize(r RawStream) (domain.StreamDescriptor, error) {
	id := r.StreamID()
	if id == "" {
		return domain.StreamDescriptor{}, fmt.Errorf("missing stream id")
	}
	if strings.TrimSpace(r.URL) == "" {
		return domain.StreamDescriptor{}, fmt.Errorf("missing url")
	}
	if r.Bitrate.Value < 0 {
		return domain.StreamDescriptor{}, fmt.Errorf("negative bitrate %d", r.Bitrate.Value)
	}
	if r.ContentLength.Value < 0 {
		return domain.StreamDescriptor{}, fmt.Errorf("negative content length %d", r.ContentLength.Value)
	}

	sd := domain.StreamDescriptor{
		ID:            id,
		URL:           r.URL,
		MimeType:      r.MimeType,
		Bitrate:       r.Bitrate.Value,
		ContentLength: r.ContentLength.Value,
	}

	mediaType, codecs, err := parseMime(r.MimeType)
	if err != nil && (r.HasVideo == nil || r.HasAudio == nil) {
		return domain.StreamDescriptor{}, fmt.Errorf("mime type %q: %w", r.MimeType, err)
	}
	if err == nil {
		major, sub, _ := strings.Cut(mediaType, "/")
		sd.Container = sub
		for _, codec := range codecs {
			switch {
			case isVideoCodec(codec):
				if sd.VideoCodec == "" {
					sd.VideoCodec = codec
				}
			case isAudioCodec(codec):
				if sd.AudioCodec == "" {
					sd.AudioCodec = codec
				}
			}
		}
		sd.HasVideo = major == "video"
		sd.HasAudio = major == "audio" || (major == "video" && sd.AudioCodec != "")
	}
	if r.HasVideo != nil {
		sd.HasVideo = *r.HasVideo
	}
	if r.HasAudio != nil {
		sd.HasAudio = *r.HasAudio
	}
	if !sd.HasVideo && !sd.HasAudio {
		return domain.StreamDescriptor{}, fmt.Errorf("stream carries neither video nor audio")
	}

	sd.Label = r.QualityLabel
	if sd.Label == "" {
		sd.Label = r.Quality
	}
	if sd.Label == "" && r.Height > 0 {
		sd.Label = strconv.Itoa(r.Height) + "p"
	}
	if sd.HasVideo {
		sd.Quality = domain.ParseQuality(sd.Label)
		if sd.Quality == domain.QualityAudio {
			sd.Quality = domain.QualityUnknown
		}
	} else {
		sd.Quality = domain.QualityAudio
	}

	if r.AudioTrack != nil && sd.HasAudio {
		sd.AudioTrack = &domain.AudioTrack{
			ID:          r.AudioTrack.ID,
			DisplayName: r.AudioTrack.DisplayName,
			IsDefault:   r.AudioTrack.AudioIsDefault,
		}
	}
	return sd, nil
}

// parseMime splits `video/mp4; codecs="avc1.64001F, mp4a.40.2"` into the
// media type and the codec list.
func parseMime(s string) (string, []string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil, fmt.Errorf("empty")
	}
	mediaType, params, err := mime.ParseMediaType(s)
	if err != nil {
		return "", nil, err
	}
	if !strings.HasPrefix(mediaType, "video/") && !strings.HasPrefix(mediaType, "audio/") {
		return "", nil, fmt.Errorf("unsupported media type %s", mediaType)
	}
	var codecs []string
	for _, c := range strings.Split(params["codecs"], ",") {
		if c = strings.TrimSpace(c); c != "" {
			codecs = append(codecs, c)
		}
	}
	return mediaType, codecs, nil
}

var videoCodecPrefixes = []string{"avc1", "avc3", "h264", "hev1", "hvc1", "hevc", "av01", "vp09", "vp9", "vp8", "theora"}

var audioCodecPrefixes = []string{"mp4a", "aac", "opus", "vorbis", "mp3", "ac-3", "ec-3", "flac"}

func isVideoCodec(codec string) bool {
	return hasAnyPrefix(strings.ToLower(codec), videoCodecPrefixes)
}

func isAudioCodec(codec string) bool {
	return hasAnyPrefix(strings.ToLower(codec), audioCodecPrefixes)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// RemuxableToMP4 reports whether a video codec can be stream-copied into an
// mp4 container. An unreported codec is accepted; only codecs known to be
// incompatible are refused.
func RemuxableToMP4(codec string) bool {
	c := strings.ToLower(codec)
	if c == "" {
		return true
	}
	return hasAnyPrefix(c, []string{"avc1", "avc3", "h264", "hev1", "hvc1", "hevc", "av01", "vp09", "vp9"})
}
