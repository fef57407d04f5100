package domain

import "time"

// CandidateKind describes how a candidate is acquired.
type CandidateKind string

const (
	// KindCombined is one stream carrying audio and video.
	KindCombined CandidateKind = "combined"
	// KindSplit is a video-only and an audio-only stream remuxed together.
	KindSplit CandidateKind = "split"
	// KindAudio is a single audio-only stream.
	KindAudio CandidateKind = "audio"
)

// MediaKind is the kind of file handed back to the delivery layer.
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

// MediaKind returns the delivered media kind for a candidate kind.
func (k CandidateKind) MediaKind() MediaKind {
	if k == KindAudio {
		return MediaKindAudio
	}
	return MediaKindVideo
}

const bytesPerMB = 1024 * 1024

// MBToBytes converts a ceiling in MiB to bytes.
func MBToBytes(mb float64) int64 {
	return int64(mb * bytesPerMB)
}

// BytesToMB converts a byte count to MiB.
func BytesToMB(n int64) float64 {
	return float64(n) / bytesPerMB
}

// FormatCandidate is a resolved, user-facing choice.
type FormatCandidate struct {
	Quality   Quality
	Label     string
	Kind      CandidateKind
	SizeBytes int64
	SizeMB    float64
	// Verified is false when the size was estimated from bitrate rather than reported.
	Verified bool

	// Stream is set for combined and audio candidates.
	Stream *StreamDescriptor
	// Video and Audio are set for split candidates.
	Video *StreamDescriptor
	Audio *StreamDescriptor
	// AudioTrackID is the track selected on the audio stream, "" when the
	// stream carried no track metadata.
	AudioTrackID string
}

// StreamRef is the fetchable part of a stream kept in a pending selection.
type StreamRef struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Container     string `json:"container"`
	ContentLength int64  `json:"content_length,omitempty"`
}

// Selection is a candidate in redeemable form: everything the acquisition
// engine needs without consulting the catalog again.
type Selection struct {
	SourceID     string        `json:"source_id"`
	Title        string        `json:"title"`
	Kind         CandidateKind `json:"kind"`
	Quality      string        `json:"quality"`
	SizeBytes    int64         `json:"size_bytes"`
	Primary      StreamRef     `json:"primary"`
	Audio        *StreamRef    `json:"audio,omitempty"`
	AudioTrackID string        `json:"audio_track_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// IsSplit returns true when the selection needs two fetches and a remux.
func (s *Selection) IsSplit() bool {
	return s.Kind == KindSplit && s.Audio != nil
}

// NewSelection converts a candidate into a selection for sourceID.
func NewSelection(sourceID, title string, c FormatCandidate) *Selection {
	sel := &Selection{
		SourceID:     sourceID,
		Title:        title,
		Kind:         c.Kind,
		Quality:      c.Quality.String(),
		SizeBytes:    c.SizeBytes,
		AudioTrackID: c.AudioTrackID,
		CreatedAt:    time.Now(),
	}
	switch c.Kind {
	case KindSplit:
		sel.Primary = refOf(c.Video)
		audio := refOf(c.Audio)
		sel.Audio = &audio
	default:
		sel.Primary = refOf(c.Stream)
	}
	return sel
}

func refOf(s *StreamDescriptor) StreamRef {
	if s == nil {
		return StreamRef{}
	}
	return StreamRef{
		ID:            s.ID,
		URL:           s.URL,
		Container:     s.Container,
		ContentLength: s.ContentLength,
	}
}

// LocalMediaFile is the single deliverable produced by a job. Removing it
// after delivery is the caller's responsibility.
type LocalMediaFile struct {
	Path  string    `json:"path"`
	Name  string    `json:"name"`
	Kind  MediaKind `json:"media_kind"`
	Size  int64     `json:"size"`
	JobID JobID     `json:"job_id"`
}
