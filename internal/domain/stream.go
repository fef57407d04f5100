package domain

// AudioTrack identifies one language track when a source multiplexes
// several tracks as separate audio streams.
type AudioTrack struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsDefault   bool   `json:"is_default"`
}

// StreamDescriptor is one encoded stream offered by a source.
type StreamDescriptor struct {
	ID            string
	URL           string
	Label         string
	Quality       Quality
	Container     string
	MimeType      string
	HasVideo      bool
	HasAudio      bool
	Bitrate       int64 // bits per second
	ContentLength int64 // bytes, 0 when the source does not report it
	VideoCodec    string
	AudioCodec    string
	AudioTrack    *AudioTrack
}

// IsCombined returns true when the stream carries both audio and video.
func (s StreamDescriptor) IsCombined() bool {
	return s.HasVideo && s.HasAudio
}

// IsVideoOnly returns true for adaptive video streams without audio.
func (s StreamDescriptor) IsVideoOnly() bool {
	return s.HasVideo && !s.HasAudio
}

// IsAudioOnly returns true for adaptive audio streams without video.
func (s StreamDescriptor) IsAudioOnly() bool {
	return s.HasAudio && !s.HasVideo
}

// HasLength returns true when the byte length was reported.
func (s StreamDescriptor) HasLength() bool {
	return s.ContentLength > 0
}

// HasTrackMetadata returns true when the source reported an audio track
// record for the stream, even one without an id.
func (s StreamDescriptor) HasTrackMetadata() bool {
	return s.AudioTrack != nil
}

// TrackID returns the audio track id, or "" when none was reported.
func (s StreamDescriptor) TrackID() string {
	if s.AudioTrack == nil {
		return ""
	}
	return s.AudioTrack.ID
}
