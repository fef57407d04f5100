package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RawCatalog is the payload returned by the metadata collaborator for one source.
type RawCatalog struct {
	SourceID        string      `json:"source_id"`
	Title           string      `json:"title"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
	Streams         []RawStream `json:"streams"`
}

// RawStream is one provider stream descriptor as it appears on the wire.
// Providers are inconsistent about types, so numeric fields accept both
// JSON numbers and decimal strings.
type RawStream struct {
	Itag          FlexInt        `json:"itag"`
	ID            string         `json:"id,omitempty"`
	URL           string         `json:"url"`
	MimeType      string         `json:"mimeType"`
	Bitrate       FlexInt        `json:"bitrate"`
	ContentLength FlexInt        `json:"contentLength"`
	QualityLabel  string         `json:"qualityLabel,omitempty"`
	Quality       string         `json:"quality,omitempty"`
	Height        int            `json:"height,omitempty"`
	HasVideo      *bool          `json:"hasVideo,omitempty"`
	HasAudio      *bool          `json:"hasAudio,omitempty"`
	AudioTrack    *RawAudioTrack `json:"audioTrack,omitempty"`
}

// RawAudioTrack is the provider's audio track sub-record.
type RawAudioTrack struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	AudioIsDefault bool   `json:"audioIsDefault"`
}

// StreamID returns the explicit id, falling back to the itag.
func (r RawStream) StreamID() string {
	if r.ID != "" {
		return r.ID
	}
	if r.Itag.Set && r.Itag.Value > 0 {
		return strconv.FormatInt(r.Itag.Value, 10)
	}
	return ""
}

// FlexInt is an int64 that decodes from a JSON number or a decimal string.
// Set is false when the field was absent, null or an empty string.
type FlexInt struct {
	Value int64
	Set   bool
}

// Int returns a FlexInt holding v.
func Int(v int64) FlexInt {
	return FlexInt{Value: v, Set: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = FlexInt{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = FlexInt{}
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse integer %q: %w", s, err)
		}
		*f = FlexInt{Value: v, Set: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		fv, ferr := n.Float64()
		if ferr != nil {
			return fmt.Errorf("parse integer %s: %w", n, err)
		}
		v = int64(fv)
	}
	*f = FlexInt{Value: v, Set: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}
