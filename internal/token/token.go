// Package token encodes format selections into opaque strings the chat
// layer echoes back at download time.
package token

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/iconidentify/mediagrab/internal/domain"
)

const prefix = "mg1."

// Ref is the information a token carries: enough to rebuild a download
// from a fresh catalog of the same source.
type Ref struct {
	SourceID     string
	Kind         domain.CandidateKind
	Quality      string
	VideoID      string
	AudioID      string
	AudioTrackID string
}

// RefOf returns the reference for a selection.
func RefOf(sel *domain.Selection) Ref {
	ref := Ref{
		SourceID:     sel.SourceID,
		Kind:         sel.Kind,
		Quality:      sel.Quality,
		VideoID:      sel.Primary.ID,
		AudioTrackID: sel.AudioTrackID,
	}
	if sel.Audio != nil {
		ref.AudioID = sel.Audio.ID
	}
	return ref
}

// Encode serializes ref. The same ref always yields the same token.
func Encode(ref Ref) string {
	fields := []string{ref.SourceID, string(ref.Kind), ref.Quality, ref.VideoID, ref.AudioID, ref.AudioTrackID}
	for i, f := range fields {
		fields[i] = url.PathEscape(f)
	}
	return prefix + base64.RawURLEncoding.EncodeToString([]byte(strings.Join(fields, "|")))
}

// Decode parses a token produced by Encode.
func Decode(tok string) (Ref, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(tok), prefix)
	if !ok {
		return Ref{}, fmt.Errorf("%w: unknown version", domain.ErrInvalidToken)
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	fields := strings.Split(string(raw), "|")
	if len(fields) != 6 {
		return Ref{}, fmt.Errorf("%w: expected 6 fields, got %d", domain.ErrInvalidToken, len(fields))
	}
	for i, f := range fields {
		v, err := url.PathUnescape(f)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
		}
		fields[i] = v
	}

	ref := Ref{
		SourceID:     fields[0],
		Kind:         domain.CandidateKind(fields[1]),
		Quality:      fields[2],
		VideoID:      fields[3],
		AudioID:      fields[4],
		AudioTrackID: fields[5],
	}
	if ref.SourceID == "" || ref.VideoID == "" {
		return Ref{}, fmt.Errorf("%w: missing source or stream id", domain.ErrInvalidToken)
	}
	switch ref.Kind {
	case domain.KindCombined, domain.KindAudio:
		if ref.AudioID != "" {
			return Ref{}, fmt.Errorf("%w: %s selection with audio stream", domain.ErrInvalidToken, ref.Kind)
		}
	case domain.KindSplit:
		if ref.AudioID == "" {
			return Ref{}, fmt.Errorf("%w: split selection without audio stream", domain.ErrInvalidToken)
		}
	default:
		return Ref{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidToken, ref.Kind)
	}
	return ref, nil
}
