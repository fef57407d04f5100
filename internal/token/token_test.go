package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/iconidentify/mediagrab/internal/domain"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		ref  Ref
	}{
		{
			name: "split",
			ref:  Ref{SourceID: "dQw4w9WgXcQ", Kind: domain.KindSplit, Quality: "720p", VideoID: "136", AudioID: "140", AudioTrackID: "en.4"},
		},
		{
			name: "combined",
			ref:  Ref{SourceID: "abc", Kind: domain.KindCombined, Quality: "360p", VideoID: "18"},
		},
		{
			name: "audio",
			ref:  Ref{SourceID: "abc", Kind: domain.KindAudio, Quality: "audio", VideoID: "251"},
		},
		{
			name: "separator and escapes in ids",
			ref:  Ref{SourceID: "a|b/c%d", Kind: domain.KindSplit, Quality: "720p", VideoID: "v|1", AudioID: "a 2", AudioTrackID: "x|y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := Encode(tt.ref)
			if !strings.HasPrefix(tok, prefix) {
				t.Errorf("token %q lacks version prefix", tok)
			}
			if Encode(tt.ref) != tok {
				t.Error("Encode is not deterministic")
			}
			got, err := Decode(tok)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.ref, got); diff != "" {
				t.Errorf("round trip (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRefOf(t *testing.T) {
	sel := &domain.Selection{
		SourceID:     "abc",
		Kind:         domain.KindSplit,
		Quality:      "720p",
		Primary:      domain.StreamRef{ID: "136", URL: "https://cdn/v"},
		Audio:        &domain.StreamRef{ID: "140", URL: "https://cdn/a"},
		AudioTrackID: "en",
	}
	want := Ref{SourceID: "abc", Kind: domain.KindSplit, Quality: "720p", VideoID: "136", AudioID: "140", AudioTrackID: "en"}
	if diff := cmp.Diff(want, RefOf(sel)); diff != "" {
		t.Errorf("RefOf (-want +got):\n%s", diff)
	}
}

func TestDecode_Invalid(t *testing.T) {
	raw := func(s string) string {
		return prefix + base64.RawURLEncoding.EncodeToString([]byte(s))
	}

	tests := []struct {
		name string
		tok  string
	}{
		{"empty", ""},
		{"wrong version", "mg0." + base64.RawURLEncoding.EncodeToString([]byte("abc|combined|360p|18||"))},
		{"bad base64", prefix + "!!!"},
		{"too few fields", raw("abc|combined|360p")},
		{"too many fields", raw("abc|combined|360p|18|||x")},
		{"missing source", raw("|combined|360p|18||")},
		{"missing stream", raw("abc|combined|360p|||")},
		{"unknown kind", raw("abc|hologram|360p|18||")},
		{"split without audio", raw("abc|split|720p|136||")},
		{"combined with audio", raw("abc|combined|360p|18|140|")},
		{"bad escape", raw("abc%zz|combined|360p|18||")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.tok)
			if !errors.Is(err, domain.ErrInvalidToken) {
				t.Errorf("Decode(%q) error = %v, want ErrInvalidToken", tt.tok, err)
			}
		})
	}
}
