package selector

import (
	"errors"
	"testing"

	"github.com/iconidentify/mediagrab/internal/domain"
)

func track(id string, isDefault bool) *domain.AudioTrack {
	return &domain.AudioTrack{ID: id, DisplayName: id, IsDefault: isDefault}
}

func TestChooseAudioTrack(t *testing.T) {
	tests := []struct {
		name    string
		streams []domain.StreamDescriptor
		want    string
	}{
		{
			name: "highest bitrate without metadata",
			streams: []domain.StreamDescriptor{
				{ID: "140", HasAudio: true, Bitrate: 128_000},
				{ID: "141", HasAudio: true, Bitrate: 256_000},
			},
			want: "141",
		},
		{
			name: "default track beats bitrate",
			streams: []domain.StreamDescriptor{
				{ID: "dub", HasAudio: true, Bitrate: 256_000, AudioTrack: track("es", false)},
				{ID: "orig", HasAudio: true, Bitrate: 128_000, AudioTrack: track("en", true)},
			},
			want: "orig",
		},
		{
			name: "metadata beats bare streams",
			streams: []domain.StreamDescriptor{
				{ID: "bare", HasAudio: true, Bitrate: 320_000},
				{ID: "fr", HasAudio: true, Bitrate: 96_000, AudioTrack: track("fr", false)},
				{ID: "de", HasAudio: true, Bitrate: 128_000, AudioTrack: track("de", false)},
			},
			want: "de",
		},
		{
			name: "default without track id",
			streams: []domain.StreamDescriptor{
				{ID: "dub", HasAudio: true, Bitrate: 128_000, AudioTrack: track("de.2", false)},
				{ID: "orig", HasAudio: true, Bitrate: 256_000, AudioTrack: &domain.AudioTrack{IsDefault: true}},
			},
			want: "orig",
		},
		{
			name: "track record without id still counts as metadata",
			streams: []domain.StreamDescriptor{
				{ID: "bare", HasAudio: true, Bitrate: 256_000},
				{ID: "named", HasAudio: true, Bitrate: 64_000, AudioTrack: &domain.AudioTrack{DisplayName: "English"}},
			},
			want: "named",
		},
		{
			name: "ties keep catalog order",
			streams: []domain.StreamDescriptor{
				{ID: "first", HasAudio: true, Bitrate: 128_000},
				{ID: "second", HasAudio: true, Bitrate: 128_000},
			},
			want: "first",
		},
		{
			name: "no bitrate falls back to size",
			streams: []domain.StreamDescriptor{
				{ID: "small", HasAudio: true, ContentLength: 1000},
				{ID: "large", HasAudio: true, ContentLength: 5000},
			},
			want: "large",
		},
		{
			name: "no bitrate or size prefers mp4",
			streams: []domain.StreamDescriptor{
				{ID: "opus", HasAudio: true, Container: "webm"},
				{ID: "aac", HasAudio: true, Container: "mp4"},
			},
			want: "aac",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChooseAudioTrack(tt.streams)
			if err != nil {
				t.Fatalf("ChooseAudioTrack() error = %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("ChooseAudioTrack() = %s, want %s", got.ID, tt.want)
			}
		})
	}
}

func TestChooseAudioTrack_Empty(t *testing.T) {
	if _, err := ChooseAudioTrack(nil); !errors.Is(err, domain.ErrNoAudioAvailable) {
		t.Errorf("error = %v, want ErrNoAudioAvailable", err)
	}
}
