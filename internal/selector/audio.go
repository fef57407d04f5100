package selector

import (
	"github.com/iconidentify/mediagrab/internal/domain"
)

// ChooseAudioTrack picks the audio stream representing the original or
// default language track. Confidence degrades in steps:
//
//  1. streams with track metadata flagged default, highest bitrate
//  2. streams with track metadata, highest bitrate
//  3. any stream, highest bitrate
//  4. when no stream reports a bitrate, the best-audio heuristic
//
// Ties keep catalog order.
func ChooseAudioTrack(streams []domain.StreamDescriptor) (domain.StreamDescriptor, error) {
	if len(streams) == 0 {
		return domain.StreamDescriptor{}, domain.ErrNoAudioAvailable
	}

	var withMeta, defaults []domain.StreamDescriptor
	for _, s := range streams {
		if !s.HasTrackMetadata() {
			continue
		}
		withMeta = append(withMeta, s)
		if s.AudioTrack.IsDefault {
			defaults = append(defaults, s)
		}
	}

	if len(defaults) > 0 {
		return highestBitrate(defaults), nil
	}
	if len(withMeta) > 0 {
		return highestBitrate(withMeta), nil
	}
	if anyBitrate(streams) {
		return highestBitrate(streams), nil
	}
	return bestAudio(streams), nil
}

func highestBitrate(streams []domain.StreamDescriptor) domain.StreamDescriptor {
	best := streams[0]
	for _, s := range streams[1:] {
		if s.Bitrate > best.Bitrate {
			best = s
		}
	}
	return best
}

func anyBitrate(streams []domain.StreamDescriptor) bool {
	for _, s := range streams {
		if s.Bitrate > 0 {
			return true
		}
	}
	return false
}

// bestAudio mirrors what a provider's "highest audio" filter does when
// bitrates are missing: the largest file wins, and an mp4-family container
// is preferred when sizes are unknown too.
func bestAudio(streams []domain.StreamDescriptor) domain.StreamDescriptor {
	best := streams[0]
	for _, s := range streams[1:] {
		switch {
		case s.ContentLength > best.ContentLength:
			best = s
		case s.ContentLength == best.ContentLength && containerRank(s.Container) < containerRank(best.Container):
			best = s
		}
	}
	return best
}
