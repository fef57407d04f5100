package domain

import (
	"strconv"
	"strings"
)

// Quality is an ordered presentation tier. Higher values are higher fidelity.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityAudio
	Quality144p
	Quality240p
	Quality360p
	Quality480p
	Quality720p
	Quality1080p
	Quality1440p
	Quality2160p
)

var qualityNames = map[Quality]string{
	QualityUnknown: "unknown",
	QualityAudio:   "audio",
	Quality144p:    "144p",
	Quality240p:    "240p",
	Quality360p:    "360p",
	Quality480p:    "480p",
	Quality720p:    "720p",
	Quality1080p:   "1080p",
	Quality1440p:   "1440p",
	Quality2160p:   "2160p",
}

var qualityHeights = map[int]Quality{
	144:  Quality144p,
	240:  Quality240p,
	360:  Quality360p,
	480:  Quality480p,
	720:  Quality720p,
	1080: Quality1080p,
	1440: Quality1440p,
	2160: Quality2160p,
}

// Named spellings seen across providers and older API versions.
var qualityAliases = map[string]Quality{
	"audio":      QualityAudio,
	"audio_only": QualityAudio,
	"tiny":       Quality144p,
	"small":      Quality240p,
	"medium":     Quality360p,
	"large":      Quality480p,
	"sd":         Quality480p,
	"hd":         Quality720p,
	"hd720":      Quality720p,
	"fhd":        Quality1080p,
	"hd1080":     Quality1080p,
	"qhd":        Quality1440p,
	"hd1440":     Quality1440p,
	"uhd":        Quality2160p,
	"4k":         Quality2160p,
	"hd2160":     Quality2160p,
}

// String returns the canonical label for the quality.
func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return "unknown"
}

// IsVideo returns true for resolution tiers.
func (q Quality) IsVideo() bool {
	return q >= Quality144p
}

// ParseQuality maps a provider label onto a tier. It accepts a numeric height
// prefix ("720p60", "1080p HDR") and the named aliases above.
func ParseQuality(label string) Quality {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return QualityUnknown
	}
	if q, ok := qualityAliases[s]; ok {
		return q
	}

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 || end >= len(s) || s[end] != 'p' {
		return QualityUnknown
	}
	height, err := strconv.Atoi(s[:end])
	if err != nil {
		return QualityUnknown
	}
	if q, ok := qualityHeights[height]; ok {
		return q
	}
	return QualityUnknown
}
