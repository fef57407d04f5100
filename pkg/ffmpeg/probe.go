package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// ErrProbeUnavailable is returned when ffprobe is not installed.
var ErrProbeUnavailable = errors.New("ffprobe not found")

// MediaInfo describes the streams of a media file.
type MediaInfo struct {
	Duration   float64 // seconds
	Width      int
	Height     int
	HasVideo   bool
	HasAudio   bool
	VideoCodec string
	AudioCodec string
	Bitrate    int64
	FileSize   int64
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe inspects path with ffprobe.
func (r *Remuxer) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	r.resolve()
	if r.ffprobePath == "" {
		return nil, ErrProbeUnavailable
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}

	out, err := exec.CommandContext(ctx, r.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	info, err := parseProbe(out)
	if err != nil {
		return nil, err
	}
	info.FileSize = stat.Size()
	return info, nil
}

func parseProbe(data []byte) (*MediaInfo, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	if br, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		case "video":
			info.HasVideo = true
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
			}
			if info.Width == 0 {
				info.Width = s.Width
				info.Height = s.Height
			}
		}
	}
	return info, nil
}
