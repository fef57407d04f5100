// Package ffmpeg wraps the ffmpeg and ffprobe binaries for stream assembly.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// ErrNotFound is returned when the ffmpeg binary cannot be located.
var ErrNotFound = errors.New("ffmpeg not found")

// Mode selects how the streams are combined.
type Mode string

const (
	// ModeCopy copies both streams without re-encoding.
	ModeCopy Mode = "copy"
	// ModeReencodeAudio copies video and re-encodes audio.
	ModeReencodeAudio Mode = "reencode_audio"
)

// Config configures a Remuxer.
type Config struct {
	FFmpegPath   string
	FFprobePath  string
	AudioCodec   string
	AudioBitrate string
}

// Remuxer merges a video-only and an audio-only file into one container.
type Remuxer struct {
	cfg Config

	once        sync.Once
	ffmpegPath  string
	ffprobePath string
	lookupErr   error
}

// NewRemuxer creates a remuxer. Binaries are resolved on first use so a
// missing ffmpeg only fails split jobs.
func NewRemuxer(cfg Config) *Remuxer {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.AudioCodec == "" {
		cfg.AudioCodec = "aac"
	}
	if cfg.AudioBitrate == "" {
		cfg.AudioBitrate = "128k"
	}
	return &Remuxer{cfg: cfg}
}

func (r *Remuxer) resolve() {
	r.once.Do(func() {
		path, err := exec.LookPath(r.cfg.FFmpegPath)
		if err != nil {
			r.lookupErr = fmt.Errorf("%w: %v", ErrNotFound, err)
			return
		}
		r.ffmpegPath = path
		if probe, err := exec.LookPath(r.cfg.FFprobePath); err == nil {
			r.ffprobePath = probe
		}
	})
}

// IsAvailable reports whether ffmpeg can be executed.
func (r *Remuxer) IsAvailable() bool {
	r.resolve()
	return r.lookupErr == nil
}

// Merge writes outPath from videoPath and audioPath using mode.
func (r *Remuxer) Merge(ctx context.Context, videoPath, audioPath, outPath string, mode Mode) error {
	r.resolve()
	if r.lookupErr != nil {
		return r.lookupErr
	}

	args, err := r.mergeArgs(videoPath, audioPath, outPath, mode)
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ExitError{Mode: mode, Err: err, Stderr: tail(stderr.String(), 512)}
	}
	return nil
}

func (r *Remuxer) mergeArgs(videoPath, audioPath, outPath string, mode Mode) ([]string, error) {
	args := []string{
		"-y", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
	}
	switch mode {
	case ModeCopy:
		args = append(args, "-c", "copy")
	case ModeReencodeAudio:
		args = append(args, "-c:v", "copy", "-c:a", r.cfg.AudioCodec, "-b:a", r.cfg.AudioBitrate)
	default:
		return nil, fmt.Errorf("unknown merge mode %q", mode)
	}
	if isMP4Family(outPath) {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, outPath), nil
}

// Version returns the first line of `ffmpeg -version`.
func (r *Remuxer) Version(ctx context.Context) (string, error) {
	r.resolve()
	if r.lookupErr != nil {
		return "", r.lookupErr
	}
	out, err := exec.CommandContext(ctx, r.ffmpegPath, "-version").Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// ExitError is a failed ffmpeg run.
type ExitError struct {
	Mode   Mode
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s: %v", e.Mode, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s: %v: %s", e.Mode, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func isMP4Family(path string) bool {
	p := strings.ToLower(path)
	return strings.HasSuffix(p, ".mp4") || strings.HasSuffix(p, ".m4a") || strings.HasSuffix(p, ".mov")
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
