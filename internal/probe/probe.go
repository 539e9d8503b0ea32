// Package probe extracts video metadata using ffprobe.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/weichenlin/sheetgen/internal/ffmpeg"
)

// Static errors for probe operations.
var (
	// ErrNoDuration is returned when the container reports no usable duration.
	ErrNoDuration = errors.New("probe: no duration in video metadata")
	// ErrNoVideoStream is returned when the file has no video stream with dimensions.
	ErrNoVideoStream = errors.New("probe: no video stream with valid dimensions")
)

// VideoInfo holds the metadata the pipeline needs about a video file.
type VideoInfo struct {
	// Path is the probed file.
	Path string
	// DurationSeconds is the container duration.
	DurationSeconds float64
	// Width and Height are the dimensions of the first video stream.
	Width  int
	Height int
	// FrameRate is the average frame rate of the first video stream.
	FrameRate float64
}

// Prober reads video metadata via ffprobe.
type Prober struct {
	runner *ffmpeg.Runner
}

// NewProber creates a new Prober using the given runner.
func NewProber(runner *ffmpeg.Runner) *Prober {
	return &Prober{runner: runner}
}

// probeResult matches the ffprobe JSON output structure.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Info probes a video file and returns its metadata. Duration, width
// and height are required; a file missing any of them is rejected.
func (p *Prober) Info(ctx context.Context, path string) (VideoInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	output, err := p.runner.Probe(ctx, args)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("probe %s: %w", path, err)
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}

	info := VideoInfo{Path: path}

	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return VideoInfo{}, fmt.Errorf("%w: %s", ErrNoDuration, path)
	}
	info.DurationSeconds = duration

	for _, stream := range result.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info.Width = stream.Width
		info.Height = stream.Height
		info.FrameRate = parseFrameRate(stream.RFrameRate)
		break
	}

	if info.Width <= 0 || info.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("%w: %s", ErrNoVideoStream, path)
	}

	return info, nil
}

// parseFrameRate converts an ffprobe rate fraction like "30000/1001"
// into frames per second. Returns 0 for malformed input.
func parseFrameRate(raw string) float64 {
	if raw == "" {
		return 0
	}

	parts := strings.SplitN(raw, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}

	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}
