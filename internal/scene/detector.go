// Package scene detects scene changes in video files using the ffmpeg
// scdet filter. Detection runs over a down-scaled, down-sampled copy of
// the video with audio, subtitle and data streams stripped, and parses
// change events from the diagnostic text ffmpeg writes to stderr.
package scene

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/weichenlin/sheetgen/internal/ffmpeg"
	"github.com/weichenlin/sheetgen/internal/probe"
)

// Change is a detected scene change.
type Change struct {
	// Timestamp is the position of the change in seconds.
	Timestamp float64
	// Score is the change score. The scdet filter does not report one,
	// so parsed changes carry 1.0.
	Score float64
}

// Config controls a detection pass.
type Config struct {
	// Threshold is the scdet change sensitivity (0-100, lower is more sensitive).
	Threshold float64
	// AnalyzeFPS is the analysis frame rate. Lower is faster but may
	// miss very short cuts.
	AnalyzeFPS float64
	// ScaleWidth is the width the video is down-scaled to before analysis.
	ScaleWidth int
}

// DefaultConfig returns the detection profile for short videos.
func DefaultConfig() Config {
	return Config{
		Threshold:  12.0,
		AnalyzeFPS: 2.0,
		ScaleWidth: 320,
	}
}

// AutoConfig tunes the analysis frame rate to the video duration.
// Decoding every frame at full rate is too slow for long videos, so
// longer material is sampled more coarsely.
func AutoConfig(info probe.VideoInfo) Config {
	cfg := DefaultConfig()

	switch {
	case info.DurationSeconds > 7200:
		cfg.AnalyzeFPS = 0.5
	case info.DurationSeconds > 3600:
		cfg.AnalyzeFPS = 1.0
	default:
		cfg.AnalyzeFPS = 2.0
	}

	return cfg
}

// Detector runs scene change detection passes.
type Detector struct {
	runner *ffmpeg.Runner
	logger *slog.Logger
}

// NewDetector creates a new Detector.
func NewDetector(runner *ffmpeg.Runner, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{runner: runner, logger: logger}
}

// Detect runs scdet over the video and returns the sorted, de-duplicated
// scene changes inside (0, duration). A nil cfg auto-tunes from the
// video duration.
func (d *Detector) Detect(ctx context.Context, info probe.VideoInfo, cfg *Config) ([]Change, error) {
	conf := AutoConfig(info)
	if cfg != nil {
		conf = *cfg
	}

	d.logger.Debug("detecting scene changes",
		slog.String("path", info.Path),
		slog.Float64("threshold", conf.Threshold),
		slog.Float64("analyze_fps", conf.AnalyzeFPS),
		slog.Int("scale_width", conf.ScaleWidth),
	)

	filter := fmt.Sprintf("scale=%d:-1,fps=%g,scdet=s=1:t=%g",
		conf.ScaleWidth, conf.AnalyzeFPS, conf.Threshold)

	args := []string{
		"-hide_banner",
		"-i", info.Path,
		"-an", "-sn", "-dn",
		"-threads", "1",
		"-vf", filter,
		"-f", "null", "-",
	}

	// scdet reports changes on stderr only.
	stderr, err := d.runner.RunCapture(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("scene detection for %s: %w", info.Path, err)
	}

	changes := ParseOutput(stderr, info.DurationSeconds)

	d.logger.Debug("scene detection complete",
		slog.String("path", info.Path),
		slog.Int("changes", len(changes)),
	)

	return changes, nil
}

// The scdet filter reports change timestamps in one of two line shapes
// depending on the ffmpeg build and logging path:
//
//	[scdet @ 0x...] lavfi.scd.time=12.345
//	[Parsed_scdet_2 @ 0x...] t:12.345 pts_time:12.345
var (
	timeTagPattern = regexp.MustCompile(`t:([0-9.]+)`)
	scdTimePattern = regexp.MustCompile(`lavfi\.scd\.time=([0-9.]+)`)
)

// ParseOutput extracts scene change timestamps from ffmpeg diagnostic
// text. Both tag formats are tried per line; timestamps outside
// (0, duration) are dropped, and near-duplicates within 0.1s collapse
// to the first occurrence.
func ParseOutput(output string, duration float64) []Change {
	var changes []Change

	for _, line := range strings.Split(output, "\n") {
		match := timeTagPattern.FindStringSubmatch(line)
		if match == nil {
			match = scdTimePattern.FindStringSubmatch(line)
		}
		if match == nil {
			continue
		}

		timestamp, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		if timestamp <= 0 || timestamp >= duration {
			continue
		}

		changes = append(changes, Change{Timestamp: timestamp, Score: 1.0})
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Timestamp < changes[j].Timestamp
	})

	deduped := changes[:0]
	for _, c := range changes {
		if len(deduped) > 0 && c.Timestamp-deduped[len(deduped)-1].Timestamp < 0.1 {
			continue
		}
		deduped = append(deduped, c)
	}

	return deduped
}
