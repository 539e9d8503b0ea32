// Package selector turns scene change points (or nothing, in uniform
// mode) into a fixed number of well-distributed sample timestamps.
package selector

import (
	"math"
	"sort"

	"github.com/weichenlin/sheetgen/internal/scene"
)

// Empirical constants carried over from the reference tuning. Test
// fixtures assume these exact figures.
const (
	// RepresentativeOffset places each sample at 35% into its segment,
	// away from transition artifacts at cut boundaries.
	RepresentativeOffset = 0.35
	// MinSegmentLength drops degenerate segments before subdivision.
	MinSegmentLength = 0.5
	// DedupeWindow collapses boundary points closer than this.
	DedupeWindow = 0.1
	// EdgeMarginRatio reserves this fraction of the duration at both
	// ends in uniform mode (skips intros and credits).
	EdgeMarginRatio = 0.02
)

// Strategy selects how sample timestamps are chosen for a run.
type Strategy string

const (
	// StrategyScene uses scene detection to bias samples toward cuts.
	StrategyScene Strategy = "scene"
	// StrategyUniform spreads samples evenly without decoding the video.
	StrategyUniform Strategy = "uniform"
)

// segment is a contiguous time interval between two boundary points.
type segment struct {
	start float64
	end   float64
}

func (s segment) length() float64 {
	return s.end - s.start
}

// SelectTimestamps picks exactly count sample timestamps from the scene
// change list. Segments between cuts are subsampled when there are too
// many and bisected longest-first when there are too few; each final
// segment contributes one timestamp at 35% of its length. Returns an
// empty slice when count is zero or duration is non-positive.
func SelectTimestamps(duration float64, changes []scene.Change, count int) []float64 {
	if count == 0 || duration <= 0 {
		return nil
	}

	segments := buildSegments(duration, changes)

	if len(segments) > count {
		segments = selectEvenly(segments, count)
	} else if len(segments) < count {
		segments = splitLongest(segments, count)
	}

	if len(segments) > count {
		segments = segments[:count]
	}

	timestamps := make([]float64, 0, len(segments))
	for _, seg := range segments {
		timestamps = append(timestamps, representativeTime(seg, duration))
	}
	return timestamps
}

// buildSegments derives segments from the scene points plus the video
// boundaries. Boundary points are sorted, de-duplicated at 0.1s
// resolution, and segments shorter than 0.5s are dropped.
func buildSegments(duration float64, changes []scene.Change) []segment {
	points := make([]float64, 0, len(changes)+2)
	points = append(points, 0)
	for _, c := range changes {
		points = append(points, c.Timestamp)
	}
	points = append(points, duration)

	sort.Float64s(points)

	deduped := points[:1]
	for _, p := range points[1:] {
		if p-deduped[len(deduped)-1] < DedupeWindow {
			continue
		}
		deduped = append(deduped, p)
	}

	var segments []segment
	for i := 1; i < len(deduped); i++ {
		seg := segment{start: deduped[i-1], end: deduped[i]}
		if seg.length() >= MinSegmentLength {
			segments = append(segments, seg)
		}
	}
	return segments
}

// selectEvenly subsamples count segments by index with a fixed step,
// rounding to the nearest index.
func selectEvenly(segments []segment, count int) []segment {
	if len(segments) == 0 || count == 0 {
		return nil
	}

	denom := count - 1
	if denom < 1 {
		denom = 1
	}
	step := float64(len(segments)-1) / float64(denom)

	picked := make([]segment, 0, count)
	for i := 0; i < count; i++ {
		index := int(math.Round(float64(i) * step))
		if index > len(segments)-1 {
			index = len(segments) - 1
		}
		picked = append(picked, segments[index])
	}
	return picked
}

// splitLongest bisects the currently longest segment at its midpoint
// until the target count is reached, then restores time order. Greedy
// longest-first subdivision puts the added samples where content is
// least likely to have been sampled already.
func splitLongest(segments []segment, target int) []segment {
	if len(segments) == 0 {
		return segments
	}

	for len(segments) < target {
		longest := 0
		for i, seg := range segments {
			if seg.length() > segments[longest].length() {
				longest = i
			}
		}

		seg := segments[longest]
		mid := (seg.start + seg.end) / 2

		segments[longest] = segment{start: seg.start, end: mid}
		segments = append(segments, segment{})
		copy(segments[longest+2:], segments[longest+1:])
		segments[longest+1] = segment{start: mid, end: seg.end}
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].start < segments[j].start
	})
	return segments
}

// representativeTime picks the sample position inside a segment: 35%
// of the way in, at least 0.5s from either boundary, clamped into
// [0, duration-0.1].
func representativeTime(seg segment, duration float64) float64 {
	offset := seg.length() * RepresentativeOffset
	if offset < MinSegmentLength {
		offset = MinSegmentLength
	}
	if offset > seg.length()-MinSegmentLength {
		offset = seg.length() - MinSegmentLength
	}
	if offset < 0 {
		offset = 0
	}

	t := seg.start + offset
	if t < 0 {
		t = 0
	}
	if t > duration-DedupeWindow {
		t = duration - DedupeWindow
	}
	return t
}

// SelectUniform spreads count samples evenly across the duration,
// reserving a 2% margin at both ends and sampling at the center of each
// 1/count slice. Returns an empty slice when count is zero or duration
// is non-positive.
func SelectUniform(duration float64, count int) []float64 {
	return selectUniform(duration, count, EdgeMarginRatio, EdgeMarginRatio, false)
}

// SelectUniformWithMargin is SelectUniform with explicit start and end
// margin ratios. If the margins leave no usable span, a single sample
// at the midpoint of the whole duration is returned.
func SelectUniformWithMargin(duration float64, count int, startMargin, endMargin float64) []float64 {
	return selectUniform(duration, count, startMargin, endMargin, true)
}

func selectUniform(duration float64, count int, startMargin, endMargin float64, midpointFallback bool) []float64 {
	if count == 0 || duration <= 0 {
		return nil
	}

	start := duration * startMargin
	end := duration * (1 - endMargin)
	span := end - start

	if span <= 0 && midpointFallback {
		return []float64{duration / 2}
	}

	timestamps := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		ratio := (float64(i) + 0.5) / float64(count)
		t := start + span*ratio
		if t < 0.1 {
			t = 0.1
		}
		if t > duration-0.1 {
			t = duration - 0.1
		}
		timestamps = append(timestamps, t)
	}
	return timestamps
}
