package thumbnail

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/weichenlin/sheetgen/internal/shutdown"
)

// BatchSize is the ceiling on timestamps per ffmpeg invocation. Larger
// batches make the select expression unwieldy; 18 is an empirical
// ceiling carried over from the reference tuning.
const BatchSize = 18

// selectWindow is the half-width of the time window around each target
// timestamp in the select expression.
const selectWindow = 0.05

// BatchResult aggregates the outcome of one batched extraction run.
type BatchResult struct {
	// Results holds one entry per attempted timestamp, in input order.
	Results []Result
	// Successful, Failed and Skipped are aggregate counters. Skipped
	// counts timestamps never attempted because shutdown was requested
	// between chunks.
	Successful int
	Failed     int
	Skipped    int
}

// ExtractBatch extracts frames for all timestamps by grouping them into
// chunks of at most BatchSize and pulling each chunk out of a single
// ffmpeg invocation, amortizing process-startup cost.
//
// Failure tolerance is a three-tier cascade:
//  1. the batched invocation for a chunk,
//  2. on a failed invocation, the whole chunk re-runs through the
//     two-stage-seek single extraction path,
//  3. on a missing individual frame (the select filter can under-fire
//     near boundary-adjacent frames), only that timestamp re-runs
//     through single extraction.
//
// The chunk-wide re-run additionally falls back to a solid black
// placeholder frame before reporting a timestamp as failed; the
// per-frame recovery does not, so an unreachable timestamp surfaces as
// a failure instead of a silent black tile.
func (e *Extractor) ExtractBatch(ctx context.Context, videoPath string, timestamps []float64, outputDir string, sig *shutdown.Signal) BatchResult {
	var result BatchResult
	if len(timestamps) == 0 {
		return result
	}

	e.logger.Debug("batch extracting thumbnails",
		slog.String("video", videoPath),
		slog.Int("count", len(timestamps)),
	)

	for start := 0; start < len(timestamps); start += BatchSize {
		if sig != nil && sig.IsSet() {
			e.logger.Warn("shutdown requested, stopping batch extraction",
				slog.String("video", videoPath),
				slog.Int("remaining", len(timestamps)-start),
			)
			result.Skipped += len(timestamps) - start
			break
		}

		end := start + BatchSize
		if end > len(timestamps) {
			end = len(timestamps)
		}

		chunk := e.extractChunk(ctx, videoPath, timestamps[start:end], outputDir, start)
		result.Results = append(result.Results, chunk...)
		for _, r := range chunk {
			if r.Success {
				result.Successful++
			} else {
				result.Failed++
			}
		}
	}

	e.logger.Debug("batch extraction complete",
		slog.String("video", videoPath),
		slog.Int("successful", result.Successful),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
	)

	return result
}

// extractChunk pulls one chunk of frames out of a single invocation,
// then renames the sequentially numbered outputs into their canonical
// thumb_<index>.jpg names.
func (e *Extractor) extractChunk(ctx context.Context, videoPath string, timestamps []float64, outputDir string, startIndex int) []Result {
	filter := fmt.Sprintf("%s,%s",
		buildSelectExpression(timestamps),
		scaleFilter(e.opts.Width, e.opts.Height),
	)

	chunkIndex := startIndex / BatchSize
	outputPattern := filepath.Join(outputDir, fmt.Sprintf("thumb_%03d_%%03d.jpg", chunkIndex))

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vf", filter,
		"-vsync", "vfr",
		"-q:v", fmt.Sprintf("%d", e.opts.Quality),
		"-y",
		outputPattern,
	}

	if err := e.runner.Run(ctx, args); err != nil {
		e.logger.Warn("batch invocation failed, falling back to single extraction",
			slog.String("video", videoPath),
			slog.Int("chunk", chunkIndex),
			slog.String("error", err.Error()),
		)
		return e.extractIndividually(ctx, videoPath, timestamps, outputDir, startIndex)
	}

	results := make([]Result, 0, len(timestamps))
	for i, timestamp := range timestamps {
		index := startIndex + i
		canonical := filepath.Join(outputDir, fmt.Sprintf("thumb_%03d.jpg", index))
		batchOutput := filepath.Join(outputDir, fmt.Sprintf("thumb_%03d_%03d.jpg", chunkIndex, i+1))

		if _, err := os.Stat(batchOutput); err == nil {
			if err := os.Rename(batchOutput, canonical); err != nil {
				e.logger.Warn("failed to rename batch thumbnail",
					slog.String("from", batchOutput),
					slog.String("to", canonical),
					slog.String("error", err.Error()),
				)
				results = append(results, Result{
					OutputPath:   canonical,
					Index:        index,
					Success:      false,
					ErrorMessage: fmt.Sprintf("rename batch output: %v", err),
				})
				continue
			}
		}

		if _, err := os.Stat(canonical); err == nil {
			results = append(results, Result{
				OutputPath: canonical,
				Index:      index,
				Success:    true,
			})
			continue
		}

		// The select filter under-fired for this timestamp; recover just
		// this frame through the single extraction path. No placeholder
		// here: a timestamp the batch skipped and single extraction cannot
		// reach is reported as failed.
		results = append(results, e.Extract(ctx, Task{
			VideoPath:  videoPath,
			Timestamp:  timestamp,
			OutputPath: canonical,
			Index:      index,
		}))
	}

	return results
}

// extractIndividually re-runs a whole chunk timestamp-by-timestamp.
func (e *Extractor) extractIndividually(ctx context.Context, videoPath string, timestamps []float64, outputDir string, startIndex int) []Result {
	results := make([]Result, 0, len(timestamps))
	for i, timestamp := range timestamps {
		index := startIndex + i
		results = append(results, e.extractWithPlaceholder(ctx, Task{
			VideoPath:  videoPath,
			Timestamp:  timestamp,
			OutputPath: filepath.Join(outputDir, fmt.Sprintf("thumb_%03d.jpg", index)),
			Index:      index,
		}))
	}
	return results
}

// extractWithPlaceholder runs a single extraction and, if it fails,
// substitutes a black placeholder frame before giving up.
func (e *Extractor) extractWithPlaceholder(ctx context.Context, task Task) Result {
	result := e.Extract(ctx, task)
	if result.Success {
		return result
	}

	e.logger.Warn("thumbnail extraction failed, generating placeholder",
		slog.Int("index", task.Index),
		slog.String("error", result.ErrorMessage),
	)

	if err := e.Placeholder(ctx, task.OutputPath); err != nil {
		return result
	}

	return Result{
		OutputPath: task.OutputPath,
		Index:      task.Index,
		Success:    true,
	}
}

// buildSelectExpression builds a disjunction of small time windows,
// one per target timestamp, for the ffmpeg select filter. Logical OR
// is spelled + in filter expressions; commas are escaped so they are
// not taken as filter argument separators.
func buildSelectExpression(timestamps []float64) string {
	conditions := make([]string, 0, len(timestamps))
	for _, t := range timestamps {
		start := t - selectWindow
		if start < 0 {
			start = 0
		}
		conditions = append(conditions, fmt.Sprintf(`between(t\,%.3f\,%.3f)`, start, t+selectWindow))
	}
	return fmt.Sprintf("select='%s'", strings.Join(conditions, "+"))
}
