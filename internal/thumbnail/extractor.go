// Package thumbnail extracts still frames from video files. Single
// extraction uses a two-stage seek for speed; many frames can be
// extracted either by parallel fan-out over single extractions or by
// batched multi-frame invocations (see batch.go).
package thumbnail

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/weichenlin/sheetgen/internal/ffmpeg"
	"github.com/weichenlin/sheetgen/internal/shutdown"
)

// Default tile geometry and JPEG quality (1-31, lower is better).
const (
	DefaultWidth   = 320
	DefaultHeight  = 180
	DefaultQuality = 2
)

// seekMargin is the coarse pre-open seek distance. The expensive
// frame-accurate decode after opening is bounded to roughly this much
// video regardless of the absolute target time.
const seekMargin = 2.0

// Options controls tile geometry and output quality.
type Options struct {
	Width   int `validate:"required,min=16"`
	Height  int `validate:"required,min=16"`
	Quality int `validate:"required,min=1,max=31"`
}

// DefaultOptions returns the standard 320x180 high-quality profile.
func DefaultOptions() Options {
	return Options{
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		Quality: DefaultQuality,
	}
}

// Extractor extracts still frames via ffmpeg.
type Extractor struct {
	runner *ffmpeg.Runner
	logger *slog.Logger
	opts   Options
	// workers bounds the parallel fan-out. Defaults to NumCPU.
	workers int
}

// NewExtractor creates an Extractor with the given options.
func NewExtractor(runner *ffmpeg.Runner, logger *slog.Logger, opts Options) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		runner:  runner,
		logger:  logger,
		opts:    opts,
		workers: runtime.NumCPU(),
	}
}

// SetWorkers overrides the fan-out parallelism.
func (e *Extractor) SetWorkers(n int) {
	if n > 0 {
		e.workers = n
	}
}

// scaleFilter scales to fit within w x h keeping aspect ratio, then
// letterboxes with black padding to exactly w x h.
func scaleFilter(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black", w, h, w, h)
}

// Extract extracts a single frame. It never returns an error; failures
// are reported in the Result.
func (e *Extractor) Extract(ctx context.Context, task Task) Result {
	if err := e.extractOne(ctx, task); err != nil {
		return Result{
			OutputPath:   task.OutputPath,
			Index:        task.Index,
			Success:      false,
			ErrorMessage: err.Error(),
		}
	}
	return Result{
		OutputPath: task.OutputPath,
		Index:      task.Index,
		Success:    true,
	}
}

// extractOne runs the two-stage seek extraction: a coarse -ss before
// -i jumps cheaply to the nearest keyframe, a second -ss after -i
// decodes frame-accurately over the small residual delta.
func (e *Extractor) extractOne(ctx context.Context, task Task) error {
	t0 := task.Timestamp - seekMargin
	if t0 < 0 {
		t0 = 0
	}
	delta := task.Timestamp - t0

	e.logger.Debug("extracting thumbnail",
		slog.Int("index", task.Index),
		slog.Float64("timestamp", task.Timestamp),
		slog.Float64("coarse_seek", t0),
		slog.Float64("fine_seek", delta),
	)

	args := []string{"-hide_banner", "-loglevel", "error"}

	if t0 > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", t0))
	}

	args = append(args, "-i", task.VideoPath)

	if delta > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", delta))
	}

	args = append(args,
		"-frames:v", "1",
		"-an", "-sn", "-dn",
		"-threads", "1",
		"-vf", scaleFilter(e.opts.Width, e.opts.Height),
		"-q:v", fmt.Sprintf("%d", e.opts.Quality),
		"-y",
		task.OutputPath,
	)

	if err := e.runner.Run(ctx, args); err != nil {
		return fmt.Errorf("extract frame at %.2fs: %w", task.Timestamp, err)
	}

	if _, err := os.Stat(task.OutputPath); err != nil {
		return fmt.Errorf("thumbnail not created: %s", task.OutputPath)
	}

	return nil
}

// ExtractParallel processes all tasks with bounded data parallelism.
// Each ffmpeg process decodes single-threaded so concurrent extractions
// do not oversubscribe the host. Tasks observed after the shutdown flag
// is set are short-circuited to a cancelled Result without launching a
// process. Result order matches input task order, but callers must use
// Index for grid reconstruction.
func (e *Extractor) ExtractParallel(ctx context.Context, tasks []Task, sig *shutdown.Signal) []Result {
	results := make([]Result, len(tasks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, task := range tasks {
		g.Go(func() error {
			if sig != nil && sig.IsSet() {
				results[i] = Result{
					OutputPath:   task.OutputPath,
					Index:        task.Index,
					Success:      false,
					ErrorMessage: "cancelled",
				}
				return nil
			}

			results[i] = e.Extract(ctx, task)

			if !results[i].Success {
				e.logger.Error("thumbnail extraction failed",
					slog.Int("index", task.Index),
					slog.String("error", results[i].ErrorMessage),
				)
			}
			return nil
		})
	}

	_ = g.Wait() // Workers never return errors; failures live in results.

	return results
}

// Placeholder writes a solid black frame of the configured tile size.
// Last-resort fallback so one unrecoverable timestamp does not abort a
// whole contact sheet.
func (e *Extractor) Placeholder(ctx context.Context, outputPath string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:d=1", e.opts.Width, e.opts.Height),
		"-frames:v", "1",
		"-q:v", fmt.Sprintf("%d", e.opts.Quality),
		"-y",
		outputPath,
	}

	if err := e.runner.Run(ctx, args); err != nil {
		return fmt.Errorf("generate placeholder: %w", err)
	}
	return nil
}
