// Package pipeline orchestrates contact sheet generation: probe, scene
// detection, timestamp selection, thumbnail extraction and grid merge,
// run per video with a parallel batch driver on top.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/weichenlin/sheetgen/internal/probe"
	"github.com/weichenlin/sheetgen/internal/scan"
	"github.com/weichenlin/sheetgen/internal/scene"
	"github.com/weichenlin/sheetgen/internal/selector"
	"github.com/weichenlin/sheetgen/internal/sheet"
	"github.com/weichenlin/sheetgen/internal/shutdown"
	"github.com/weichenlin/sheetgen/internal/storage"
	"github.com/weichenlin/sheetgen/internal/thumbnail"
)

// Static errors for pipeline preconditions.
var (
	// ErrVideoTooShort is returned for videos shorter than one second.
	ErrVideoTooShort = errors.New("pipeline: video too short (< 1s)")
	// ErrNoVideos is returned when the input directory has no video files.
	ErrNoVideos = errors.New("pipeline: no video files found")
	// ErrInsufficientTimestamps is returned when selection cannot
	// produce enough sample points.
	ErrInsufficientTimestamps = errors.New("pipeline: not enough timestamps selected")
	// ErrInsufficientThumbnails is returned when too few frames were
	// extracted to fill the grid.
	ErrInsufficientThumbnails = errors.New("pipeline: not enough thumbnails extracted")
)

// Options configures a Generator.
type Options struct {
	// ThumbnailCount is the number of frames sampled per video. Must
	// equal GridCols*GridRows.
	ThumbnailCount int `validate:"required,min=1"`
	// GridCols and GridRows define the sheet layout.
	GridCols int `validate:"required,min=1"`
	GridRows int `validate:"required,min=1"`
	// Strategy selects scene-aware or uniform timestamp selection.
	Strategy selector.Strategy `validate:"required,oneof=scene uniform"`
	// UseBatch groups extractions into multi-frame invocations instead
	// of the parallel single-frame fan-out.
	UseBatch bool
	// Workers bounds video-level parallelism. 0 means NumCPU.
	Workers int `validate:"min=0"`
	// OutputDirName is the sheet subdirectory under the input directory.
	OutputDirName string `validate:"required"`
	// UploadSheets pushes finished sheets to the storage backend.
	UploadSheets bool
}

// DefaultOptions returns the standard 9x6 scene-aware batch profile.
func DefaultOptions() Options {
	return Options{
		ThumbnailCount: sheet.DefaultThumbnailCount,
		GridCols:       sheet.DefaultGridCols,
		GridRows:       sheet.DefaultGridRows,
		Strategy:       selector.StrategyScene,
		UseBatch:       true,
		OutputDirName:  "_contact_sheets",
	}
}

// Result aggregates counters over one batch run.
type Result struct {
	TotalVideos int
	Successful  int
	Failed      int
	Skipped     int
}

// Generator runs the contact sheet pipeline.
type Generator struct {
	prober    *probe.Prober
	detector  *scene.Detector
	extractor *thumbnail.Extractor
	merger    *sheet.Merger
	store     storage.Storage
	logger    *slog.Logger
	opts      Options
}

// NewGenerator creates a Generator after validating the options.
func NewGenerator(
	prober *probe.Prober,
	detector *scene.Detector,
	extractor *thumbnail.Extractor,
	merger *sheet.Merger,
	store storage.Storage,
	logger *slog.Logger,
	opts Options,
) (*Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("pipeline options: %w", err)
	}
	if opts.GridCols*opts.GridRows != opts.ThumbnailCount {
		return nil, fmt.Errorf("pipeline options: grid %dx%d does not hold %d thumbnails",
			opts.GridCols, opts.GridRows, opts.ThumbnailCount)
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.NumCPU()
	}

	return &Generator{
		prober:    prober,
		detector:  detector,
		extractor: extractor,
		merger:    merger,
		store:     store,
		logger:    logger,
		opts:      opts,
	}, nil
}

// Run scans inputDir for video files and generates one contact sheet
// per video in parallel. Videos whose sheet already exists are skipped.
// Per-video failures are counted, never fatal for the run.
func (g *Generator) Run(ctx context.Context, inputDir string, sig *shutdown.Signal) (Result, error) {
	files, err := scan.VideoFiles(inputDir)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrNoVideos, inputDir)
	}

	outputDir := filepath.Join(inputDir, g.opts.OutputDirName)
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}

	g.logger.Info("starting contact sheet run",
		slog.Int("videos", len(files)),
		slog.String("output_dir", outputDir),
		slog.Int("workers", g.opts.Workers),
		slog.String("strategy", string(g.opts.Strategy)),
	)

	var successful, failed, skipped atomic.Int64

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(g.opts.Workers)

	for _, file := range files {
		group.Go(func() error {
			if sig != nil && sig.IsSet() {
				skipped.Add(1)
				return nil
			}

			stem := videoStem(file.Path)
			outputPath := filepath.Join(outputDir, stem+"_contact_sheet.jpg")

			if _, err := os.Stat(outputPath); err == nil {
				g.logger.Info("contact sheet exists, skipping",
					slog.String("video", stem),
				)
				skipped.Add(1)
				return nil
			}

			if err := g.ProcessVideo(ctx, file.Path, outputPath, sig); err != nil {
				g.logger.Error("contact sheet generation failed",
					slog.String("video", stem),
					slog.String("error", err.Error()),
				)
				failed.Add(1)
				return nil
			}

			g.logger.Info("contact sheet created",
				slog.String("video", stem),
				slog.String("output", outputPath),
			)
			successful.Add(1)
			return nil
		})
	}

	_ = group.Wait() // Per-video errors are absorbed into counters.

	result := Result{
		TotalVideos: len(files),
		Successful:  int(successful.Load()),
		Failed:      int(failed.Load()),
		Skipped:     int(skipped.Load()),
	}

	g.logger.Info("contact sheet run finished",
		slog.Int("total", result.TotalVideos),
		slog.Int("successful", result.Successful),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
	)

	return result, nil
}

// ProcessVideo runs the five pipeline stages for a single video:
// probe, scene detection, timestamp selection, thumbnail extraction and
// grid merge. Intermediate frames live in an exclusively owned scratch
// directory that is removed (best-effort) when the stages finish.
func (g *Generator) ProcessVideo(ctx context.Context, videoPath, outputPath string, sig *shutdown.Signal) error {
	scratch, err := g.store.CreateScratch(videoStem(videoPath))
	if err != nil {
		return err
	}
	defer func() {
		if err := g.store.RemoveScratch(scratch); err != nil {
			g.logger.Warn("failed to clean scratch directory",
				slog.String("path", scratch),
				slog.String("error", err.Error()),
			)
		}
	}()

	// Stage A: probe metadata.
	info, err := g.prober.Info(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("read video info: %w", err)
	}
	if info.DurationSeconds < 1.0 {
		return fmt.Errorf("%w: %.2fs", ErrVideoTooShort, info.DurationSeconds)
	}

	g.logger.Debug("video probed",
		slog.String("video", videoPath),
		slog.Float64("duration", info.DurationSeconds),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
	)

	// Stages B+C: select sample timestamps.
	timestamps := g.selectTimestamps(ctx, info)
	if len(timestamps) < g.opts.ThumbnailCount {
		return fmt.Errorf("%w: need %d, have %d",
			ErrInsufficientTimestamps, g.opts.ThumbnailCount, len(timestamps))
	}

	// Stage D: extract thumbnails.
	results := g.extract(ctx, videoPath, timestamps, scratch, sig)

	succeeded := make([]thumbnail.Result, 0, len(results))
	for _, r := range results {
		if r.Success {
			succeeded = append(succeeded, r)
		}
	}
	if len(succeeded) < g.opts.ThumbnailCount {
		return fmt.Errorf("%w: need %d, extracted %d",
			ErrInsufficientThumbnails, g.opts.ThumbnailCount, len(succeeded))
	}

	// Stage E: merge. Extraction completes in arbitrary order, so the
	// grid order is reconstructed from the task indices.
	sort.Slice(succeeded, func(i, j int) bool {
		return succeeded[i].Index < succeeded[j].Index
	})
	paths := make([]string, 0, len(succeeded))
	for _, r := range succeeded {
		paths = append(paths, r.OutputPath)
	}

	if err := g.merger.Create(ctx, paths, outputPath, g.opts.GridCols, g.opts.GridRows); err != nil {
		return err
	}

	if g.opts.UploadSheets {
		if err := g.uploadSheet(ctx, outputPath); err != nil {
			g.logger.Warn("sheet upload failed",
				slog.String("output", outputPath),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// selectTimestamps runs the configured selection strategy. A scene
// detection failure downgrades to uniform selection rather than failing
// the video.
func (g *Generator) selectTimestamps(ctx context.Context, info probe.VideoInfo) []float64 {
	if g.opts.Strategy == selector.StrategyScene {
		changes, err := g.detector.Detect(ctx, info, nil)
		if err != nil {
			g.logger.Warn("scene detection failed, falling back to uniform selection",
				slog.String("video", info.Path),
				slog.String("error", err.Error()),
			)
			return selector.SelectUniform(info.DurationSeconds, g.opts.ThumbnailCount)
		}
		return selector.SelectTimestamps(info.DurationSeconds, changes, g.opts.ThumbnailCount)
	}

	return selector.SelectUniform(info.DurationSeconds, g.opts.ThumbnailCount)
}

// extract dispatches to the batched or parallel single-frame strategy.
func (g *Generator) extract(ctx context.Context, videoPath string, timestamps []float64, scratch string, sig *shutdown.Signal) []thumbnail.Result {
	if g.opts.UseBatch {
		batch := g.extractor.ExtractBatch(ctx, videoPath, timestamps, scratch, sig)
		return batch.Results
	}

	tasks := thumbnail.NewTasks(videoPath, timestamps, scratch)
	return g.extractor.ExtractParallel(ctx, tasks, sig)
}

// uploadSheet pushes a finished sheet to the storage backend.
func (g *Generator) uploadSheet(ctx context.Context, outputPath string) error {
	f, err := os.Open(outputPath) // #nosec G304 - path is built by this pipeline
	if err != nil {
		return fmt.Errorf("open sheet for upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := "contact-sheets/" + filepath.Base(outputPath)
	url, err := g.store.UploadSheet(ctx, key, f)
	if err != nil {
		if errors.Is(err, storage.ErrS3NotConfigured) {
			return nil
		}
		return err
	}

	g.logger.Info("sheet uploaded",
		slog.String("url", url),
	)
	return nil
}

// videoStem returns the file name without directory or extension.
func videoStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
