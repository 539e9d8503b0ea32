// Package bootstrap provides dependency initialization for sheetgen.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/weichenlin/sheetgen/internal/config"
	"github.com/weichenlin/sheetgen/internal/ffmpeg"
	"github.com/weichenlin/sheetgen/internal/pipeline"
	"github.com/weichenlin/sheetgen/internal/probe"
	"github.com/weichenlin/sheetgen/internal/scene"
	"github.com/weichenlin/sheetgen/internal/selector"
	"github.com/weichenlin/sheetgen/internal/sheet"
	"github.com/weichenlin/sheetgen/internal/storage"
	"github.com/weichenlin/sheetgen/internal/thumbnail"
)

// Dependencies holds all initialized dependencies for a run.
type Dependencies struct {
	Generator *pipeline.Generator
}

// NewDependencies creates and wires all dependencies from configuration.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	runner := ffmpeg.NewRunner(cfg.FFmpegPath, cfg.FFprobePath)

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	thumbOpts := thumbnail.DefaultOptions()
	extractor := thumbnail.NewExtractor(runner, logger, thumbOpts)
	if cfg.Workers > 0 {
		extractor.SetWorkers(cfg.Workers)
	}

	opts := pipeline.Options{
		ThumbnailCount: cfg.ThumbnailCount,
		GridCols:       cfg.GridCols,
		GridRows:       cfg.GridRows,
		Strategy:       selector.Strategy(cfg.Strategy),
		UseBatch:       cfg.UseBatch,
		Workers:        cfg.Workers,
		OutputDirName:  cfg.OutputDirName,
		UploadSheets:   cfg.S3Enabled(),
	}

	generator, err := pipeline.NewGenerator(
		probe.NewProber(runner),
		scene.NewDetector(runner, logger),
		extractor,
		sheet.NewMerger(runner, logger, thumbOpts.Width, thumbOpts.Height),
		store,
		logger,
		opts,
	)
	if err != nil {
		return nil, err
	}

	return &Dependencies{Generator: generator}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.ScratchDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 delivery configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("scratch_dir", localStore.Root()),
	)
	return localStore, nil
}
