// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// ErrGridMismatch is returned when the grid dimensions do not multiply
// to the thumbnail count.
var ErrGridMismatch = errors.New("config: grid_cols * grid_rows must equal thumbnail_count")

// Config holds all configuration for the application.
type Config struct {
	// Output settings
	OutputDirName string `env:"SHEETGEN_OUTPUT_DIR, default=_contact_sheets" json:"output_dir_name" validate:"required"`
	ScratchDir    string `env:"SHEETGEN_SCRATCH_DIR" json:"scratch_dir"`

	// Grid settings
	GridCols       int `env:"SHEETGEN_GRID_COLS, default=9" json:"grid_cols" validate:"min=1,max=16"`
	GridRows       int `env:"SHEETGEN_GRID_ROWS, default=6" json:"grid_rows" validate:"min=1,max=16"`
	ThumbnailCount int `env:"SHEETGEN_THUMBNAIL_COUNT, default=54" json:"thumbnail_count" validate:"min=1"`

	// Selection settings
	Strategy string `env:"SHEETGEN_STRATEGY, default=scene" json:"strategy" validate:"oneof=scene uniform"`

	// Extraction settings
	UseBatch bool `env:"SHEETGEN_BATCH, default=true" json:"use_batch"`
	Workers  int  `env:"SHEETGEN_WORKERS, default=0" json:"workers" validate:"min=0"` // 0 = NumCPU

	// Tool paths (found via PATH when empty)
	FFmpegPath  string `env:"SHEETGEN_FFMPEG_PATH" json:"ffmpeg_path"`
	FFprobePath string `env:"SHEETGEN_FFPROBE_PATH" json:"ffprobe_path"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"` // S3-compatible endpoints (MinIO etc.)
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints and grid consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.GridCols*c.GridRows != c.ThumbnailCount {
		return fmt.Errorf("%w: %dx%d != %d", ErrGridMismatch, c.GridCols, c.GridRows, c.ThumbnailCount)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for
// unattended runs. Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive
// values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{OutputDirName: %s, Grid: %dx%d, ThumbnailCount: %d, Strategy: %s, UseBatch: %t, Workers: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.OutputDirName,
		c.GridCols,
		c.GridRows,
		c.ThumbnailCount,
		c.Strategy,
		c.UseBatch,
		c.Workers,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
