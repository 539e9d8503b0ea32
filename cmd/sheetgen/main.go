// Package main provides the sheetgen command line entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/weichenlin/sheetgen/internal/bootstrap"
	"github.com/weichenlin/sheetgen/internal/config"
	"github.com/weichenlin/sheetgen/internal/pipeline"
	"github.com/weichenlin/sheetgen/internal/shutdown"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	inputDir := flag.String("input", "", "directory containing video files (required)")
	flag.Parse()

	if *inputDir == "" && flag.NArg() > 0 {
		*inputDir = flag.Arg(0)
	}
	if *inputDir == "" {
		flag.Usage()
		return fmt.Errorf("input directory is required")
	}

	if info, err := os.Stat(*inputDir); err != nil || !info.IsDir() {
		return fmt.Errorf("input directory does not exist: %s", *inputDir)
	}

	// Optional .env file for local runs; environment wins over file values.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting sheetgen",
		slog.String("input_dir", *inputDir),
		slog.String("strategy", cfg.Strategy),
		slog.Int("grid_cols", cfg.GridCols),
		slog.Int("grid_rows", cfg.GridRows),
		slog.Bool("use_batch", cfg.UseBatch),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	sig := shutdown.New()
	sig.NotifyOnInterrupt(logger)

	result, err := deps.Generator.Run(context.Background(), *inputDir, sig)
	if err != nil {
		return err
	}

	printSummary(result)

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d videos failed", result.Failed, result.TotalVideos)
	}
	return nil
}

func printSummary(result pipeline.Result) {
	fmt.Println()
	fmt.Println(titleStyle.Render("=== contact sheet summary ==="))
	fmt.Printf("  total:      %d\n", result.TotalVideos)
	fmt.Printf("  successful: %s\n", successStyle.Render(fmt.Sprintf("%d", result.Successful)))
	if result.Skipped > 0 {
		fmt.Printf("  skipped:    %s\n", skipStyle.Render(fmt.Sprintf("%d", result.Skipped)))
	}
	if result.Failed > 0 {
		fmt.Printf("  failed:     %s\n", failStyle.Render(fmt.Sprintf("%d", result.Failed)))
	}
}
