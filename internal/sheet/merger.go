// Package sheet composes extracted thumbnails into a single grid image
// using the ffmpeg xstack filter. xstack takes an explicit pixel
// position per input, which keeps the layout deterministic.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/weichenlin/sheetgen/internal/ffmpeg"
)

// Default grid: 9 columns x 6 rows = 54 thumbnails.
const (
	DefaultGridCols       = 9
	DefaultGridRows       = 6
	DefaultThumbnailCount = DefaultGridCols * DefaultGridRows
)

// ErrInsufficientThumbnails is returned when fewer thumbnails are
// supplied than the grid needs. The grid is never silently padded.
var ErrInsufficientThumbnails = errors.New("sheet: not enough thumbnails for grid")

// Merger builds contact sheets from thumbnail files.
type Merger struct {
	runner *ffmpeg.Runner
	logger *slog.Logger
	// tileWidth and tileHeight are the dimensions every input tile is
	// assumed to have; positions in the layout are multiples of them.
	tileWidth  int
	tileHeight int
}

// NewMerger creates a Merger for tiles of the given size.
func NewMerger(runner *ffmpeg.Runner, logger *slog.Logger, tileWidth, tileHeight int) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		runner:     runner,
		logger:     logger,
		tileWidth:  tileWidth,
		tileHeight: tileHeight,
	}
}

// Create composes the ordered thumbnails into a cols x rows grid at
// outputPath. The thumbnails slice must already be sorted by grid
// index and contain at least cols*rows entries.
func (m *Merger) Create(ctx context.Context, thumbnails []string, outputPath string, cols, rows int) error {
	expected := cols * rows
	if len(thumbnails) < expected {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientThumbnails, expected, len(thumbnails))
	}

	m.logger.Debug("merging thumbnails into contact sheet",
		slog.Int("count", expected),
		slog.Int("cols", cols),
		slog.Int("rows", rows),
		slog.String("output", outputPath),
	)

	args := []string{"-hide_banner", "-loglevel", "error"}
	for _, thumb := range thumbnails[:expected] {
		args = append(args, "-i", thumb)
	}

	filter := fmt.Sprintf("xstack=inputs=%d:layout=%s", expected, m.buildLayout(cols, rows))

	args = append(args,
		"-filter_complex", filter,
		"-frames:v", "1",
		"-y",
		outputPath,
	)

	if err := m.runner.Run(ctx, args); err != nil {
		return fmt.Errorf("merge contact sheet: %w", err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("contact sheet not created: %s", outputPath)
	}

	return nil
}

// buildLayout serializes the row-major grid positions as the
// pipe-delimited coordinate list xstack expects, e.g. for a 2x2 grid of
// 320x180 tiles: "0_0|320_0|0_180|320_180".
func (m *Merger) buildLayout(cols, rows int) string {
	positions := make([]string, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			positions = append(positions, fmt.Sprintf("%d_%d", col*m.tileWidth, row*m.tileHeight))
		}
	}
	return strings.Join(positions, "|")
}

// Size returns the pixel dimensions of a cols x rows sheet.
func (m *Merger) Size(cols, rows int) (width, height int) {
	return cols * m.tileWidth, rows * m.tileHeight
}
