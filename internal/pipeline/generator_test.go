package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weichenlin/sheetgen/internal/ffmpeg"
	"github.com/weichenlin/sheetgen/internal/probe"
	"github.com/weichenlin/sheetgen/internal/scene"
	"github.com/weichenlin/sheetgen/internal/selector"
	"github.com/weichenlin/sheetgen/internal/sheet"
	"github.com/weichenlin/sheetgen/internal/shutdown"
	"github.com/weichenlin/sheetgen/internal/storage"
	"github.com/weichenlin/sheetgen/internal/thumbnail"
)

// checkFFmpeg skips test if ffmpeg or ffprobe is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found in PATH, skipping test", tool)
		}
	}
}

// createTestVideo renders a short synthetic test video.
func createTestVideo(t *testing.T, outputPath string, durationSec float64) {
	t.Helper()

	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", fmt.Sprintf("testsrc=duration=%.3f:size=320x240:rate=10", durationSec),
		"-pix_fmt", "yuv420p",
		outputPath,
	)
	stderr, _ := cmd.CombinedOutput()
	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		t.Fatalf("failed to create test video: %s", string(stderr))
	}
}

// newTestGenerator wires a Generator with real components, a small 2x2
// uniform profile and scratch space under the test temp dir.
func newTestGenerator(t *testing.T, opts Options) *Generator {
	t.Helper()

	runner := ffmpeg.NewRunner("", "")
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	thumbOpts := thumbnail.DefaultOptions()
	extractor := thumbnail.NewExtractor(runner, nil, thumbOpts)
	extractor.SetWorkers(2)

	g, err := NewGenerator(
		probe.NewProber(runner),
		scene.NewDetector(runner, nil),
		extractor,
		sheet.NewMerger(runner, nil, thumbOpts.Width, thumbOpts.Height),
		store,
		nil,
		opts,
	)
	require.NoError(t, err)
	return g
}

func smallTestOptions() Options {
	return Options{
		ThumbnailCount: 4,
		GridCols:       2,
		GridRows:       2,
		Strategy:       selector.StrategyUniform,
		UseBatch:       false,
		Workers:        1,
		OutputDirName:  "_contact_sheets",
	}
}

func TestNewGenerator_GridMismatch(t *testing.T) {
	opts := smallTestOptions()
	opts.ThumbnailCount = 5

	_, err := NewGenerator(nil, nil, nil, nil, nil, nil, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid")
}

func TestNewGenerator_InvalidStrategy(t *testing.T) {
	opts := smallTestOptions()
	opts.Strategy = "random"

	_, err := NewGenerator(nil, nil, nil, nil, nil, nil, opts)
	require.Error(t, err)
}

func TestNewGenerator_MissingOutputDirName(t *testing.T) {
	opts := smallTestOptions()
	opts.OutputDirName = ""

	_, err := NewGenerator(nil, nil, nil, nil, nil, nil, opts)
	require.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 54, opts.ThumbnailCount)
	assert.Equal(t, 9, opts.GridCols)
	assert.Equal(t, 6, opts.GridRows)
	assert.Equal(t, selector.StrategyScene, opts.Strategy)
	assert.True(t, opts.UseBatch)
	assert.Equal(t, "_contact_sheets", opts.OutputDirName)
}

func TestVideoStem(t *testing.T) {
	assert.Equal(t, "movie", videoStem("/videos/movie.mp4"))
	assert.Equal(t, "show.S01E01", videoStem("show.S01E01.mkv"))
	assert.Equal(t, "plain", videoStem("plain"))
}

func TestGenerator_Run_NoVideos(t *testing.T) {
	checkFFmpeg(t)

	g := newTestGenerator(t, smallTestOptions())

	_, err := g.Run(context.Background(), t.TempDir(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoVideos)
}

func TestGenerator_Run_EndToEnd(t *testing.T) {
	checkFFmpeg(t)

	inputDir := t.TempDir()
	createTestVideo(t, filepath.Join(inputDir, "sample.mp4"), 10)

	g := newTestGenerator(t, smallTestOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	result, err := g.Run(ctx, inputDir, shutdown.New())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalVideos)
	assert.Equal(t, 1, result.Successful)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.Skipped)

	sheetPath := filepath.Join(inputDir, "_contact_sheets", "sample_contact_sheet.jpg")
	assert.FileExists(t, sheetPath)
}

func TestGenerator_Run_SkipsExistingSheets(t *testing.T) {
	checkFFmpeg(t)

	inputDir := t.TempDir()
	createTestVideo(t, filepath.Join(inputDir, "sample.mp4"), 10)

	sheetDir := filepath.Join(inputDir, "_contact_sheets")
	require.NoError(t, os.MkdirAll(sheetDir, 0750))
	require.NoError(t, os.WriteFile(
		filepath.Join(sheetDir, "sample_contact_sheet.jpg"), []byte("existing"), 0600))

	g := newTestGenerator(t, smallTestOptions())

	result, err := g.Run(context.Background(), inputDir, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalVideos)
	assert.Zero(t, result.Successful)
	assert.Equal(t, 1, result.Skipped)
}

func TestGenerator_Run_ShutdownSkipsAll(t *testing.T) {
	checkFFmpeg(t)

	inputDir := t.TempDir()
	createTestVideo(t, filepath.Join(inputDir, "sample.mp4"), 5)

	g := newTestGenerator(t, smallTestOptions())

	sig := shutdown.New()
	sig.Set()

	result, err := g.Run(context.Background(), inputDir, sig)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Successful)
}

func TestGenerator_ProcessVideo_TooShort(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	videoPath := filepath.Join(tmpDir, "blip.mp4")
	createTestVideo(t, videoPath, 0.5)

	g := newTestGenerator(t, smallTestOptions())

	err := g.ProcessVideo(context.Background(), videoPath, filepath.Join(tmpDir, "out.jpg"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVideoTooShort)
}

func TestGenerator_ProcessVideo_SceneStrategyWithBatch(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	videoPath := filepath.Join(tmpDir, "sample.mp4")
	createTestVideo(t, videoPath, 12)

	opts := smallTestOptions()
	opts.Strategy = selector.StrategyScene
	opts.UseBatch = true

	g := newTestGenerator(t, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	outputPath := filepath.Join(tmpDir, "sample_contact_sheet.jpg")
	require.NoError(t, g.ProcessVideo(ctx, videoPath, outputPath, nil))
	assert.FileExists(t, outputPath)
}

func TestGenerator_ProcessVideo_MissingFile(t *testing.T) {
	checkFFmpeg(t)

	g := newTestGenerator(t, smallTestOptions())

	err := g.ProcessVideo(context.Background(), "/nonexistent/video.mp4",
		filepath.Join(t.TempDir(), "out.jpg"), nil)
	require.Error(t, err)
}
