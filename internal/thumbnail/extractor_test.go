package thumbnail

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
	"github.com/weichenlin/sheetgen/internal/shutdown"
)

// checkFFmpeg skips test if ffmpeg is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
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

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return NewExtractor(ffmpeg.NewRunner("", ""), nil, DefaultOptions())
}

func TestNewTasks(t *testing.T) {
	tasks := NewTasks("/videos/a.mp4", []float64{1.5, 3.0, 4.5}, "/tmp/scratch")

	require.Len(t, tasks, 3)
	assert.Equal(t, filepath.Join("/tmp/scratch", "thumb_000.jpg"), tasks[0].OutputPath)
	assert.Equal(t, filepath.Join("/tmp/scratch", "thumb_002.jpg"), tasks[2].OutputPath)
	assert.Equal(t, 0, tasks[0].Index)
	assert.Equal(t, 2, tasks[2].Index)
	assert.Equal(t, 3.0, tasks[1].Timestamp)
	assert.Equal(t, "/videos/a.mp4", tasks[1].VideoPath)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 320, opts.Width)
	assert.Equal(t, 180, opts.Height)
	assert.Equal(t, 2, opts.Quality)
}

func TestExtractor_Extract(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	videoPath := filepath.Join(tmpDir, "test.mp4")
	createTestVideo(t, videoPath, 10)

	e := newTestExtractor(t)
	task := Task{
		VideoPath:  videoPath,
		Timestamp:  5.0,
		OutputPath: filepath.Join(tmpDir, "thumb_000.jpg"),
		Index:      0,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result := e.Extract(ctx, task)
	require.True(t, result.Success, "extraction failed: %s", result.ErrorMessage)
	assert.FileExists(t, task.OutputPath)
}

func TestExtractor_Extract_NearStart(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	videoPath := filepath.Join(tmpDir, "test.mp4")
	createTestVideo(t, videoPath, 10)

	e := newTestExtractor(t)

	// A timestamp inside the coarse seek margin skips the pre-open seek.
	task := Task{
		VideoPath:  videoPath,
		Timestamp:  0.5,
		OutputPath: filepath.Join(tmpDir, "thumb_000.jpg"),
		Index:      0,
	}

	result := e.Extract(context.Background(), task)
	require.True(t, result.Success, "extraction failed: %s", result.ErrorMessage)
	assert.FileExists(t, task.OutputPath)
}

func TestExtractor_Extract_NonExistentVideo(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	e := newTestExtractor(t)
	task := Task{
		VideoPath:  "/nonexistent/video.mp4",
		Timestamp:  5.0,
		OutputPath: filepath.Join(tmpDir, "thumb_000.jpg"),
		Index:      0,
	}

	result := e.Extract(context.Background(), task)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestExtractor_ExtractParallel(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	videoPath := filepath.Join(tmpDir, "test.mp4")
	createTestVideo(t, videoPath, 10)

	e := newTestExtractor(t)
	e.SetWorkers(2)

	tasks := NewTasks(videoPath, []float64{1.0, 3.0, 5.0, 7.0}, tmpDir)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	results := e.ExtractParallel(ctx, tasks, nil)
	require.Len(t, results, 4)

	for i, r := range results {
		assert.True(t, r.Success, "task %d failed: %s", i, r.ErrorMessage)
		assert.Equal(t, i, r.Index)
		assert.FileExists(t, r.OutputPath)
	}
}

func TestExtractor_ExtractParallel_ShutdownRequested(t *testing.T) {
	tmpDir := t.TempDir()

	e := newTestExtractor(t)
	tasks := NewTasks("/nonexistent/video.mp4", []float64{1.0, 2.0, 3.0}, tmpDir)

	sig := shutdown.New()
	sig.Set()

	// No process is launched once the flag is set, so this needs no ffmpeg.
	results := e.ExtractParallel(context.Background(), tasks, sig)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.False(t, r.Success)
		assert.Equal(t, "cancelled", r.ErrorMessage)
	}
}

func TestExtractor_Placeholder(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "placeholder.jpg")

	e := newTestExtractor(t)
	require.NoError(t, e.Placeholder(context.Background(), outputPath))
	assert.FileExists(t, outputPath)
}

func TestScaleFilter(t *testing.T) {
	filter := scaleFilter(320, 180)
	assert.Equal(t,
		"scale=320:180:force_original_aspect_ratio=decrease,pad=320:180:(ow-iw)/2:(oh-ih)/2:black",
		filter,
	)
}
