package probe

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

func TestProber_Info(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	videoPath := filepath.Join(tmpDir, "test.mp4")
	createTestVideo(t, videoPath, 4)

	prober := NewProber(ffmpeg.NewRunner("", ""))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := prober.Info(ctx, videoPath)
	require.NoError(t, err)

	assert.Equal(t, videoPath, info.Path)
	assert.InDelta(t, 4.0, info.DurationSeconds, 0.5)
	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 240, info.Height)
	assert.InDelta(t, 10.0, info.FrameRate, 0.1)
}

func TestProber_Info_NonExistentFile(t *testing.T) {
	checkFFmpeg(t)

	prober := NewProber(ffmpeg.NewRunner("", ""))

	_, err := prober.Info(context.Background(), "/nonexistent/video.mp4")
	require.Error(t, err)
}

func TestProber_Info_NotAVideo(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	textPath := filepath.Join(tmpDir, "not_a_video.mp4")
	require.NoError(t, os.WriteFile(textPath, []byte("plain text"), 0600))

	prober := NewProber(ffmpeg.NewRunner("", ""))

	_, err := prober.Info(context.Background(), textPath)
	require.Error(t, err)
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"ntsc fraction", "30000/1001", 29.97002997002997},
		{"integer fraction", "25/1", 25},
		{"plain number", "24", 24},
		{"empty", "", 0},
		{"zero denominator", "30/0", 0},
		{"garbage", "abc", 0},
		{"garbage denominator", "30/xyz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseFrameRate(tt.raw), 0.0001)
		})
	}
}
