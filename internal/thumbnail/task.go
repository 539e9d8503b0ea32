package thumbnail

import (
	"fmt"
	"path/filepath"
)

// Task describes one frame to extract. Index is the stable ordinal
// position of the frame in the final grid (0-based, row-major);
// extraction may complete in any order, so consumers reconstruct
// ordering from it.
type Task struct {
	VideoPath  string
	Timestamp  float64
	OutputPath string
	Index      int
}

// Result is the outcome of one Task. Failures are captured rather than
// raised; Success is false and ErrorMessage explains why.
type Result struct {
	OutputPath   string
	Index        int
	Success      bool
	ErrorMessage string
}

// NewTasks builds one Task per timestamp, numbering outputs
// thumb_000.jpg, thumb_001.jpg, ... inside outputDir.
func NewTasks(videoPath string, timestamps []float64, outputDir string) []Task {
	tasks := make([]Task, 0, len(timestamps))
	for i, t := range timestamps {
		tasks = append(tasks, Task{
			VideoPath:  videoPath,
			Timestamp:  t,
			OutputPath: filepath.Join(outputDir, fmt.Sprintf("thumb_%03d.jpg", i)),
			Index:      i,
		})
	}
	return tasks
}
