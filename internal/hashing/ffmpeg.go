// -----------------------------------------------------------------------
// FFmpeg Frame Extractor - Representative video frame capture
// -----------------------------------------------------------------------

package hashing

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// frameOffset is where the representative frame is taken. Frame zero is
// often black or a fade-in; one second in is deterministic and stable.
const frameOffset = 1 * time.Second

// FFmpegExtractor shells out to ffmpeg to capture a single frame.
type FFmpegExtractor struct {
	binary string
}

// NewFFmpegExtractor builds an extractor using the given binary, or
// "ffmpeg" from PATH when empty.
func NewFFmpegExtractor(binary string) *FFmpegExtractor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegExtractor{binary: binary}
}

// ExtractFrame captures one frame at the fixed offset into framePath.
func (e *FFmpegExtractor) ExtractFrame(ctx context.Context, videoPath, framePath string) error {
	cmd := exec.CommandContext(ctx, e.binary,
		"-y",
		"-ss", fmt.Sprintf("%.0f", frameOffset.Seconds()),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		framePath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg frame extraction failed: %w: %s", err, truncate(string(out), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
