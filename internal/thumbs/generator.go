// -----------------------------------------------------------------------
// Thumbnail Generator - Small JPEG previews for the review UI
// -----------------------------------------------------------------------

package thumbs

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/image/draw"

	"github.com/ternarybob/mediaparser/internal/hashing"
)

const (
	thumbWidth  = 320
	jpegQuality = 80
)

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".mkv": true,
}

// Generator renders fixed-width JPEG thumbnails into a single directory,
// named <fileID>_thumb.jpg. Safe for concurrent use.
type Generator struct {
	dir    string
	frames hashing.FrameExtractor
	logger arbor.ILogger
}

// NewGenerator builds a thumbnail generator writing into dir. frames may be
// nil, in which case videos get no thumbnail.
func NewGenerator(dir string, frames hashing.FrameExtractor, logger arbor.ILogger) (*Generator, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	return &Generator{dir: dir, frames: frames, logger: logger}, nil
}

// Generate renders the thumbnail for one file and returns its path. An
// empty path with nil error means the media could not be decoded, which is
// normal for unsupported formats.
func (g *Generator) Generate(ctx context.Context, fileID int64, sourcePath string) (string, error) {
	source := sourcePath
	if videoExtensions[strings.ToLower(filepath.Ext(sourcePath))] {
		if g.frames == nil {
			return "", nil
		}
		frame, err := os.CreateTemp("", "mediaparser-thumb-*.jpg")
		if err != nil {
			return "", fmt.Errorf("failed to create temp frame: %w", err)
		}
		frame.Close()
		defer os.Remove(frame.Name())

		if err := g.frames.ExtractFrame(ctx, sourcePath, frame.Name()); err != nil {
			g.logger.Debug().Err(err).Str("file", filepath.Base(sourcePath)).Msg("No thumbnail frame for video")
			return "", nil
		}
		source = frame.Name()
	}

	f, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("failed to open media for thumbnail: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		g.logger.Debug().Err(err).Str("file", filepath.Base(sourcePath)).Msg("Could not decode media for thumbnail")
		return "", nil
	}

	thumbPath := filepath.Join(g.dir, fmt.Sprintf("%d_thumb.jpg", fileID))
	if err := g.write(img, thumbPath); err != nil {
		return "", err
	}
	return thumbPath, nil
}

func (g *Generator) write(img image.Image, path string) error {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return fmt.Errorf("empty image")
	}

	width := thumbWidth
	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}
	if bounds.Dx() <= width {
		width, height = bounds.Dx(), bounds.Dy()
	}

	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return nil
}

// Remove deletes the thumbnail for a file if it exists.
func (g *Generator) Remove(fileID int64) {
	path := filepath.Join(g.dir, fmt.Sprintf("%d_thumb.jpg", fileID))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		g.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove thumbnail")
	}
}

// Dir returns the thumbnail directory.
func (g *Generator) Dir() string {
	return g.dir
}
