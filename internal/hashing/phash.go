// -----------------------------------------------------------------------
// Perceptual Hash - DCT-based 64-bit hashes for near-duplicate detection
// -----------------------------------------------------------------------

package hashing

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/ternarybob/arbor"

	// Decoders for the formats the pipeline accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// videoExtensions are hashed via a single extracted frame.
var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".mkv": true,
}

// FrameExtractor pulls a representative still from a video file.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath, framePath string) error
}

// Hasher computes perceptual hashes for images and videos. Safe for
// concurrent use.
type Hasher struct {
	frames FrameExtractor
	logger arbor.ILogger
}

// NewHasher builds a perceptual hasher. frames may be nil, in which case
// videos yield no hash.
func NewHasher(frames FrameExtractor, logger arbor.ILogger) *Hasher {
	return &Hasher{frames: frames, logger: logger}
}

// PerceptualHash returns the file's 64-bit DCT hash rendered as 16 hex
// characters. An empty string means the format could not be decoded; that
// is a normal result for unsupported media, not an error.
func (h *Hasher) PerceptualHash(ctx context.Context, path string) string {
	source := path
	if videoExtensions[strings.ToLower(filepath.Ext(path))] {
		if h.frames == nil {
			return ""
		}
		frame, err := os.CreateTemp("", "mediaparser-frame-*.jpg")
		if err != nil {
			h.logger.Debug().Err(err).Msg("Failed to create temp frame file")
			return ""
		}
		frame.Close()
		defer os.Remove(frame.Name())

		if err := h.frames.ExtractFrame(ctx, path, frame.Name()); err != nil {
			h.logger.Debug().Err(err).Str("file", filepath.Base(path)).Msg("Frame extraction failed")
			return ""
		}
		source = frame.Name()
	}

	f, err := os.Open(source)
	if err != nil {
		h.logger.Debug().Err(err).Str("file", filepath.Base(path)).Msg("Failed to open file for perceptual hash")
		return ""
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		// Undecodable formats (HEIC, raw, corrupt files) simply get no hash
		h.logger.Debug().Err(err).Str("file", filepath.Base(path)).Msg("Could not decode image for perceptual hash")
		return ""
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		h.logger.Debug().Err(err).Str("file", filepath.Base(path)).Msg("Perceptual hash failed")
		return ""
	}

	return fmt.Sprintf("%016x", hash.GetHash())
}
