// -----------------------------------------------------------------------
// Extractor - Per-file pipeline: hashes, metadata, timestamp, confidence
// -----------------------------------------------------------------------

package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/confidence"
	"github.com/ternarybob/mediaparser/internal/hashing"
	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
	"github.com/ternarybob/mediaparser/internal/thumbs"
	"github.com/ternarybob/mediaparser/internal/timestamp"
)

// metadataTagOrder is the fixed priority list of timestamp tags. Order
// only affects candidate listing; selection is by instant, not priority.
var metadataTagOrder = []string{
	models.SourceDateTimeOriginal,
	models.SourceCreateDate,
	models.SourceQuickTimeCreate,
	models.SourceModifyDate,
	models.SourceFileModify,
	models.SourceFileCreate,
}

// Extractor runs the per-file pipeline. It never touches the store; each
// call is pure input to output, so many files can run concurrently.
type Extractor struct {
	parser *timestamp.Parser
	engine *confidence.Engine
	hasher *hashing.Hasher
	probe  interfaces.MetadataProbe
	thumbs *thumbs.Generator
	logger arbor.ILogger
}

// NewExtractor wires the pipeline. thumbs may be nil to skip previews.
func NewExtractor(
	parser *timestamp.Parser,
	engine *confidence.Engine,
	hasher *hashing.Hasher,
	probe interfaces.MetadataProbe,
	thumbGen *thumbs.Generator,
	logger arbor.ILogger,
) *Extractor {
	return &Extractor{
		parser: parser,
		engine: engine,
		hasher: hasher,
		probe:  probe,
		thumbs: thumbGen,
		logger: logger,
	}
}

// Process runs the full extraction pipeline for one file.
func (e *Extractor) Process(ctx context.Context, file *models.File) *models.ExtractionResult {
	result := &models.ExtractionResult{FileID: file.ID, Status: models.ExtractionSuccess}
	path := file.StoragePath

	info, err := os.Stat(path)
	if err != nil {
		return e.fail(result, "file does not exist: "+path)
	}
	result.SizeBytes = info.Size()

	// Metadata probe is best effort; a file exiftool chokes on still gets
	// hashes, filename parsing, and an mtime candidate.
	var fields map[string]string
	probed, err := e.probe.Probe(ctx, path)
	if err != nil {
		e.logger.Warn().Err(err).Str("file", file.OriginalFilename).Msg("Metadata probe failed")
		fields = map[string]string{}
	} else {
		fields = probed.Fields
		result.MimeType = probed.MimeType
		result.Width = probed.Width
		result.Height = probed.Height
	}

	e.checkTypeMismatch(file.OriginalFilename, result.MimeType)

	sha, err := hashing.SHA256File(path)
	if err != nil {
		return e.fail(result, "hashing failed: "+err.Error())
	}
	result.SHA256 = sha
	result.PerceptualHash = e.hasher.PerceptualHash(ctx, path)

	result.Candidates = e.collectCandidates(file.OriginalFilename, fields, info.ModTime())

	chosen, level := e.engine.Score(result.Candidates)
	result.ChosenInstant = chosen
	result.Confidence = level

	if e.thumbs != nil {
		thumbPath, err := e.thumbs.Generate(ctx, file.ID, path)
		if err != nil {
			e.logger.Warn().Err(err).Str("file", file.OriginalFilename).Msg("Thumbnail generation failed")
		} else {
			result.ThumbnailPath = thumbPath
		}
	}

	return result
}

// collectCandidates gathers (instant, source) pairs from metadata tags in
// priority order, the filesystem mtime, and the filename.
func (e *Extractor) collectCandidates(name string, fields map[string]string, mtime time.Time) []models.TimestampCandidate {
	var candidates []models.TimestampCandidate

	sawFileModify := false
	for _, tag := range metadataTagOrder {
		value, ok := fields[tag]
		if !ok || value == "" {
			continue
		}

		// QuickTime container dates encode UTC regardless of locale.
		loc := e.parser.Location()
		if strings.HasPrefix(tag, "QuickTime:") {
			loc = time.UTC
		}

		if instant, ok := e.parser.ParseString(value, loc); ok {
			candidates = append(candidates, models.TimestampCandidate{Timestamp: instant, Source: tag})
			if tag == models.SourceFileModify {
				sawFileModify = true
			}
		}
	}

	// When the probe yielded no filesystem date, fall back to stat. The
	// year filter in the confidence engine weeds out epoch garbage.
	if !sawFileModify {
		candidates = append(candidates, models.TimestampCandidate{
			Timestamp: mtime.UTC().Truncate(time.Second),
			Source:    models.SourceFileModify,
		})
	}

	if instant, source, ok := e.parser.ParseFilename(name); ok {
		candidates = append(candidates, models.TimestampCandidate{Timestamp: instant, Source: source})
	}

	return candidates
}

// checkTypeMismatch compares the filename extension against the detected
// MIME type. A mismatch is logged, never fatal.
func (e *Extractor) checkTypeMismatch(name, mimeType string) {
	if mimeType == "" {
		return
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "jpeg" {
		ext = "jpg"
	}

	detected := mimeType
	if i := strings.Index(mimeType, "/"); i >= 0 {
		detected = mimeType[i+1:]
	}
	if detected == "jpeg" {
		detected = "jpg"
	}

	if ext != "" && detected != "" && ext != detected {
		e.logger.Warn().
			Str("file", name).
			Str("extension", ext).
			Str("detected", mimeType).
			Msg("File extension does not match detected type")
	}
}

func (e *Extractor) fail(result *models.ExtractionResult, message string) *models.ExtractionResult {
	result.Status = models.ExtractionError
	result.ErrorMessage = message
	return result
}
