// -----------------------------------------------------------------------
// ExifTool Probe - MetadataProbe implementation over a pooled exiftool
// -----------------------------------------------------------------------

package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	exiftool "github.com/barasher/go-exiftool"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/ternarybob/mediaparser/internal/interfaces"
)

// exifWriteLayout is the form exiftool expects for date tags.
const exifWriteLayout = "2006:01:02 15:04:05"

// exifInstance is the surface of one pooled exiftool process.
type exifInstance interface {
	ExtractMetadata(files ...string) []exiftool.FileMetadata
	WriteMetadata(fms []exiftool.FileMetadata)
	Close() error
}

// ExifToolProbe runs a pool of long-lived exiftool processes. Each process
// handles one file at a time; the semaphore bounds total concurrency.
type ExifToolProbe struct {
	sem       *semaphore.Weighted
	instances chan exifInstance
	size      int
	logger    arbor.ILogger
}

// NewExifToolProbe spawns maxConcurrent exiftool instances.
func NewExifToolProbe(maxConcurrent int, logger arbor.ILogger) (*ExifToolProbe, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	p := &ExifToolProbe{
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		instances: make(chan exifInstance, maxConcurrent),
		logger:    logger,
	}

	for i := 0; i < maxConcurrent; i++ {
		inst, err := exiftool.NewExiftool()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to start exiftool: %w", err)
		}
		p.instances <- inst
		p.size++
	}

	logger.Info().Int("instances", maxConcurrent).Msg("ExifTool probe pool started")
	return p, nil
}

// Probe reads all metadata from the file. Timestamp tags are exposed under
// their group-qualified names (EXIF:DateTimeOriginal, QuickTime:CreateDate)
// so callers can weight them by source.
func (p *ExifToolProbe) Probe(ctx context.Context, path string) (*interfaces.ProbeResult, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	inst := <-p.instances
	defer func() { p.instances <- inst }()

	metas := inst.ExtractMetadata(path)
	if len(metas) == 0 {
		return nil, fmt.Errorf("exiftool returned no metadata for %s", path)
	}
	meta := metas[0]
	if meta.Err != nil {
		return nil, fmt.Errorf("exiftool failed on %s: %w", path, meta.Err)
	}

	result := &interfaces.ProbeResult{Fields: make(map[string]string, len(meta.Fields))}
	for key, value := range meta.Fields {
		result.Fields[key] = fmt.Sprint(value)
	}

	if mime, err := mimetype.DetectFile(path); err == nil {
		result.MimeType = mime.String()
	} else {
		p.logger.Debug().Err(err).Str("file", path).Msg("MIME detection failed")
	}

	p.qualifyTimestampTags(result)

	if w, err := meta.GetInt("ImageWidth"); err == nil {
		width := int(w)
		result.Width = &width
	}
	if h, err := meta.GetInt("ImageHeight"); err == nil {
		height := int(h)
		result.Height = &height
	}

	return result, nil
}

// qualifyTimestampTags maps exiftool's flat tag names onto the
// group-qualified keys the extractor looks up. CreateDate is ambiguous
// between EXIF and QuickTime; the container's MIME type disambiguates.
func (p *ExifToolProbe) qualifyTimestampTags(result *interfaces.ProbeResult) {
	isVideo := strings.HasPrefix(result.MimeType, "video/")

	copyTag := func(flat, qualified string) {
		if v, ok := result.Fields[flat]; ok && v != "" {
			result.Fields[qualified] = v
		}
	}

	copyTag("DateTimeOriginal", "EXIF:DateTimeOriginal")
	copyTag("ModifyDate", "EXIF:ModifyDate")
	copyTag("FileModifyDate", "File:FileModifyDate")
	copyTag("FileCreateDate", "File:FileCreateDate")

	if isVideo {
		copyTag("CreateDate", "QuickTime:CreateDate")
		copyTag("MediaCreateDate", "QuickTime:CreateDate")
	} else {
		copyTag("CreateDate", "EXIF:CreateDate")
	}
}

// WriteMetadata stamps the capture-time tags and keywords on an exported
// copy in place.
func (p *ExifToolProbe) WriteMetadata(ctx context.Context, path string, instant time.Time, keywords []string) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	inst := <-p.instances
	defer func() { p.instances <- inst }()

	metas := inst.ExtractMetadata(path)
	if len(metas) == 0 || metas[0].Err != nil {
		return fmt.Errorf("exiftool could not read %s before write", path)
	}

	value := instant.UTC().Format(exifWriteLayout)
	meta := metas[0]
	meta.SetString("DateTimeOriginal", value)
	meta.SetString("CreateDate", value)
	meta.SetString("ModifyDate", value)
	if len(keywords) > 0 {
		meta.SetStrings("Keywords", keywords)
		meta.SetStrings("Subject", keywords)
	}

	fms := []exiftool.FileMetadata{meta}
	inst.WriteMetadata(fms)
	if fms[0].Err != nil {
		return fmt.Errorf("exiftool write failed on %s: %w", path, fms[0].Err)
	}
	return nil
}

// Close terminates the pooled exiftool processes. It drains the pool by
// receiving every instance, so an in-flight probe finishes and hands its
// instance back before that process is shut down. The channel stays open;
// closing it would crash the probe's deferred return.
func (p *ExifToolProbe) Close() error {
	for i := 0; i < p.size; i++ {
		inst := <-p.instances
		if err := inst.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to close exiftool instance")
		}
	}
	p.size = 0
	return nil
}
