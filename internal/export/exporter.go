// -----------------------------------------------------------------------
// Exporter - Copies reviewed files into the chronological output tree
// -----------------------------------------------------------------------

package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

const (
	outputNameLayout = "20060102_150405"
	yearLayout       = "2006"
	maxCollisionSeq  = 999
)

// Exporter places one file at a time into the output tree. Concurrent
// workers share the collision reservation table so two files exported in
// the same second cannot claim the same name.
type Exporter struct {
	outputDir     string
	unknownFolder string
	probe         interfaces.MetadataProbe
	tags          interfaces.TagStorage
	logger        arbor.ILogger

	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewExporter creates an exporter rooted at outputDir.
func NewExporter(outputDir, unknownFolder string, probe interfaces.MetadataProbe, tags interfaces.TagStorage, logger arbor.ILogger) *Exporter {
	if unknownFolder == "" {
		unknownFolder = "unknown"
	}
	return &Exporter{
		outputDir:     outputDir,
		unknownFolder: unknownFolder,
		probe:         probe,
		tags:          tags,
		logger:        logger,
		reserved:      make(map[string]struct{}),
	}
}

// Process copies one file into the output tree, verifies the copy, stamps
// its embedded metadata, and sets OutputPath on the file. A returned error
// is a per-file failure; the caller records it and continues.
func (e *Exporter) Process(ctx context.Context, file *models.File) error {
	target, err := e.resolveTarget(file)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := copyFile(file.StoragePath, target); err != nil {
		e.release(target)
		return err
	}

	if err := verifyCopy(file.StoragePath, target); err != nil {
		e.release(target)
		return err
	}

	// Metadata write failures leave a valid copy behind; log and move on.
	if ts := file.EffectiveTimestamp(); ts != nil && e.probe != nil {
		keywords := e.keywordsFor(ctx, file)
		if err := e.probe.WriteMetadata(ctx, target, *ts, keywords); err != nil {
			e.logger.Warn().Err(err).Str("file", file.OriginalFilename).Msg("Failed to write embedded metadata")
		}
	}

	file.OutputPath = &target
	return nil
}

// resolveTarget computes and reserves the destination path, resolving name
// collisions with a numeric suffix.
func (e *Exporter) resolveTarget(file *models.File) (string, error) {
	var dir, stem, ext string

	if ts := file.EffectiveTimestamp(); ts != nil {
		utc := ts.UTC()
		dir = filepath.Join(e.outputDir, utc.Format(yearLayout))
		stem = utc.Format(outputNameLayout)
		ext = strings.ToLower(filepath.Ext(file.OriginalFilename))
	} else {
		dir = filepath.Join(e.outputDir, e.unknownFolder)
		name := sanitizeFilename(file.OriginalFilename)
		ext = filepath.Ext(name)
		stem = strings.TrimSuffix(name, ext)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	candidate := filepath.Join(dir, stem+ext)
	if e.available(candidate) {
		e.reserved[candidate] = struct{}{}
		return candidate, nil
	}
	for seq := 1; seq <= maxCollisionSeq; seq++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%03d%s", stem, seq, ext))
		if e.available(candidate) {
			e.reserved[candidate] = struct{}{}
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free output name for %s after %d attempts", file.OriginalFilename, maxCollisionSeq)
}

// available reports whether a candidate path is unclaimed both on disk and
// by this run. Caller holds the mutex.
func (e *Exporter) available(path string) bool {
	if _, taken := e.reserved[path]; taken {
		return false
	}
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}

// release frees a reservation after a failed copy so a retry can reuse it.
func (e *Exporter) release(path string) {
	e.mu.Lock()
	delete(e.reserved, path)
	e.mu.Unlock()
}

// keywordsFor loads the file's tag names for the embedded keyword fields.
func (e *Exporter) keywordsFor(ctx context.Context, file *models.File) []string {
	if e.tags == nil {
		return nil
	}
	tags, err := e.tags.TagsForFile(ctx, file.ID)
	if err != nil {
		e.logger.Warn().Err(err).Int64("file_id", file.ID).Msg("Failed to load tags for export")
		return nil
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

// copyFile copies source to target preserving the modification time.
func copyFile(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("source unavailable: %w", err)
	}

	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(target)
		return fmt.Errorf("copy failed: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return fmt.Errorf("failed to flush target: %w", err)
	}

	mtime := info.ModTime()
	if err := os.Chtimes(target, time.Now(), mtime); err != nil {
		return fmt.Errorf("failed to preserve mtime: %w", err)
	}
	return nil
}

// verifyCopy confirms the target exists and matches the source size.
func verifyCopy(source, target string) error {
	srcInfo, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("source vanished during export: %w", err)
	}
	dstInfo, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("copy verification failed: %w", err)
	}
	if srcInfo.Size() != dstInfo.Size() {
		return fmt.Errorf("copy size mismatch: source %d bytes, target %d bytes", srcInfo.Size(), dstInfo.Size())
	}
	return nil
}

// sanitizeFilename strips path components and replaces characters that are
// unsafe in a flat output directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
