// -----------------------------------------------------------------------
// MetadataProbe - Contract for reading and writing embedded media metadata
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"
)

// ProbeResult carries everything the extractor needs from one metadata read.
// Fields are keyed by the tool's group:name form, e.g. "EXIF:DateTimeOriginal".
type ProbeResult struct {
	Fields   map[string]string
	MimeType string
	Width    *int
	Height   *int
}

// MetadataProbe reads embedded metadata from media files and writes
// timestamp tags back during export. Implementations bound their own
// concurrency; callers may probe from many goroutines.
type MetadataProbe interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// WriteMetadata stamps the capture-time tags and keyword tags on an
	// exported copy. Failures are reported but treated as non-fatal by
	// callers.
	WriteMetadata(ctx context.Context, path string, instant time.Time, keywords []string) error

	Close() error
}
