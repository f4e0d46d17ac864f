package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/models"
)

func newTestExporter(t *testing.T) (*Exporter, string) {
	t.Helper()
	outputDir := t.TempDir()
	return NewExporter(outputDir, "unknown", nil, nil, arbor.NewLogger()), outputDir
}

func sourceFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestProcess_TimestampedFile(t *testing.T) {
	e, outputDir := newTestExporter(t)

	instant := time.Date(2023, 4, 18, 16, 45, 30, 0, time.UTC)
	file := &models.File{
		OriginalFilename: "IMG_1234.JPG",
		StoragePath:      sourceFile(t, "IMG_1234.JPG", "jpeg-bytes"),
		FinalTimestamp:   &instant,
	}

	require.NoError(t, e.Process(context.Background(), file))

	want := filepath.Join(outputDir, "2023", "20230418_164530.jpg")
	require.NotNil(t, file.OutputPath)
	assert.Equal(t, want, *file.OutputPath)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestProcess_DetectedTimestampUsedWhenNotOverridden(t *testing.T) {
	e, outputDir := newTestExporter(t)

	detected := time.Date(2020, 11, 2, 8, 0, 0, 0, time.UTC)
	file := &models.File{
		OriginalFilename:  "clip.mp4",
		StoragePath:       sourceFile(t, "clip.mp4", "video"),
		DetectedTimestamp: &detected,
	}

	require.NoError(t, e.Process(context.Background(), file))
	assert.Equal(t, filepath.Join(outputDir, "2020", "20201102_080000.mp4"), *file.OutputPath)
}

func TestProcess_UnknownFolder(t *testing.T) {
	e, outputDir := newTestExporter(t)

	file := &models.File{
		OriginalFilename: "weird name (1).jpg",
		StoragePath:      sourceFile(t, "weird.jpg", "x"),
	}

	require.NoError(t, e.Process(context.Background(), file))
	assert.Equal(t, filepath.Join(outputDir, "unknown", "weird_name__1_.jpg"), *file.OutputPath)
}

func TestProcess_CollisionGetsSequence(t *testing.T) {
	e, outputDir := newTestExporter(t)

	instant := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	first := &models.File{
		OriginalFilename: "a.jpg",
		StoragePath:      sourceFile(t, "a.jpg", "one"),
		FinalTimestamp:   &instant,
	}
	second := &models.File{
		OriginalFilename: "b.jpg",
		StoragePath:      sourceFile(t, "b.jpg", "two"),
		FinalTimestamp:   &instant,
	}

	require.NoError(t, e.Process(context.Background(), first))
	require.NoError(t, e.Process(context.Background(), second))

	assert.Equal(t, filepath.Join(outputDir, "2023", "20230101_120000.jpg"), *first.OutputPath)
	assert.Equal(t, filepath.Join(outputDir, "2023", "20230101_120000_001.jpg"), *second.OutputPath)
}

func TestProcess_CollisionWithPreexistingOutput(t *testing.T) {
	e, outputDir := newTestExporter(t)

	// A file from a previous run already occupies the base name.
	instant := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	yearDir := filepath.Join(outputDir, "2023")
	require.NoError(t, os.MkdirAll(yearDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(yearDir, "20230101_120000.jpg"), []byte("old"), 0644))

	file := &models.File{
		OriginalFilename: "a.jpg",
		StoragePath:      sourceFile(t, "a.jpg", "new"),
		FinalTimestamp:   &instant,
	}
	require.NoError(t, e.Process(context.Background(), file))
	assert.Equal(t, filepath.Join(yearDir, "20230101_120000_001.jpg"), *file.OutputPath)

	// The prior run's output is untouched.
	data, err := os.ReadFile(filepath.Join(yearDir, "20230101_120000.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestProcess_MissingSource(t *testing.T) {
	e, _ := newTestExporter(t)

	file := &models.File{
		OriginalFilename: "gone.jpg",
		StoragePath:      "/nonexistent/gone.jpg",
	}
	err := e.Process(context.Background(), file)
	assert.Error(t, err)
	assert.Nil(t, file.OutputPath)
}

func TestProcess_PreservesModificationTime(t *testing.T) {
	e, _ := newTestExporter(t)

	source := sourceFile(t, "old.jpg", "content")
	mtime := time.Date(2018, 3, 3, 3, 3, 3, 0, time.UTC)
	require.NoError(t, os.Chtimes(source, time.Now(), mtime))

	instant := time.Date(2018, 3, 3, 3, 3, 3, 0, time.UTC)
	file := &models.File{
		OriginalFilename: "old.jpg",
		StoragePath:      source,
		FinalTimestamp:   &instant,
	}
	require.NoError(t, e.Process(context.Background(), file))

	info, err := os.Stat(*file.OutputPath)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "photo.jpg", sanitizeFilename("photo.jpg"))
	assert.Equal(t, "my_photo_2.jpg", sanitizeFilename("my photo~2.jpg"))
	assert.Equal(t, "escape.jpg", sanitizeFilename("../../escape.jpg"))
	assert.Equal(t, "___.jpg", sanitizeFilename("日本語.jpg"))
}
