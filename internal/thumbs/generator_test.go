package thumbs

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(filepath.Join(t.TempDir(), "thumbnails"), nil, arbor.NewLogger())
	require.NoError(t, err)
	return g
}

func writePNG(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "source.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestGenerate_ScalesToFixedWidth(t *testing.T) {
	g := newTestGenerator(t)

	source := writePNG(t, 1280, 960)
	path, err := g.Generate(context.Background(), 7, source)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(g.Dir(), "7_thumb.jpg"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	thumb, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 320, thumb.Bounds().Dx())
	assert.Equal(t, 240, thumb.Bounds().Dy())
}

func TestGenerate_SmallImageKeepsSize(t *testing.T) {
	g := newTestGenerator(t)

	source := writePNG(t, 100, 80)
	path, err := g.Generate(context.Background(), 8, source)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	thumb, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 100, thumb.Bounds().Dx())
	assert.Equal(t, 80, thumb.Bounds().Dy())
}

func TestGenerate_UndecodableIsNotAnError(t *testing.T) {
	g := newTestGenerator(t)

	source := filepath.Join(t.TempDir(), "not-an-image.jpg")
	require.NoError(t, os.WriteFile(source, []byte("plain text"), 0644))

	path, err := g.Generate(context.Background(), 9, source)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestGenerate_VideoWithoutFrameExtractor(t *testing.T) {
	g := newTestGenerator(t)

	path, err := g.Generate(context.Background(), 10, "/media/clip.mp4")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestRemove(t *testing.T) {
	g := newTestGenerator(t)

	source := writePNG(t, 64, 64)
	path, err := g.Generate(context.Background(), 11, source)
	require.NoError(t, err)
	require.FileExists(t, path)

	g.Remove(11)
	assert.NoFileExists(t, path)

	// Removing a missing thumbnail is quiet.
	g.Remove(11)
}
