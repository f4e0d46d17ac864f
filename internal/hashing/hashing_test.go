package hashing

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestSHA256File_KnownDigests(t *testing.T) {
	empty := writeTempFile(t, "empty.bin", nil)
	got, err := SHA256File(empty)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)

	abc := writeTempFile(t, "abc.bin", []byte("abc"))
	got, err = SHA256File(abc)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
}

func TestSHA256File_LargerThanChunk(t *testing.T) {
	data := make([]byte, chunkSize*3+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := writeTempFile(t, "big.bin", data)

	first, err := SHA256File(path)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	second, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSHA256File_Missing(t *testing.T) {
	_, err := SHA256File(filepath.Join(t.TempDir(), "nope.bin"))
	assert.Error(t, err)
}

func writeTestPNG(t *testing.T, dir, name string, paint func(x, y int) color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, paint(x, y))
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestPerceptualHash_Deterministic(t *testing.T) {
	h := NewHasher(nil, arbor.NewLogger())
	dir := t.TempDir()

	gradient := func(x, y int) color.Color {
		return color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 0, A: 255}
	}
	a := writeTestPNG(t, dir, "a.png", gradient)
	b := writeTestPNG(t, dir, "b.png", gradient)

	hashA := h.PerceptualHash(context.Background(), a)
	hashB := h.PerceptualHash(context.Background(), b)

	require.Len(t, hashA, 16)
	assert.Equal(t, hashA, hashB)
}

func TestPerceptualHash_DistinguishesContent(t *testing.T) {
	h := NewHasher(nil, arbor.NewLogger())
	dir := t.TempDir()

	a := writeTestPNG(t, dir, "grad.png", func(x, y int) color.Color {
		return color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 0, A: 255}
	})
	b := writeTestPNG(t, dir, "checker.png", func(x, y int) color.Color {
		if (x/8+y/8)%2 == 0 {
			return color.White
		}
		return color.Black
	})

	hashA := h.PerceptualHash(context.Background(), a)
	hashB := h.PerceptualHash(context.Background(), b)
	assert.NotEqual(t, hashA, hashB)
}

func TestPerceptualHash_UndecodableIsEmpty(t *testing.T) {
	h := NewHasher(nil, arbor.NewLogger())

	path := writeTempFile(t, "not-an-image.jpg", []byte("plain text"))
	assert.Empty(t, h.PerceptualHash(context.Background(), path))
}

func TestPerceptualHash_VideoWithoutExtractorIsEmpty(t *testing.T) {
	h := NewHasher(nil, arbor.NewLogger())

	path := writeTempFile(t, "clip.mp4", []byte{0, 0, 0, 1})
	assert.Empty(t, h.PerceptualHash(context.Background(), path))
}
