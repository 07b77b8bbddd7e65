package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	f, err := os.Create(path) //nolint:gosec // G304: test path
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, png.Encode(f, img))
}

func TestIsSupportedImage(t *testing.T) {
	assert.True(t, IsSupportedImage("a.PNG"))
	assert.True(t, IsSupportedImage("dir/b.jpeg"))
	assert.True(t, IsSupportedImage("c.bmp"))
	assert.False(t, IsSupportedImage("d.pdf"))
	assert.False(t, IsSupportedImage("noext"))
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")
	writeTestPNG(t, path, 30, 20)

	img, meta, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 30, meta.Width)
	assert.Equal(t, 20, meta.Height)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoadImageErrors(t *testing.T) {
	_, _, err := LoadImage("")
	require.Error(t, err)

	_, _, err = LoadImage("file.txt")
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "load", ipe.Operation)

	_, _, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o600))
	_, _, err = LoadImage(bad)
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "decode", ipe.Operation)
	assert.Contains(t, err.Error(), bad)
}

func TestDiscoverImages(t *testing.T) {
	root := t.TempDir()
	writeTestPNG(t, filepath.Join(root, "b.png"), 2, 2)
	writeTestPNG(t, filepath.Join(root, "a.png"), 2, 2)
	writeTestPNG(t, filepath.Join(root, "nested", "c.png"), 2, 2)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600))

	flat, err := DiscoverImages([]string{root}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.png"), filepath.Join(root, "b.png")}, flat)

	deep, err := DiscoverImages([]string{root}, true)
	require.NoError(t, err)
	assert.Len(t, deep, 3)

	single, err := DiscoverImages([]string{filepath.Join(root, "b.png"), filepath.Join(root, "notes.txt")}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "b.png")}, single)

	_, err = DiscoverImages([]string{filepath.Join(root, "missing")}, false)
	require.Error(t, err)
}

func TestFitWithin(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))

	out, err := FitWithin(img, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())

	same, err := FitWithin(img, 800, 600)
	require.NoError(t, err)
	assert.Same(t, img, same)

	_, err = FitWithin(nil, 10, 10)
	require.Error(t, err)
}

func TestEncodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	data, err := EncodeJPEG(img, 0)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, decoded.Bounds().Dx())

	_, err = EncodeJPEG(nil, 90)
	require.Error(t, err)
}
