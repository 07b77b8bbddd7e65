package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Sample EAN codes with valid check digits.
const (
	SampleEAN13 = "4006381333931"
	SampleEAN8  = "96385074"
)

// FrameSpec describes a synthetic camera frame.
type FrameSpec struct {
	Format  gozxing.BarcodeFormat
	Content string
	Width   int
	Height  int
	// Caption is printed under the symbol, like the digits on a retail label.
	Caption  bool
	Rotation float64
}

// QR returns a 240x240 frame holding a QR code.
func QR(content string) FrameSpec {
	return FrameSpec{Format: gozxing.BarcodeFormat_QR_CODE, Content: content, Width: 240, Height: 240}
}

// EAN13 returns a captioned frame holding an EAN-13 symbol.
func EAN13(digits string) FrameSpec {
	return FrameSpec{Format: gozxing.BarcodeFormat_EAN_13, Content: digits, Width: 320, Height: 120, Caption: true}
}

// EAN8 returns a captioned frame holding an EAN-8 symbol.
func EAN8(digits string) FrameSpec {
	return FrameSpec{Format: gozxing.BarcodeFormat_EAN_8, Content: digits, Width: 240, Height: 120, Caption: true}
}

// Blank returns an empty white frame.
func Blank() FrameSpec {
	return FrameSpec{Width: 160, Height: 120}
}

// Render draws the frame. Symbols get a white quiet zone so the decoder sees
// them the way a camera would.
func (f FrameSpec) Render(t *testing.T) image.Image {
	t.Helper()

	img, err := RenderFrame(f)
	require.NoError(t, err, "render %s frame %q", f.Format, f.Content)
	return img
}

// RenderFrame is the non-testing form of Render.
func RenderFrame(f FrameSpec) (image.Image, error) {
	const margin = 24

	if f.Content == "" {
		return CreateTestImage(f.Width, f.Height, color.White), nil
	}

	var writer gozxing.Writer
	switch f.Format {
	case gozxing.BarcodeFormat_EAN_13:
		writer = oned.NewEAN13Writer()
	case gozxing.BarcodeFormat_EAN_8:
		writer = oned.NewEAN8Writer()
	default:
		writer = qrcode.NewQRCodeWriter()
	}
	matrix, err := writer.Encode(f.Content, f.Format, f.Width, f.Height, nil)
	if err != nil {
		return nil, err
	}

	captionHeight := 0
	if f.Caption {
		captionHeight = basicfont.Face7x13.Metrics().Height.Ceil() + 4
	}
	w, h := matrix.GetWidth(), matrix.GetHeight()
	img := image.NewGray(image.Rect(0, 0, w+2*margin, h+2*margin+captionHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if matrix.Get(x, y) {
				img.SetGray(x+margin, y+margin, color.Gray{})
			}
		}
	}

	if f.Caption {
		drawer := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
		textWidth := font.MeasureString(drawer.Face, f.Content).Ceil()
		drawer.Dot = fixed.P((img.Bounds().Dx()-textWidth)/2, h+margin+captionHeight)
		drawer.DrawString(f.Content)
	}

	if f.Rotation != 0 {
		return imaging.Rotate(img, f.Rotation, color.White), nil
	}
	return img, nil
}

// SideBySide joins frames left to right on a white canvas, top-aligned.
func SideBySide(frames ...image.Image) image.Image {
	width, height := 0, 0
	for _, f := range frames {
		width += f.Bounds().Dx()
		height = max(height, f.Bounds().Dy())
	}
	canvas := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	x := 0
	for _, f := range frames {
		b := f.Bounds()
		draw.Draw(canvas, image.Rect(x, 0, x+b.Dx(), b.Dy()), f, b.Min, draw.Src)
		x += b.Dx()
	}
	return canvas
}

// SaveImage saves an image to the specified path as PNG.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)))

	file, err := os.Create(path) //nolint:gosec // G304: Test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()

	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// CreateTestImage creates a simple test image with the specified dimensions and color.
func CreateTestImage(width, height int, backgroundColor color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}
