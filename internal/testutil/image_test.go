package testutil

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBlank(t *testing.T) {
	img := Blank().Render(t)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())

	r, g, b, _ := img.At(10, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r&g&b)
}

func TestRenderQRHasQuietZone(t *testing.T) {
	img := QR("hello").Render(t)
	b := img.Bounds()
	assert.GreaterOrEqual(t, b.Dx(), 240)

	// Corners stay white, the symbol has dark modules.
	assert.Equal(t, color.GrayModel.Convert(color.White), color.GrayModel.Convert(img.At(0, 0)))
	dark := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y < 128 {
				dark++
			}
		}
	}
	assert.Positive(t, dark)
}

func TestRenderEANWithCaption(t *testing.T) {
	plain := FrameSpec{Format: EAN13(SampleEAN13).Format, Content: SampleEAN13, Width: 320, Height: 120}
	captioned := EAN13(SampleEAN13)

	a, err := RenderFrame(plain)
	require.NoError(t, err)
	b, err := RenderFrame(captioned)
	require.NoError(t, err)
	assert.Greater(t, b.Bounds().Dy(), a.Bounds().Dy())
}

func TestRenderRejectsBadCheckDigit(t *testing.T) {
	_, err := RenderFrame(EAN13("4006381333932"))
	assert.Error(t, err)
}

func TestSaveImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "qr.png")
	SaveImage(t, QR("x").Render(t), path)
	assert.True(t, FileExists(path))
}

func TestSideBySide(t *testing.T) {
	left := CreateTestImage(30, 20, color.Black)
	right := CreateTestImage(10, 40, color.Black)

	img := SideBySide(left, right)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())

	assert.Equal(t, color.Gray{}, color.GrayModel.Convert(img.At(5, 5)))
	assert.Equal(t, color.Gray{Y: 0xff}, color.GrayModel.Convert(img.At(5, 30)))
	assert.Equal(t, color.Gray{}, color.GrayModel.Convert(img.At(35, 30)))
}
