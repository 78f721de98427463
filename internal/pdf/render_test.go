package pdf

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidGray(width, height int, value uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	return img
}

func TestNormalizeWidth_ScalesDownOnly(t *testing.T) {
	wide := solidGray(1600, 400, 200)
	scaled := normalizeWidth(wide, TargetPageWidth)
	assert.Equal(t, TargetPageWidth, scaled.Bounds().Dx())
	assert.Equal(t, 200, scaled.Bounds().Dy())

	narrow := solidGray(400, 300, 200)
	assert.Same(t, narrow, normalizeWidth(narrow, TargetPageWidth))
}

func TestMeanLuminance(t *testing.T) {
	assert.Equal(t, 255.0, meanLuminance(solidGray(10, 10, 255)))
	assert.Equal(t, 0.0, meanLuminance(solidGray(10, 10, 0)))
	assert.Equal(t, 0.0, meanLuminance(image.NewGray(image.Rect(0, 0, 0, 0))))

	mixed := solidGray(2, 1, 0)
	mixed.Pix[1] = 100
	assert.Equal(t, 50.0, meanLuminance(mixed))
}

func TestInvert(t *testing.T) {
	img := solidGray(2, 2, 10)
	invert(img)
	for _, p := range img.Pix {
		assert.Equal(t, uint8(245), p)
	}
}

func TestToGrayscale(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	gray := toGrayscale(rgba)
	assert.Equal(t, rgba.Bounds(), gray.Bounds())

	already := solidGray(4, 4, 128)
	assert.Same(t, already, toGrayscale(already))
}

func TestEncodePage(t *testing.T) {
	img := solidGray(8, 8, 128)

	pngData, err := encodePage(img, FormatPNG)
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(pngData))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	jpgData, err := encodePage(img, FormatJPG)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, jpgData[:2])
}

func TestExtractText_RejectsGarbage(t *testing.T) {
	_, err := ExtractText([]byte("not a pdf"))
	require.Error(t, err)
}
