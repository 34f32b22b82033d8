package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDimensions(t *testing.T) {
	w, h, err := Dimensions(bytes.NewReader(pngBytes(t, 40, 30)))
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)

	_, _, err = Dimensions(bytes.NewReader([]byte("<svg/>")))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestThumbnailScalesLongestEdge(t *testing.T) {
	out, err := Thumbnail(bytes.NewReader(pngBytes(t, 1000, 500)), 100)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	out, err := Thumbnail(bytes.NewReader(pngBytes(t, 20, 60)), 100)
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 60, cfg.Height)
}

func TestFit(t *testing.T) {
	w, h := fit(300, 1200, 512)
	assert.Equal(t, 128, w)
	assert.Equal(t, 512, h)

	w, h = fit(5000, 1, 512)
	assert.Equal(t, 512, w)
	assert.Equal(t, 1, h)

	assert.True(t, Decodable("image/WEBP"))
	assert.False(t, Decodable("image/heic"))
}
