package photo

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

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSampleSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		req           int
		want          int
	}{
		{"smaller than requested", 800, 600, 1024, 1},
		{"equal to requested", 1024, 1024, 1024, 1},
		{"just over", 2047, 2047, 1024, 1},
		{"double", 2048, 2048, 1024, 2},
		{"large photo", 4032, 3024, 1024, 2},
		{"very large", 8192, 8192, 1024, 8},
		{"one side small", 4000, 500, 1024, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SampleSize(tt.width, tt.height, tt.req, tt.req))
		})
	}
}

func TestDownsample(t *testing.T) {
	data := encodePNG(t, testImage(400, 300))

	out, err := Downsample(bytes.NewReader(data), 100)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err, "output must be jpeg")
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 150, cfg.Height)
}

func TestDownsample_KeepsSmallImages(t *testing.T) {
	data := encodePNG(t, testImage(64, 48))

	out, err := Downsample(bytes.NewReader(data), 0)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 48, cfg.Height)
}

func TestDownsample_InvalidData(t *testing.T) {
	_, err := Downsample(bytes.NewReader([]byte("not an image")), 100)
	assert.Error(t, err)
	assert.Nil(t, DownsampleBytes([]byte("not an image"), 100))
}

func TestDownsampleFile(t *testing.T) {
	assert.Nil(t, DownsampleFile(filepath.Join(t.TempDir(), "missing.jpg"), 100))

	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, testImage(40, 40)), 0o644))
	assert.NotEmpty(t, DownsampleFile(path, 100))
}

func TestSignature(t *testing.T) {
	src := testImage(120, 40)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))

	path := filepath.Join(t.TempDir(), "sig.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	out, err := Signature(path)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err, "signature must be png")
	assert.Equal(t, 120, cfg.Width)
	assert.Equal(t, 40, cfg.Height)

	_, err = Signature(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
