// Package photo prepares captured photos and signatures for storage.
package photo

import (
	"bytes"
	"image"
	"io"
	"log/slog"
	"os"

	"github.com/disintegration/imaging"
	"github.com/sthao/quickform/pkg/errors"
)

const (
	// DefaultMaxDimension is the requested size photos are sampled down towards.
	DefaultMaxDimension = 1024
	// JPEGQuality is the encoder quality for stored photos.
	JPEGQuality = 85
)

// SampleSize returns the largest power of two that, when dividing the half
// dimensions, still keeps both at or above the requested size.
func SampleSize(width, height, reqWidth, reqHeight int) int {
	size := 1
	if height > reqHeight || width > reqWidth {
		halfHeight := height / 2
		halfWidth := width / 2
		for halfHeight/size >= reqHeight && halfWidth/size >= reqWidth {
			size *= 2
		}
	}
	return size
}

// Downsample decodes an image, applies its EXIF orientation, shrinks it by
// SampleSize and returns it JPEG encoded.
func Downsample(r io.Reader, maxDimension int) ([]byte, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}

	bounds := img.Bounds()
	size := SampleSize(bounds.Dx(), bounds.Dy(), maxDimension, maxDimension)
	if size > 1 {
		img = imaging.Resize(img, bounds.Dx()/size, bounds.Dy()/size, imaging.Box)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, errors.Wrap(err, "failed to encode jpeg")
	}

	slog.Debug("photo_downsampled",
		"source_width", bounds.Dx(),
		"source_height", bounds.Dy(),
		"sample_size", size,
		"bytes", buf.Len())
	return buf.Bytes(), nil
}

// DownsampleFile is the best-effort variant of Downsample for a file on disk.
// Any failure is logged and yields nil.
func DownsampleFile(path string, maxDimension int) []byte {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("photo_open_failed", "path", path, "error", err)
		return nil
	}
	defer f.Close()

	data, err := Downsample(f, maxDimension)
	if err != nil {
		slog.Warn("photo_downsample_failed", "path", path, "error", err)
		return nil
	}
	return data
}

// DownsampleBytes is DownsampleFile for data already in memory.
func DownsampleBytes(data []byte, maxDimension int) []byte {
	out, err := Downsample(bytes.NewReader(data), maxDimension)
	if err != nil {
		slog.Warn("photo_downsample_failed", "bytes", len(data), "error", err)
		return nil
	}
	return out
}

// Signature loads an image file and encodes it as a lossless PNG.
func Signature(path string) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open signature")
	}
	return EncodePNG(img)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "failed to encode png")
	}
	return buf.Bytes(), nil
}
