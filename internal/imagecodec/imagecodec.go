package imagecodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultQuality is used when a caller does not ask for a quality.
const DefaultQuality = 100

// DefaultMaxPixels bounds decoded images when JPEG.MaxPixels is zero.
const DefaultMaxPixels = 64 << 20

var (
	// ErrEmptyImage reports an image with zero width or height.
	ErrEmptyImage = errors.New("image has no pixels")
	// ErrTooLarge reports an image whose header exceeds the pixel budget.
	ErrTooLarge = errors.New("image exceeds pixel limit")
)

// Codec exposes the raster decode/encode capability used by the scaler.
type Codec interface {
	Decode(data []byte) (image.Image, error)
	Encode(img image.Image, quality int) ([]byte, error)
}

// JPEG decodes any registered raster format and always encodes JPEG.
type JPEG struct {
	// MaxPixels caps width*height read from the image header before any
	// pixel buffer is allocated. Zero means DefaultMaxPixels.
	MaxPixels int
}

// Decode checks the header dimensions against the pixel budget, then
// decodes the full image.
func (j JPEG) Decode(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrEmptyImage
	}
	limit := j.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(limit) {
		return nil, fmt.Errorf("%w: %dx%d over %d", ErrTooLarge, cfg.Width, cfg.Height, limit)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// Encode writes img as JPEG. quality is clamped to 0..100.
func (JPEG) Encode(img image.Image, quality int) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
