package scaler

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/example/image-picker/internal/imagecodec"
)

var (
	// ErrDecode means the acquired bytes are not a decodable image.
	ErrDecode = errors.New("decode image")
	// ErrEncode means the resampled image could not be re-encoded.
	ErrEncode = errors.New("encode image")
)

// Scaler resizes and re-encodes acquired images.
type Scaler struct {
	codec imagecodec.Codec
}

// New returns a Scaler using codec; nil selects the JPEG codec.
func New(codec imagecodec.Codec) *Scaler {
	if codec == nil {
		codec = imagecodec.JPEG{}
	}
	return &Scaler{codec: codec}
}

// Scale decodes src, fits it into c and encodes the result at c's quality.
// The decoded pixels do not outlive the call.
func (s *Scaler) Scale(src []byte, c Constraints) ([]byte, error) {
	img, err := s.codec.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	b := img.Bounds()
	w, h := TargetSize(float64(b.Dx()), float64(b.Dy()), c)

	out, err := s.codec.Encode(resample(img, w, h), c.EffectiveQuality())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return out, nil
}

func resample(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
