package scaler

import (
	"fmt"

	"github.com/example/image-picker/internal/imagecodec"
)

// Constraints are the caller-supplied output limits. Nil means "not given".
type Constraints struct {
	MaxWidth  *float64 `json:"maxWidth,omitempty"`
	MaxHeight *float64 `json:"maxHeight,omitempty"`
	Quality   *int     `json:"quality,omitempty"`
}

// ShouldScale reports whether any constraint was supplied. Without one the
// acquired bytes are returned untouched.
func (c Constraints) ShouldScale() bool {
	return c.MaxWidth != nil || c.MaxHeight != nil || c.Quality != nil
}

// EffectiveQuality returns the requested quality or 100.
func (c Constraints) EffectiveQuality() int {
	if c.Quality == nil {
		return imagecodec.DefaultQuality
	}
	return *c.Quality
}

// Validate checks the ranges accepted on the wire. Caps below one pixel are
// rejected since no raster fits inside them.
func (c Constraints) Validate() error {
	if c.MaxWidth != nil && !(*c.MaxWidth >= 1) {
		return fmt.Errorf("maxWidth must be at least 1, got %g", *c.MaxWidth)
	}
	if c.MaxHeight != nil && !(*c.MaxHeight >= 1) {
		return fmt.Errorf("maxHeight must be at least 1, got %g", *c.MaxHeight)
	}
	if c.Quality != nil && (*c.Quality < 0 || *c.Quality > 100) {
		return fmt.Errorf("quality must be between 0 and 100, got %d", *c.Quality)
	}
	return nil
}

// Clone returns a deep copy so the pending request never shares pointers
// with the caller.
func (c Constraints) Clone() Constraints {
	var out Constraints
	if c.MaxWidth != nil {
		v := *c.MaxWidth
		out.MaxWidth = &v
	}
	if c.MaxHeight != nil {
		v := *c.MaxHeight
		out.MaxHeight = &v
	}
	if c.Quality != nil {
		v := *c.Quality
		out.Quality = &v
	}
	return out
}
