package scaler

import "math"

// fit carries one sizing computation. width and height start as the
// originals capped by the constraints.
type fit struct {
	ow, oh        float64
	width, height float64
	hasW, hasH    bool
}

func (f fit) widthFromHeight() float64 { return (f.height / f.oh) * f.ow }
func (f fit) heightFromWidth() float64 { return (f.width / f.ow) * f.oh }

func fitWidth(f *fit)  { f.width = f.widthFromHeight() }
func fitHeight(f *fit) { f.height = f.heightFromWidth() }
func keep(*fit)        {}

type rule struct {
	name  string
	when  func(f fit) bool
	apply func(f *fit)
}

// downscaleRules is evaluated top to bottom; the first match wins. The
// dimension the caller did not cap follows the one it did. With equal
// capped sides, orientation decides.
var downscaleRules = []rule{
	{"narrow/no-max-width", func(f fit) bool { return f.width < f.height && !f.hasW }, fitWidth},
	{"narrow/max-width", func(f fit) bool { return f.width < f.height && f.hasW }, fitHeight},
	{"wide/no-max-height", func(f fit) bool { return f.height < f.width && !f.hasH }, fitHeight},
	{"wide/max-height", func(f fit) bool { return f.height < f.width && f.hasH }, fitWidth},
	{"square-cap/portrait", func(f fit) bool { return f.ow < f.oh }, fitWidth},
	{"square-cap/landscape", func(f fit) bool { return f.oh < f.ow }, fitHeight},
	{"square-cap/square", func(f fit) bool { return true }, keep},
}

func newFit(ow, oh float64, c Constraints) fit {
	f := fit{ow: ow, oh: oh, width: ow, height: oh}
	if c.MaxWidth != nil {
		f.hasW = true
		f.width = math.Min(ow, *c.MaxWidth)
	}
	if c.MaxHeight != nil {
		f.hasH = true
		f.height = math.Min(oh, *c.MaxHeight)
	}
	return f
}

func (f fit) downscale(c Constraints) bool {
	return (f.hasW && *c.MaxWidth < f.ow) || (f.hasH && *c.MaxHeight < f.oh)
}

// decide applies the first matching rule and returns its name, or "" when
// no downscale is needed.
func decide(f *fit, c Constraints) string {
	if !f.downscale(c) {
		return ""
	}
	for _, r := range downscaleRules {
		if r.when(*f) {
			r.apply(f)
			return r.name
		}
	}
	return ""
}

// clampToCaps shrinks both sides proportionally if the table left one side
// above its cap, which happens when the capped side is not the limiting one.
func clampToCaps(f *fit, c Constraints) {
	if f.hasW && f.width > *c.MaxWidth {
		s := *c.MaxWidth / f.width
		f.width = *c.MaxWidth
		f.height *= s
	}
	if f.hasH && f.height > *c.MaxHeight {
		s := *c.MaxHeight / f.height
		f.height = *c.MaxHeight
		f.width *= s
	}
}

// TargetSize computes output pixel dimensions for an ow x oh image. Sides
// are truncated toward zero and never below one pixel.
func TargetSize(ow, oh float64, c Constraints) (int, int) {
	f := newFit(ow, oh, c)
	decide(&f, c)
	clampToCaps(&f, c)
	return atLeastOne(f.width), atLeastOne(f.height)
}

func atLeastOne(v float64) int {
	n := int(v)
	if n < 1 {
		return 1
	}
	return n
}
