// Package scale does the fractional scale arithmetic shared by the
// output registry and the surface presenter.
package scale

import "strconv"

// denominator is the unit of wp_fractional_scale_v1: scales are
// multiples of 1/120.
const denominator = 120

// Factor is a surface scale factor, expressed as a numerator over 120.
// Factor(120) is 1.0, Factor(180) is 1.5. The zero value means the
// scale is not known yet.
type Factor uint32

// FromInteger converts a wl_output integer scale.
func FromInteger(s int32) Factor {
	if s < 1 {
		s = 1
	}
	return Factor(s * denominator)
}

// Float64 returns the factor as a float, for logging.
func (f Factor) Float64() float64 {
	return float64(f) / denominator
}

func (f Factor) String() string {
	return strconv.FormatFloat(f.Float64(), 'g', -1, 64)
}

// apply converts a length in buffer pixels to logical pixels, rounding
// to nearest.
func (f Factor) apply(px int32) int32 {
	n := int64(f)
	if n == 0 {
		n = denominator
	}
	return int32((int64(px)*denominator + n/2) / n)
}

// DestinationSize maps captured buffer dimensions to the logical size a
// surface must be given so the buffer covers the output exactly.
// Transform is a wl_output transform value; the odd ones rotate by 90
// or 270 degrees and swap the axes.
func (f Factor) DestinationSize(width, height int32, transform int32) (int32, int32) {
	w, h := f.apply(width), f.apply(height)
	if transform&1 == 1 {
		return h, w
	}
	return w, h
}
