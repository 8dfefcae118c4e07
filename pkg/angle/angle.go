// Package angle wraps headings into a single turn.
package angle

import "math"

// wrap maps v into (-turn/2, turn/2].
func wrap(v, turn float64) float64 {
	half := turn / 2
	v = math.Mod(v, turn)
	switch {
	case v <= -half:
		v += turn
	case v > half:
		v -= turn
	}
	return v
}

// NormalizeDegrees maps d of any magnitude into (-180, 180].
func NormalizeDegrees(d float64) float64 {
	return wrap(d, 360)
}

// NormalizeRadians maps r of any magnitude into (-π, π].
func NormalizeRadians(r float64) float64 {
	return wrap(r, 2*math.Pi)
}

// Turn is the signed rotation in degrees that takes heading from to heading
// to by the shorter way round. Both are in radians.
func Turn(from, to float64) float64 {
	return NormalizeRadians(to-from) * 180 / math.Pi
}
