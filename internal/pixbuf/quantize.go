package pixbuf

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Quantize8 clamps a normalized sample to [0, 1] and rounds it to 0..255.
// NaN quantizes to 0.
func Quantize8(v float32) uint8 {
	if v != v {
		return 0
	}
	return uint8(math.Round(float64(Clamp(v, 0, 1)) * 255))
}

// Normalize maps a raw integer sample of the given bit depth onto [0, 1].
func Normalize(raw uint32, depth int) float32 {
	return float32(float64(raw) / float64(uint64(1)<<depth-1))
}
