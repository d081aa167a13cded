package raster

import (
	"fmt"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
)

// Scanline filter types.
const (
	filterNone    = 0
	filterSub     = 1
	filterUp      = 2
	filterAverage = 3
	filterPaeth   = 4
)

func paeth(a, b, c uint8) uint8 {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// unfilter reverses filter ft on cur in place. prev is the previous
// reconstructed row (all zeros for the first row).
func unfilter(ft byte, cur, prev []byte, stride int) error {
	switch ft {
	case filterNone:
	case filterSub:
		for i := stride; i < len(cur); i++ {
			cur[i] += cur[i-stride]
		}
	case filterUp:
		for i := range cur {
			cur[i] += prev[i]
		}
	case filterAverage:
		for i := range cur {
			var left uint8
			if i >= stride {
				left = cur[i-stride]
			}
			cur[i] += uint8((int(left) + int(prev[i])) / 2)
		}
	case filterPaeth:
		for i := range cur {
			var left, upLeft uint8
			if i >= stride {
				left, upLeft = cur[i-stride], prev[i-stride]
			}
			cur[i] += paeth(left, prev[i], upLeft)
		}
	default:
		return fmt.Errorf("%w: unknown scanline filter %d", pixbuf.ErrFormat, ft)
	}
	return nil
}

// filterPaethRow writes the Paeth-filtered form of cur into dst.
func filterPaethRow(dst, cur, prev []byte, stride int) {
	for i := range cur {
		var left, upLeft uint8
		if i >= stride {
			left, upLeft = cur[i-stride], prev[i-stride]
		}
		dst[i] = cur[i] - paeth(left, prev[i], upLeft)
	}
}
