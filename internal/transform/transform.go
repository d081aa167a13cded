// Package transform derives new buffers from existing ones by remapping
// pixel coordinates. Every destination pixel is filled from the source
// pixel its center maps back to; no interpolation is performed.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
)

// ErrUnsupportedAngle is returned by Rotate for angles that are not a
// multiple of 90 degrees.
var ErrUnsupportedAngle = errors.New("rotation angle must be a multiple of 90 degrees")

// Axis selects the coordinate Reflect negates.
type Axis int

const (
	// AxisX mirrors left and right.
	AxisX Axis = iota
	// AxisY mirrors top and bottom.
	AxisY
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// ParseAxis converts "x" or "y" to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	default:
		return 0, fmt.Errorf("unknown reflection axis: %q", s)
	}
}

// Rotate returns a copy of src rotated counter-clockwise about its center
// by degrees. Quarter and three-quarter turns swap width and height.
func Rotate(src *pixbuf.Buffer, degrees float64) (*pixbuf.Buffer, error) {
	q := degrees / 90
	if math.IsNaN(q) || math.IsInf(q, 0) || q != math.Trunc(q) {
		return nil, fmt.Errorf("%w: got %v", ErrUnsupportedAngle, degrees)
	}
	turns := int(math.Mod(q, 4))

	width, height := src.Width(), src.Height()
	if turns%2 != 0 {
		width, height = height, width
	}
	// Map destination coordinates back into the source: move the destination
	// center to the origin, undo the rotation, then move to the source center.
	inverse := Translation(float64(src.Width())/2, float64(src.Height())/2).
		Mul(QuarterTurn(-turns)).
		Mul(Translation(-float64(width)/2, -float64(height)/2))
	return remap(src, width, height, inverse)
}

// Reflect returns a mirrored copy of src with identical dimensions.
func Reflect(src *pixbuf.Buffer, axis Axis) (*pixbuf.Buffer, error) {
	var s Matrix
	switch axis {
	case AxisX:
		s = Scale(-1, 1)
	case AxisY:
		s = Scale(1, -1)
	default:
		return nil, fmt.Errorf("unknown reflection axis %v", axis)
	}
	cx, cy := float64(src.Width())/2, float64(src.Height())/2
	inverse := Translation(cx, cy).Mul(s).Mul(Translation(-cx, -cy))
	return remap(src, src.Width(), src.Height(), inverse)
}

// remap builds a width x height buffer where each pixel is copied from the
// source pixel containing inverse(center of destination pixel).
func remap(src *pixbuf.Buffer, width, height int, inverse Matrix) (*pixbuf.Buffer, error) {
	if !src.Loaded() {
		return nil, fmt.Errorf("%w: source buffer is empty", pixbuf.ErrFormat)
	}
	dst, err := pixbuf.New(width, height, src.Channels())
	if err != nil {
		return nil, err
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx, sy := inverse.Apply(float64(x)+0.5, float64(y)+0.5)
			ix, iy := int(math.Floor(sx)), int(math.Floor(sy))
			if ix < 0 || ix >= src.Width() || iy < 0 || iy >= src.Height() {
				return nil, fmt.Errorf("source coordinate (%d, %d) outside %dx%d", ix, iy, src.Width(), src.Height())
			}
			dst.Set(x, y, src.At(ix, iy))
		}
	}
	return dst, nil
}
