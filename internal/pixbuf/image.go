package pixbuf

import (
	"image"
	"image/color"
)

// ToImage converts the buffer to an 8-bit image.NRGBA with the usual
// top-down row order. Gray buffers are replicated across R, G and B and
// missing alpha is opaque.
func (b *Buffer) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.width, b.height))
	for y := 0; y < b.height; y++ {
		row := b.height - y - 1
		for x := 0; x < b.width; x++ {
			img.SetNRGBA(x, row, b.nrgba(b.At(x, y)))
		}
	}
	return img
}

func (b *Buffer) nrgba(c Color) color.NRGBA {
	switch b.channels {
	case 1:
		v := Quantize8(c[0])
		return color.NRGBA{v, v, v, 0xff}
	case 2:
		v := Quantize8(c[0])
		return color.NRGBA{v, v, v, Quantize8(c[1])}
	case 3:
		return color.NRGBA{Quantize8(c[0]), Quantize8(c[1]), Quantize8(c[2]), 0xff}
	default:
		return color.NRGBA{Quantize8(c[0]), Quantize8(c[1]), Quantize8(c[2]), Quantize8(c[3])}
	}
}

// FromImage builds a 4-channel buffer from any image.Image, flipping rows
// into bottom-up order and normalizing 16-bit non-premultiplied samples.
func FromImage(src image.Image) (*Buffer, error) {
	bounds := src.Bounds()
	buf, err := New(bounds.Dx(), bounds.Dy(), 4)
	if err != nil {
		return nil, err
	}
	for y := 0; y < buf.height; y++ {
		for x := 0; x < buf.width; x++ {
			c := color.NRGBA64Model.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
			buf.Set(x, buf.height-y-1, Color{
				Normalize(uint32(c.R), 16),
				Normalize(uint32(c.G), 16),
				Normalize(uint32(c.B), 16),
				Normalize(uint32(c.A), 16),
			})
		}
	}
	return buf, nil
}
