package raster

import (
	"encoding/binary"
	"fmt"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
)

// Signature is the fixed 8-byte preamble of every stream.
const Signature = "\x89PNG\r\n\x1a\n"

// ColorType is the header's color type field.
type ColorType uint8

const (
	ColorGray      ColorType = 0
	ColorRGB       ColorType = 2
	ColorPalette   ColorType = 3
	ColorGrayAlpha ColorType = 4
	ColorRGBA      ColorType = 6
)

func (c ColorType) String() string {
	switch c {
	case ColorGray:
		return "Gray"
	case ColorRGB:
		return "RGB"
	case ColorPalette:
		return "Palette"
	case ColorGrayAlpha:
		return "GrayAlpha"
	case ColorRGBA:
		return "RGBA"
	default:
		return fmt.Sprintf("ColorType(%d)", uint8(c))
	}
}

// samplesPerPixel returns the number of stored samples per pixel.
func (c ColorType) samplesPerPixel() int {
	switch c {
	case ColorRGB:
		return 3
	case ColorGrayAlpha:
		return 2
	case ColorRGBA:
		return 4
	default:
		return 1
	}
}

// colorTypeForChannels picks the output color type for a buffer.
func colorTypeForChannels(channels int) ColorType {
	switch channels {
	case 1:
		return ColorGray
	case 2:
		return ColorGrayAlpha
	case 3:
		return ColorRGB
	default:
		return ColorRGBA
	}
}

const headerLen = 13

// Header mirrors the IHDR chunk.
type Header struct {
	Width       uint32
	Height      uint32
	BitDepth    uint8
	ColorType   ColorType
	Compression uint8
	Filter      uint8
	Interlace   uint8
}

func (h *Header) marshal() []byte {
	b := make([]byte, headerLen)
	binary.BigEndian.PutUint32(b[0:], h.Width)
	binary.BigEndian.PutUint32(b[4:], h.Height)
	b[8] = h.BitDepth
	b[9] = uint8(h.ColorType)
	b[10] = h.Compression
	b[11] = h.Filter
	b[12] = h.Interlace
	return b
}

func parseHeader(b []byte) (*Header, error) {
	if len(b) != headerLen {
		return nil, fmt.Errorf("%w: header chunk is %d bytes, want %d", pixbuf.ErrFormat, len(b), headerLen)
	}
	h := &Header{
		Width:       binary.BigEndian.Uint32(b[0:]),
		Height:      binary.BigEndian.Uint32(b[4:]),
		BitDepth:    b[8],
		ColorType:   ColorType(b[9]),
		Compression: b[10],
		Filter:      b[11],
		Interlace:   b[12],
	}
	if h.Width == 0 || h.Height == 0 || h.Width > 1<<31-1 || h.Height > 1<<31-1 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", pixbuf.ErrFormat, h.Width, h.Height)
	}
	if h.Compression != 0 || h.Filter != 0 {
		return nil, fmt.Errorf("%w: unknown compression %d or filter method %d", pixbuf.ErrFormat, h.Compression, h.Filter)
	}
	if h.Interlace > 1 {
		return nil, fmt.Errorf("%w: unknown interlace method %d", pixbuf.ErrFormat, h.Interlace)
	}
	return h, nil
}

// checkDepth enforces the bit depths each color type may legally carry.
func (h *Header) checkDepth() error {
	ok := false
	switch h.ColorType {
	case ColorGray:
		ok = h.BitDepth == 1 || h.BitDepth == 2 || h.BitDepth == 4 || h.BitDepth == 8 || h.BitDepth == 16
	case ColorPalette:
		ok = h.BitDepth == 1 || h.BitDepth == 2 || h.BitDepth == 4 || h.BitDepth == 8
	case ColorRGB, ColorGrayAlpha, ColorRGBA:
		ok = h.BitDepth == 8 || h.BitDepth == 16
	default:
		return fmt.Errorf("%w: invalid color type %d", pixbuf.ErrFormat, uint8(h.ColorType))
	}
	if !ok {
		return fmt.Errorf("%w: bit depth %d invalid for color type %s", pixbuf.ErrFormat, h.BitDepth, h.ColorType)
	}
	return nil
}

// bitsPerPixel is the stored width of one pixel before any expansion.
func (h *Header) bitsPerPixel() int {
	return int(h.BitDepth) * h.ColorType.samplesPerPixel()
}

// rowBytes is the length of one unfiltered scanline, excluding the filter byte.
func (h *Header) rowBytes() int {
	return (int(h.Width)*h.bitsPerPixel() + 7) / 8
}

// filterStride is the byte distance to the corresponding byte of the
// previous pixel, as used by the scanline filters.
func (h *Header) filterStride() int {
	return max(1, h.bitsPerPixel()/8)
}
