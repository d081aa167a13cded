package raster

import (
	"fmt"
	"io"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
)

// Info describes a stream without decoding its pixels.
type Info struct {
	Width      int
	Height     int
	BitDepth   int
	ColorType  ColorType
	Interlaced bool
	// Channels is the channel count Decode would produce, or 0 if Decode
	// would reject the image.
	Channels int
}

// GetInfo reads the signature and header chunk only.
func GetInfo(r io.Reader) (*Info, error) {
	if err := checkSignature(r); err != nil {
		return nil, err
	}
	c, err := readChunk(r, nil)
	if err != nil {
		return nil, err
	}
	if c.typ != chunkIHDR {
		return nil, fmt.Errorf("%w: header chunk must come first, got %s", pixbuf.ErrFormat, c.typ)
	}
	h, err := parseHeader(c.data)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Width:      int(h.Width),
		Height:     int(h.Height),
		BitDepth:   int(h.BitDepth),
		ColorType:  h.ColorType,
		Interlaced: h.Interlace != 0,
	}
	// A palette is not needed to decide the output shape.
	d := &decoder{hdr: h, palette: []byte{0, 0, 0}}
	if ct, _, err := d.normalize(); err == nil {
		info.Channels = ct.samplesPerPixel()
	}
	return info, nil
}
