package bitmap

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
)

// HeaderSize is the fixed length of the file header plus BITMAPINFOHEADER.
const HeaderSize = 54

// Byte offsets of the fields the decoder uses.
const (
	offDataOffset = 0x0A
	offWidth      = 0x12
	offHeight     = 0x16
	offBitCount   = 0x1C
	offImageSize  = 0x22
)

// Header is the subset of the 54-byte bitmap header the decoder relies on.
type Header struct {
	DataOffset uint32 // Offset of the pixel payload from the start of the file.
	ImageSize  uint32 // Declared payload size in bytes; 0 for uncompressed images.
	Width      int32  // Width in pixels.
	Height     int32  // Height in pixels.
	BitCount   uint16 // Bits per pixel. Informational only.
}

// ParseHeader validates the signature and extracts the header fields.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: bitmap header is %d bytes, need %d", pixbuf.ErrFormat, len(b), HeaderSize)
	}
	if b[0] != 'B' || b[1] != 'M' {
		return nil, fmt.Errorf("%w: not a bitmap (signature %q)", pixbuf.ErrFormat, b[:2])
	}
	return &Header{
		DataOffset: binary.LittleEndian.Uint32(b[offDataOffset:]),
		ImageSize:  binary.LittleEndian.Uint32(b[offImageSize:]),
		Width:      int32(binary.LittleEndian.Uint32(b[offWidth:])),
		Height:     int32(binary.LittleEndian.Uint32(b[offHeight:])),
		BitCount:   binary.LittleEndian.Uint16(b[offBitCount:]),
	}, nil
}

// ReadHeader reads and parses the fixed header from r without touching the payload.
func ReadHeader(r io.Reader) (*Header, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, readError("reading header", err)
	}
	return ParseHeader(raw[:])
}
