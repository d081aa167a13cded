package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
)

// Chunk type names.
const (
	chunkIHDR = "IHDR"
	chunkPLTE = "PLTE"
	chunkIDAT = "IDAT"
	chunkIEND = "IEND"
)

// maxChunkLen is the largest length field the format allows.
const maxChunkLen = 1<<31 - 1

// maxMetaChunkLen bounds every chunk other than image data.
const maxMetaChunkLen = 1 << 24

type chunk struct {
	typ  string
	data []byte
}

// critical reports whether a decoder must understand the chunk.
func (c chunk) critical() bool {
	return c.typ[0]&0x20 == 0
}

// chunkLimit is the largest payload accepted for a chunk type.
func chunkLimit(typ string) uint32 {
	switch typ {
	case chunkIHDR:
		return headerLen
	case chunkPLTE:
		return 3 * 256
	case chunkIEND:
		return 0
	case chunkIDAT:
		return maxChunkLen
	default:
		return maxMetaChunkLen
	}
}

// readChunk reads and verifies the next chunk. The payload is copied as it
// arrives, so memory grows with the bytes actually present rather than with
// the declared length. When idat is non-nil, image data is appended to it
// and the returned chunk carries no payload.
func readChunk(r io.Reader, idat io.Writer) (chunk, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return chunk{}, readError("reading chunk header", err)
	}
	length := binary.BigEndian.Uint32(hdr[:4])
	typ := string(hdr[4:8])
	for _, b := range []byte(typ) {
		if !('a' <= b && b <= 'z' || 'A' <= b && b <= 'Z') {
			return chunk{}, fmt.Errorf("%w: invalid chunk type %q", pixbuf.ErrFormat, typ)
		}
	}
	if limit := chunkLimit(typ); length > limit {
		return chunk{}, fmt.Errorf("%w: %s chunk length %d exceeds %d", pixbuf.ErrFormat, typ, length, limit)
	}
	if typ == chunkIHDR && length != headerLen {
		return chunk{}, fmt.Errorf("%w: header chunk is %d bytes, want %d", pixbuf.ErrFormat, length, headerLen)
	}

	h := crc32.NewIEEE()
	h.Write(hdr[4:8])
	var data bytes.Buffer
	dst := io.MultiWriter(h, &data)
	if typ == chunkIDAT && idat != nil {
		dst = io.MultiWriter(h, idat)
	}
	if _, err := io.CopyN(dst, r, int64(length)); err != nil {
		return chunk{}, readError("reading "+typ+" chunk", err)
	}
	var crc [4]byte
	if _, err := io.ReadFull(r, crc[:]); err != nil {
		return chunk{}, readError("reading "+typ+" checksum", err)
	}
	if got, want := h.Sum32(), binary.BigEndian.Uint32(crc[:]); got != want {
		return chunk{}, fmt.Errorf("%w: %s checksum mismatch (0x%08x, expected 0x%08x)", pixbuf.ErrFormat, typ, got, want)
	}
	c := chunk{typ: typ}
	if data.Len() > 0 {
		c.data = data.Bytes()
	}
	return c, nil
}

func writeChunk(w io.Writer, typ string, data []byte) error {
	if len(data) > maxChunkLen {
		return fmt.Errorf("%w: %s chunk of %d bytes too large", pixbuf.ErrFormat, typ, len(data))
	}
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], typ)

	h := crc32.NewIEEE()
	h.Write(hdr[4:8])
	h.Write(data)
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], h.Sum32())

	for _, b := range [][]byte{hdr[:], data, crc[:]} {
		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("%w: writing %s chunk: %v", pixbuf.ErrIO, typ, err)
		}
	}
	return nil
}

// idatWriter turns every Write into one data chunk.
type idatWriter struct {
	w io.Writer
}

func (iw idatWriter) Write(p []byte) (int, error) {
	if err := writeChunk(iw.w, chunkIDAT, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
