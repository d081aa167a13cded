package raster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
	"github.com/klauspost/compress/zlib"
)

// idatBufferSize bounds the payload of each emitted data chunk.
const idatBufferSize = 1 << 15

var zlibWriterPool = sync.Pool{
	New: func() any {
		zw, err := zlib.NewWriterLevel(io.Discard, zlib.BestCompression)
		if err != nil {
			panic(err)
		}
		return zw
	},
}

// Encode writes buf to w as an 8-bit, non-interlaced stream. Samples are
// clamped to [0, 1] and rounded to 0..255; every row uses the Paeth filter
// and the data stream is compressed at maximum effort.
//
// Two-channel buffers are written as gray+alpha, which Decode does not
// accept, so they do not round-trip through this package.
//
// On error w may hold a truncated stream that must be discarded.
func Encode(w io.Writer, buf *pixbuf.Buffer) error {
	if !buf.Loaded() {
		return fmt.Errorf("%w: cannot encode an empty buffer", pixbuf.ErrFormat)
	}
	if _, err := io.WriteString(w, Signature); err != nil {
		return fmt.Errorf("%w: writing signature: %v", pixbuf.ErrIO, err)
	}

	hdr := &Header{
		Width:     uint32(buf.Width()),
		Height:    uint32(buf.Height()),
		BitDepth:  8,
		ColorType: colorTypeForChannels(buf.Channels()),
	}
	if err := writeChunk(w, chunkIHDR, hdr.marshal()); err != nil {
		return err
	}

	zw := zlibWriterPool.Get().(*zlib.Writer)
	defer zlibWriterPool.Put(zw)

	bw := bufio.NewWriterSize(idatWriter{w}, idatBufferSize)
	zw.Reset(bw)
	if err := writeRows(zw, buf); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: finishing image data: %v", pixbuf.ErrIO, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: flushing image data: %v", pixbuf.ErrIO, err)
	}
	return writeChunk(w, chunkIEND, nil)
}

// EncodeFile creates path and encodes buf into it.
func EncodeFile(path string, buf *pixbuf.Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	if err := Encode(f, buf); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	return nil
}

// writeRows quantizes and filters one scanline at a time. Buffer row y
// (bottom-up) is emitted as stored row height-y-1.
func writeRows(w io.Writer, buf *pixbuf.Buffer) error {
	width, height, channels := buf.Width(), buf.Height(), buf.Channels()
	samples := buf.Samples()
	n := width * channels

	cur, prev := make([]byte, n), make([]byte, n)
	out := make([]byte, n+1)
	out[0] = filterPaeth
	for row := 0; row < height; row++ {
		y := height - row - 1
		start := buf.Offset(0, y)
		for i, v := range samples[start : start+n] {
			cur[i] = pixbuf.Quantize8(v)
		}
		filterPaethRow(out[1:], cur, prev, channels)
		if _, err := w.Write(out); err != nil {
			return fmt.Errorf("%w: writing row %d: %v", pixbuf.ErrIO, row, err)
		}
		cur, prev = prev, cur
	}
	return nil
}
