// Package raster reads and writes the chunked, deflate-compressed raster
// format (PNG) to and from pixbuf buffers.
//
// Decoding accepts gray, RGB, RGBA and palette images at 8 or 16 bits per
// sample, plus sub-byte gray and palette depths which are expanded first.
// Gray+alpha and interlaced images are rejected. Encoding always produces
// 8-bit samples.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

var zlibReaderPool sync.Pool

// maxDeflateRatio is the largest expansion a deflate stream can achieve.
const maxDeflateRatio = 1032

// decoder holds the state of a single Decode call.
type decoder struct {
	r       io.Reader
	hdr     *Header
	palette []byte // RGB triplets
	idat    bytes.Buffer
}

// Decode reads a complete stream from r.
func Decode(r io.Reader) (*pixbuf.Buffer, error) {
	if err := checkSignature(r); err != nil {
		return nil, err
	}
	d := &decoder{r: r}
	if err := d.readChunks(); err != nil {
		return nil, err
	}
	return d.decodePixels()
}

// DecodeFile opens path and decodes it with Decode.
func DecodeFile(path string) (*pixbuf.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	defer f.Close()
	return Decode(f)
}

func checkSignature(r io.Reader) error {
	var sig [len(Signature)]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return readError("reading signature", err)
	}
	if string(sig[:]) != Signature {
		return fmt.Errorf("%w: bad signature % x", pixbuf.ErrFormat, sig[:])
	}
	return nil
}

// readChunks loads the whole chunk stream up to the end marker.
func (d *decoder) readChunks() error {
	for first := true; ; first = false {
		c, err := readChunk(d.r, &d.idat)
		if err != nil {
			return err
		}
		if first != (c.typ == chunkIHDR) {
			return fmt.Errorf("%w: header chunk must come first, got %s", pixbuf.ErrFormat, c.typ)
		}
		switch c.typ {
		case chunkIHDR:
			if d.hdr, err = parseHeader(c.data); err != nil {
				return err
			}
		case chunkPLTE:
			if len(c.data) == 0 || len(c.data)%3 != 0 || len(c.data)/3 > 256 {
				return fmt.Errorf("%w: bad palette length %d", pixbuf.ErrFormat, len(c.data))
			}
			d.palette = c.data
		case chunkIDAT:
		case chunkIEND:
			return nil
		default:
			if c.critical() {
				return fmt.Errorf("%w: unsupported critical chunk %s", pixbuf.ErrFormat, c.typ)
			}
		}
	}
}

// normalize validates the header and resolves the color type and depth of
// the samples the buffer will be built from.
func (d *decoder) normalize() (ColorType, int, error) {
	h := d.hdr
	if err := h.checkDepth(); err != nil {
		return 0, 0, err
	}
	if h.Interlace != 0 {
		return 0, 0, fmt.Errorf("%w: interlaced images are not supported", pixbuf.ErrFormat)
	}

	ct, depth := h.ColorType, int(h.BitDepth)
	switch {
	case ct == ColorPalette:
		if d.palette == nil {
			return 0, 0, fmt.Errorf("%w: palette image without palette", pixbuf.ErrFormat)
		}
		ct, depth = ColorRGB, 8
	case ct == ColorGray && depth < 8:
		depth = 8
	}
	if depth%8 != 0 {
		return 0, 0, fmt.Errorf("%w: unsupported bit depth %d", pixbuf.ErrFormat, depth)
	}
	if ct != ColorRGB && ct != ColorRGBA && ct != ColorGray {
		return 0, 0, fmt.Errorf("%w: unsupported color type %s", pixbuf.ErrFormat, ct)
	}
	return ct, depth, nil
}

func (d *decoder) decodePixels() (*pixbuf.Buffer, error) {
	ct, _, err := d.normalize()
	if err != nil {
		return nil, err
	}
	h := d.hdr
	width, height := int(h.Width), int(h.Height)
	if err := d.checkDataSize(); err != nil {
		return nil, err
	}

	buf, err := pixbuf.New(width, height, ct.samplesPerPixel())
	if err != nil {
		return nil, err
	}

	zr, err := acquireZlibReader(bytes.NewReader(d.idat.Bytes()))
	if err != nil {
		return nil, err
	}
	defer releaseZlibReader(zr)

	n := h.rowBytes()
	stride := h.filterStride()
	cur, prev := make([]byte, n+1), make([]byte, n+1)
	for y := 0; y < height; y++ {
		if _, err := io.ReadFull(zr, cur); err != nil {
			return nil, readError(fmt.Sprintf("decompressing row %d", y), err)
		}
		if err := unfilter(cur[0], cur[1:], prev[1:], stride); err != nil {
			return nil, err
		}
		// Rows are stored top-down; the buffer is bottom-up.
		if err := d.storeRow(buf, height-y-1, cur[1:]); err != nil {
			return nil, err
		}
		cur, prev = prev, cur
	}
	return buf, nil
}

// checkDataSize rejects streams whose compressed data cannot possibly
// expand to the rows the header declares, before the buffer is allocated.
func (d *decoder) checkDataSize() error {
	if d.idat.Len() == 0 {
		return fmt.Errorf("%w: no image data", pixbuf.ErrFormat)
	}
	need := int64(d.hdr.Height) * int64(d.hdr.rowBytes()+1)
	if int64(d.idat.Len())*maxDeflateRatio < need {
		return fmt.Errorf("%w: %d bytes of image data cannot hold %dx%d pixels",
			pixbuf.ErrFormat, d.idat.Len(), d.hdr.Width, d.hdr.Height)
	}
	return nil
}

// storeRow converts one reconstructed scanline into normalized samples.
func (d *decoder) storeRow(buf *pixbuf.Buffer, y int, row []byte) error {
	h := d.hdr
	depth := int(h.BitDepth)
	samples := buf.Samples()
	channels := buf.Channels()

	switch {
	case h.ColorType == ColorPalette:
		entries := len(d.palette) / 3
		for x := 0; x < int(h.Width); x++ {
			idx := int(subByteSample(row, x, depth))
			if idx >= entries {
				return fmt.Errorf("%w: palette index %d out of range (%d entries)", pixbuf.ErrFormat, idx, entries)
			}
			off := buf.Offset(x, y)
			for c := 0; c < 3; c++ {
				samples[off+c] = pixbuf.Normalize(uint32(d.palette[idx*3+c]), 8)
			}
		}
	case depth < 8:
		for x := 0; x < int(h.Width); x++ {
			samples[buf.Offset(x, y)] = pixbuf.Normalize(subByteSample(row, x, depth), depth)
		}
	default:
		bytesPerSample := depth / 8
		for x := 0; x < int(h.Width); x++ {
			off := buf.Offset(x, y)
			for c := 0; c < channels; c++ {
				start := (x*channels + c) * bytesPerSample
				var raw uint32
				for _, b := range row[start : start+bytesPerSample] {
					raw = raw<<8 | uint32(b)
				}
				samples[off+c] = pixbuf.Normalize(raw, depth)
			}
		}
	}
	return nil
}

// subByteSample extracts the x-th packed sample of the given depth,
// most significant bits first.
func subByteSample(row []byte, x, depth int) uint32 {
	if depth == 8 {
		return uint32(row[x])
	}
	bit := x * depth
	shift := 8 - depth - bit%8
	return uint32(row[bit/8]>>shift) & (1<<depth - 1)
}

func acquireZlibReader(src io.Reader) (io.ReadCloser, error) {
	if zr, ok := zlibReaderPool.Get().(io.ReadCloser); ok {
		if err := zr.(zlib.Resetter).Reset(src, nil); err != nil {
			zlibReaderPool.Put(zr)
			return nil, readError("opening image data", err)
		}
		return zr, nil
	}
	zr, err := zlib.NewReader(src)
	if err != nil {
		return nil, readError("opening image data", err)
	}
	return zr, nil
}

func releaseZlibReader(zr io.ReadCloser) {
	zr.Close()
	zlibReaderPool.Put(zr)
}

// readError classifies a failed read: truncated or corrupt data is a
// format problem, anything else is an I/O problem.
func readError(stage string, err error) error {
	var corrupt flate.CorruptInputError
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, zlib.ErrHeader) || errors.Is(err, zlib.ErrChecksum) ||
		errors.Is(err, zlib.ErrDictionary) || errors.As(err, &corrupt) {
		return fmt.Errorf("%w: %s: %v", pixbuf.ErrFormat, stage, err)
	}
	return fmt.Errorf("%w: %s: %v", pixbuf.ErrIO, stage, err)
}
