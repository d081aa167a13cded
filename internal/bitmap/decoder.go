// Package bitmap reads the minimal-header bitmap format.
//
// Decode is a raw loader: the payload bytes are copied into the sample
// storage as little-endian float32 values without any per-channel
// conversion. It is only correct for files whose payload already holds
// normalized float samples. Ordinary 24-bit and 32-bit bitmaps are NOT
// normalized by this path; use DecodeStandard for those.
package bitmap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
	"golang.org/x/image/bmp"
)

// sampleSize is the stored width of one sample.
const sampleSize = 4

// Decode reads a bitmap stream into a buffer.
//
// The payload holds one little-endian float32 per sample, so a declared
// payload size of width*height*channels*4 bytes selects the channel count.
// A zero declared size means four channels. A zero data offset means the
// payload starts right after the header.
func Decode(r io.Reader) (*pixbuf.Buffer, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	width, height := int(h.Width), int(h.Height)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: unsupported bitmap dimensions %dx%d", pixbuf.ErrFormat, width, height)
	}

	size := int(h.ImageSize)
	channels := 4
	if size != 0 {
		channels, err = channelsForSize(size, width, height)
		if err != nil {
			return nil, err
		}
	}

	offset := h.DataOffset
	if offset == 0 {
		offset = HeaderSize
	}
	if offset < HeaderSize {
		return nil, fmt.Errorf("%w: data offset %d inside header", pixbuf.ErrFormat, offset)
	}
	if skip := int64(offset - HeaderSize); skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, readError("seeking to payload", err)
		}
	}

	n, err := pixbuf.SampleCount(width, height, channels)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		size = n * sampleSize
	}

	// The payload is buffered as it arrives so a short file cannot trigger
	// an allocation sized by its header alone.
	var payload bytes.Buffer
	if _, err := io.CopyN(&payload, r, int64(size)); err != nil {
		return nil, readError("reading payload", err)
	}
	samples := make([]float32, n)
	raw := payload.Bytes()
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*sampleSize:]))
	}
	return pixbuf.NewFromSamples(width, height, channels, samples)
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

// DecodeStandard decodes an ordinary bitmap (1 to 32 bits per pixel) into a
// normalized 4-channel buffer.
func DecodeStandard(r io.Reader) (*pixbuf.Buffer, error) {
	img, err := bmp.Decode(r)
	if err != nil {
		kind := pixbuf.ErrIO
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
			errors.Is(err, bmp.ErrUnsupported) || strings.HasPrefix(err.Error(), "bmp:") {
			kind = pixbuf.ErrFormat
		}
		return nil, fmt.Errorf("%w: %v", kind, err)
	}
	return pixbuf.FromImage(img)
}

// channelsForSize infers the channel count from a declared payload size.
func channelsForSize(size, width, height int) (int, error) {
	perChannel := int64(width) * int64(height) * sampleSize
	if int64(size)%perChannel != 0 || int64(size)/perChannel < 1 || int64(size)/perChannel > pixbuf.MaxChannels {
		return 0, fmt.Errorf("%w: payload size %d does not hold float samples for %dx%d pixels",
			pixbuf.ErrFormat, size, width, height)
	}
	return int(int64(size) / perChannel), nil
}

// readError classifies a failed read: truncation is a format problem,
// anything else is an I/O problem.
func readError(stage string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: truncated stream", pixbuf.ErrFormat, stage)
	}
	return fmt.Errorf("%w: %s: %v", pixbuf.ErrIO, stage, err)
}
