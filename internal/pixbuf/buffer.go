// Package pixbuf holds the normalized in-memory raster shared by the codecs.
//
// Samples are float32 values nominally in [0, 1], interleaved per pixel.
// Row 0 is the bottom row of the image: the sample for pixel (x, y),
// channel c lives at offset (y*width+x)*channels + c.
package pixbuf

import "fmt"

// MaxChannels is the widest pixel a Buffer can hold (RGBA).
const MaxChannels = 4

// maxSamples bounds a single allocation (1 GiB of float32 samples).
const maxSamples = 1 << 28

// Color is one pixel's samples. Only the first Channels() entries are meaningful.
type Color [MaxChannels]float32

// Buffer owns a flat slice of normalized samples together with its
// dimensions. Dimensions and channel count never change after construction.
//
// The zero Buffer has no channels and no storage and means "not loaded".
type Buffer struct {
	width    int
	height   int
	channels int
	samples  []float32
}

// New allocates a zero-filled buffer.
func New(width, height, channels int) (*Buffer, error) {
	n, err := SampleCount(width, height, channels)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		width:    width,
		height:   height,
		channels: channels,
		samples:  make([]float32, n),
	}, nil
}

// NewFromSamples wraps an already-computed sample slice without copying it.
// The caller must not retain or modify samples afterwards.
func NewFromSamples(width, height, channels int, samples []float32) (*Buffer, error) {
	n, err := SampleCount(width, height, channels)
	if err != nil {
		return nil, err
	}
	if len(samples) != n {
		return nil, fmt.Errorf("%w: got %d samples, want %d for %dx%dx%d",
			ErrFormat, len(samples), n, width, height, channels)
	}
	return &Buffer{
		width:    width,
		height:   height,
		channels: channels,
		samples:  samples,
	}, nil
}

// SampleCount validates a buffer shape and returns its number of samples.
func SampleCount(width, height, channels int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: invalid dimensions %dx%d", ErrFormat, width, height)
	}
	if channels < 1 || channels > MaxChannels {
		return 0, fmt.Errorf("%w: invalid channel count %d", ErrFormat, channels)
	}
	if width > maxSamples/height || width*height > maxSamples/channels {
		return 0, fmt.Errorf("%w: %dx%dx%d exceeds %d samples",
			ErrAllocation, width, height, channels, maxSamples)
	}
	return width * height * channels, nil
}

// Width returns the width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the height in pixels.
func (b *Buffer) Height() int { return b.height }

// Channels returns the number of samples per pixel (1 to 4).
func (b *Buffer) Channels() int { return b.channels }

// Loaded reports whether the buffer holds pixel data.
func (b *Buffer) Loaded() bool {
	return b != nil && b.channels != 0 && b.samples != nil
}

// Samples returns the backing sample slice. It is the layout handed to
// texture upload: width*height*channels values, bottom row first.
func (b *Buffer) Samples() []float32 { return b.samples }

// Offset returns the index of channel 0 of pixel (x, y) in Samples.
func (b *Buffer) Offset(x, y int) int {
	return (y*b.width + x) * b.channels
}

// At returns the pixel at (x, y). Coordinates are not bounds-checked beyond
// the slice bounds check, so out-of-range values may alias a neighbouring row.
func (b *Buffer) At(x, y int) Color {
	var c Color
	off := b.Offset(x, y)
	copy(c[:b.channels], b.samples[off:off+b.channels])
	return c
}

// Set overwrites all channels of the pixel at (x, y).
func (b *Buffer) Set(x, y int, c Color) {
	off := b.Offset(x, y)
	copy(b.samples[off:off+b.channels], c[:b.channels])
}

// SetChannel overwrites a single channel of the pixel at (x, y).
func (b *Buffer) SetChannel(x, y, channel int, v float32) {
	b.samples[b.Offset(x, y)+channel] = v
}

// Clone returns a deep copy that shares no storage with b.
func (b *Buffer) Clone() *Buffer {
	if !b.Loaded() {
		return &Buffer{}
	}
	samples := make([]float32, len(b.samples))
	copy(samples, b.samples)
	return &Buffer{
		width:    b.width,
		height:   b.height,
		channels: b.channels,
		samples:  samples,
	}
}
