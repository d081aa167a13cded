// Package staging exports buffers in the layout a texture uploader
// consumes: the raw little-endian float32 samples, bottom row first,
// compressed with zstd, plus a JSON sidecar describing the shape.
package staging

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
	"github.com/klauspost/compress/zstd"
)

// SampleFormat is the only sample encoding written.
const SampleFormat = "F32LE"

// Meta is the sidecar written next to a sample dump.
type Meta struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Format   string `json:"format"`
	RowOrder string `json:"row_order"`
}

// MetaFor describes buf.
func MetaFor(buf *pixbuf.Buffer) Meta {
	return Meta{
		Width:    buf.Width(),
		Height:   buf.Height(),
		Channels: buf.Channels(),
		Format:   SampleFormat,
		RowOrder: "bottom-up",
	}
}

// Write streams the compressed samples of buf to w.
func Write(w io.Writer, buf *pixbuf.Buffer) error {
	if !buf.Loaded() {
		return fmt.Errorf("%w: cannot export an empty buffer", pixbuf.ErrFormat)
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("%w: %v", pixbuf.ErrAllocation, err)
	}
	bw := bufio.NewWriter(zw)
	var scratch [4]byte
	for _, v := range buf.Samples() {
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
		if _, err := bw.Write(scratch[:]); err != nil {
			zw.Close()
			return fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
		}
	}
	if err := bw.Flush(); err != nil {
		zw.Close()
		return fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	return nil
}

// Read restores a buffer written by Write.
func Read(r io.Reader, meta Meta) (*pixbuf.Buffer, error) {
	if meta.Format != SampleFormat {
		return nil, fmt.Errorf("%w: unsupported sample format %q", pixbuf.ErrFormat, meta.Format)
	}
	buf, err := pixbuf.New(meta.Width, meta.Height, meta.Channels)
	if err != nil {
		return nil, err
	}
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pixbuf.ErrFormat, err)
	}
	defer zr.Close()

	br := bufio.NewReader(zr)
	var scratch [4]byte
	samples := buf.Samples()
	for i := range samples {
		if _, err := io.ReadFull(br, scratch[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: sample dump truncated at %d of %d", pixbuf.ErrFormat, i, len(samples))
			}
			return nil, fmt.Errorf("%w: %v", pixbuf.ErrFormat, err)
		}
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(scratch[:]))
	}
	return buf, nil
}

// SidecarPath returns the JSON path that accompanies a dump at path.
func SidecarPath(path string) string {
	return strings.TrimSuffix(strings.TrimSuffix(path, ".zst"), ".raw") + ".json"
}

// WriteFiles writes the dump to path and its sidecar next to it, and
// returns the sidecar path.
func WriteFiles(path string, buf *pixbuf.Buffer) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	if err := Write(f, buf); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}

	metaJSON, _ := json.MarshalIndent(MetaFor(buf), "", "  ")
	metaPath := SidecarPath(path)
	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", fmt.Errorf("%w: writing sidecar: %v", pixbuf.ErrIO, err)
	}
	return metaPath, nil
}

// ReadFiles loads a dump and its sidecar.
func ReadFiles(path string) (*pixbuf.Buffer, error) {
	metaJSON, err := os.ReadFile(SidecarPath(path))
	if err != nil {
		return nil, fmt.Errorf("%w: reading sidecar: %v", pixbuf.ErrIO, err)
	}
	var meta Meta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("%w: parsing sidecar: %v", pixbuf.ErrFormat, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	defer f.Close()
	return Read(f, meta)
}
