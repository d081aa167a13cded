package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/davesmith10/pixcodec/internal/bitmap"
	"github.com/davesmith10/pixcodec/internal/pixbuf"
	"github.com/davesmith10/pixcodec/internal/raster"
	"github.com/davesmith10/pixcodec/internal/transform"
)

// Format identifies an input container.
type Format int

const (
	FormatUnknown Format = iota
	FormatBitmap
	FormatRaster
)

func (f Format) String() string {
	switch f {
	case FormatBitmap:
		return "bitmap"
	case FormatRaster:
		return "png"
	default:
		return "unknown"
	}
}

// DetectFormat sniffs the container from the leading bytes of a file.
func DetectFormat(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, []byte(raster.Signature)):
		return FormatRaster
	case bytes.HasPrefix(head, []byte("BM")):
		return FormatBitmap
	default:
		return FormatUnknown
	}
}

// Options controls a pipeline run.
type Options struct {
	StandardBitmap bool             // decode bitmaps with bitmap.DecodeStandard instead of the raw loader
	Rotate         float64          // counter-clockwise degrees, multiple of 90
	Reflect        []transform.Axis // applied in order after rotation
	Logger         *slog.Logger     // nil means slog.Default()
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Result holds the output of a pipeline run.
type Result struct {
	SrcFormat Format
	SrcWidth  int
	SrcHeight int
	Width     int
	Height    int
	Channels  int
}

// Decode reads path and decodes it according to its detected format.
func Decode(path string, opts Options) (*pixbuf.Buffer, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, FormatUnknown, fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	format := DetectFormat(data)
	opts.logger().Debug("decoding", "path", path, "format", format, "bytes", len(data))

	var buf *pixbuf.Buffer
	r := bytes.NewReader(data)
	switch {
	case format == FormatRaster:
		buf, err = raster.Decode(r)
	case format == FormatBitmap && opts.StandardBitmap:
		buf, err = bitmap.DecodeStandard(r)
	case format == FormatBitmap:
		buf, err = bitmap.Decode(r)
	default:
		err = fmt.Errorf("%w: unrecognized file signature", pixbuf.ErrFormat)
	}
	if err != nil {
		return nil, format, err
	}
	return buf, format, nil
}

// Load is the boolean-result form of Decode: failures are logged with
// their category and reported as false.
func Load(path string, logger *slog.Logger) (*pixbuf.Buffer, bool) {
	opts := Options{Logger: logger}
	buf, _, err := Decode(path, opts)
	if err != nil {
		opts.logger().Error("unable to load image", "path", path, "kind", Kind(err), "err", err)
		return nil, false
	}
	return buf, true
}

// Save encodes buf to path. A failed save may leave a truncated file
// behind; it is removed before returning false.
func Save(path string, buf *pixbuf.Buffer, logger *slog.Logger) bool {
	opts := Options{Logger: logger}
	if err := raster.EncodeFile(path, buf); err != nil {
		opts.logger().Error("unable to write image", "path", path, "kind", Kind(err), "err", err)
		os.Remove(path)
		return false
	}
	return true
}

// Apply runs the geometric steps of opts over buf.
func Apply(buf *pixbuf.Buffer, opts Options) (*pixbuf.Buffer, error) {
	var err error
	if opts.Rotate != 0 {
		if buf, err = transform.Rotate(buf, opts.Rotate); err != nil {
			return nil, fmt.Errorf("rotate: %w", err)
		}
	}
	for _, axis := range opts.Reflect {
		if buf, err = transform.Reflect(buf, axis); err != nil {
			return nil, fmt.Errorf("reflect %s: %w", axis, err)
		}
	}
	return buf, nil
}

// Run executes decode -> transform -> encode for one file.
func Run(inPath, outPath string, opts Options) (*Result, error) {
	// 1. Decode
	buf, format, err := Decode(inPath, opts)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	res := &Result{SrcFormat: format, SrcWidth: buf.Width(), SrcHeight: buf.Height()}

	// 2. Transform
	if buf, err = Apply(buf, opts); err != nil {
		return nil, err
	}

	// 3. Encode
	var out bytes.Buffer
	if err := raster.Encode(&out, buf); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if err := writeFile(outPath, &out); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	res.Width, res.Height, res.Channels = buf.Width(), buf.Height(), buf.Channels()
	opts.logger().Debug("converted", "in", inPath, "out", outPath, "width", res.Width, "height", res.Height)
	return res, nil
}

// createFile opens an output for writing.
var createFile = func(path string) (io.WriteCloser, error) { return os.Create(path) }

// writeFile copies r to path. Any failure removes the partial file.
func writeFile(path string, r io.Reader) error {
	f, err := createFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %v", pixbuf.ErrIO, err)
	}
	return nil
}

// Kind names the error category of err for diagnostics.
func Kind(err error) string {
	switch {
	case errors.Is(err, pixbuf.ErrIO):
		return "io"
	case errors.Is(err, pixbuf.ErrFormat):
		return "format"
	case errors.Is(err, pixbuf.ErrAllocation):
		return "allocation"
	case errors.Is(err, transform.ErrUnsupportedAngle):
		return "transform"
	default:
		return "unknown"
	}
}
