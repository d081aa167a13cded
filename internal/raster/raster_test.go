package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/klauspost/compress/zlib"
)

const quantStep = 1.0 / 255

// streamSpec describes a hand-assembled stream for decoder edge cases.
type streamSpec struct {
	hdr     Header
	palette []byte
	rows    [][]byte // raw rows including the leading filter byte
	extra   []chunk  // inserted between the header and the data
}

func buildStream(t *testing.T, s streamSpec) []byte {
	t.Helper()
	var out bytes.Buffer
	out.WriteString(Signature)
	if err := writeChunk(&out, chunkIHDR, s.hdr.marshal()); err != nil {
		t.Fatalf("writing header: %v", err)
	}
	for _, c := range s.extra {
		if err := writeChunk(&out, c.typ, c.data); err != nil {
			t.Fatalf("writing %s: %v", c.typ, err)
		}
	}
	if s.palette != nil {
		if err := writeChunk(&out, chunkPLTE, s.palette); err != nil {
			t.Fatalf("writing palette: %v", err)
		}
	}
	var data bytes.Buffer
	zw := zlib.NewWriter(&data)
	for _, row := range s.rows {
		zw.Write(row)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("compressing rows: %v", err)
	}
	if err := writeChunk(&out, chunkIDAT, data.Bytes()); err != nil {
		t.Fatalf("writing data: %v", err)
	}
	if err := writeChunk(&out, chunkIEND, nil); err != nil {
		t.Fatalf("writing end: %v", err)
	}
	return out.Bytes()
}

func encodeStd(t *testing.T, img image.Image) []byte {
	t.Helper()
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return out.Bytes()
}

func encodeBuffer(t *testing.T, buf *pixbuf.Buffer) []byte {
	t.Helper()
	var out bytes.Buffer
	if err := Encode(&out, buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return out.Bytes()
}

func randomBuffer(t *testing.T, width, height, channels int, seed int64) *pixbuf.Buffer {
	t.Helper()
	buf, err := pixbuf.New(width, height, channels)
	if err != nil {
		t.Fatalf("pixbuf.New: %v", err)
	}
	rng := rand.New(rand.NewSource(seed))
	for i := range buf.Samples() {
		buf.Samples()[i] = rng.Float32()
	}
	return buf
}

func TestRoundTrip(t *testing.T) {
	for _, channels := range []int{1, 3, 4} {
		t.Run(colorTypeForChannels(channels).String(), func(t *testing.T) {
			src := randomBuffer(t, 17, 9, channels, int64(channels))
			got, err := Decode(bytes.NewReader(encodeBuffer(t, src)))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Width() != 17 || got.Height() != 9 || got.Channels() != channels {
				t.Fatalf("shape %dx%dx%d, want 17x9x%d", got.Width(), got.Height(), got.Channels(), channels)
			}
			if len(got.Samples()) != 17*9*channels {
				t.Fatalf("got %d samples, want %d", len(got.Samples()), 17*9*channels)
			}
			opt := cmpopts.EquateApprox(0, quantStep)
			if diff := cmp.Diff(src.Samples(), got.Samples(), opt); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTrip_RowOrder(t *testing.T) {
	src, _ := pixbuf.New(3, 4, 3)
	for y := 0; y < 4; y++ {
		for x := 0; x < 3; x++ {
			src.Set(x, y, pixbuf.Color{float32(x) / 2, float32(y) / 3, 1})
		}
	}
	data := encodeBuffer(t, src)

	got, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 3; x++ {
			want, have := src.At(x, y), got.At(x, y)
			for c := 0; c < 3; c++ {
				if math.Abs(float64(want[c]-have[c])) > quantStep {
					t.Errorf("At(%d,%d)[%d] = %v, want %v", x, y, c, have[c], want[c])
				}
			}
		}
	}

	// An independent reader sees buffer row 0 as the bottom of the image.
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	_, g, _, _ := img.At(0, 0).RGBA()
	if g>>8 != 255 {
		t.Errorf("top stored row has green %d, want 255 (buffer row 3)", g>>8)
	}
	_, g, _, _ = img.At(0, 3).RGBA()
	if g>>8 != 0 {
		t.Errorf("bottom stored row has green %d, want 0 (buffer row 0)", g>>8)
	}
}

func TestEncode_Clamps(t *testing.T) {
	src, _ := pixbuf.NewFromSamples(2, 1, 1, []float32{1.5, -0.3})
	img, err := png.Decode(bytes.NewReader(encodeBuffer(t, src)))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("decoded %T, want *image.Gray", img)
	}
	if diff := cmp.Diff([]uint8{255, 0}, gray.Pix); diff != "" {
		t.Errorf("quantized samples mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_GrayAlpha(t *testing.T) {
	src, _ := pixbuf.NewFromSamples(1, 1, 2, []float32{0.2, 1})
	data := encodeBuffer(t, src)

	info, err := GetInfo(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.ColorType != ColorGrayAlpha || info.BitDepth != 8 {
		t.Errorf("got %s/%d, want GrayAlpha/8", info.ColorType, info.BitDepth)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("png.Decode rejected gray+alpha output: %v", err)
	}
	// The decoder only accepts gray, RGB and RGBA.
	if _, err := Decode(bytes.NewReader(data)); !errors.Is(err, pixbuf.ErrFormat) {
		t.Errorf("Decode error = %v, want ErrFormat", err)
	}
}

func TestEncode_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := Encode(&out, &pixbuf.Buffer{}); !errors.Is(err, pixbuf.ErrFormat) {
		t.Errorf("error = %v, want ErrFormat", err)
	}
}

func TestEncodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	src := randomBuffer(t, 5, 5, 4, 7)
	if err := EncodeFile(path, src); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	got, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if diff := cmp.Diff(src.Samples(), got.Samples(), cmpopts.EquateApprox(0, quantStep)); diff != "" {
		t.Errorf("file round trip mismatch (-want +got):\n%s", diff)
	}

	if err := EncodeFile(filepath.Join(t.TempDir(), "missing", "out.png"), src); !errors.Is(err, pixbuf.ErrIO) {
		t.Errorf("EncodeFile into missing dir: error = %v, want ErrIO", err)
	}
}

func TestDecode_Gray16(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 3, 1))
	img.SetGray16(0, 0, color.Gray16{Y: 65535})
	img.SetGray16(1, 0, color.Gray16{Y: 0})
	img.SetGray16(2, 0, color.Gray16{Y: 32768})

	buf, err := Decode(bytes.NewReader(encodeStd(t, img)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Channels() != 1 {
		t.Fatalf("channels = %d, want 1", buf.Channels())
	}
	if got := buf.At(0, 0)[0]; got != 1 {
		t.Errorf("65535 -> %v, want 1", got)
	}
	if got := buf.At(1, 0)[0]; got != 0 {
		t.Errorf("0 -> %v, want 0", got)
	}
	if got := buf.At(2, 0)[0]; math.Abs(float64(got)-32768.0/65535) > 1e-6 {
		t.Errorf("32768 -> %v, want %v", got, 32768.0/65535)
	}
}

func TestDecode_RGBA16(t *testing.T) {
	img := image.NewNRGBA64(image.Rect(0, 0, 1, 2))
	img.SetNRGBA64(0, 0, color.NRGBA64{R: 0xffff, G: 0x8000, B: 0x0001, A: 0x4000})
	img.SetNRGBA64(0, 1, color.NRGBA64{A: 0xffff})

	buf, err := Decode(bytes.NewReader(encodeStd(t, img)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Channels() != 4 {
		t.Fatalf("channels = %d, want 4", buf.Channels())
	}
	want := pixbuf.Color{1, 0x8000 / 65535.0, 1 / 65535.0, 0x4000 / 65535.0}
	if diff := cmp.Diff(want, buf.At(0, 1), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("top pixel mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Gray8(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	copy(img.Pix, []uint8{0, 51, 102, 255})

	buf, err := Decode(bytes.NewReader(encodeStd(t, img)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// Stored top row becomes buffer row 1.
	want := []float32{102.0 / 255, 1, 0, 51.0 / 255}
	if diff := cmp.Diff(want, buf.Samples(), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_PaletteExpandsToRGB(t *testing.T) {
	pal := color.Palette{
		color.RGBA{255, 0, 0, 255},
		color.RGBA{0, 255, 0, 255},
		color.RGBA{0, 0, 255, 255},
	}
	img := image.NewPaletted(image.Rect(0, 0, 5, 1), pal)
	copy(img.Pix, []uint8{0, 1, 2, 1, 0})

	data := encodeStd(t, img)
	info, err := GetInfo(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.ColorType != ColorPalette || info.Channels != 3 {
		t.Errorf("info = %+v, want palette source decoding to 3 channels", info)
	}

	buf, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Channels() != 3 {
		t.Fatalf("channels = %d, want 3", buf.Channels())
	}
	for x, idx := range []int{0, 1, 2, 1, 0} {
		r, g, b, _ := pal[idx].RGBA()
		want := pixbuf.Color{float32(r>>8) / 255, float32(g>>8) / 255, float32(b>>8) / 255}
		if got := buf.At(x, 0); got != want {
			t.Errorf("At(%d,0) = %v, want %v", x, got, want)
		}
	}
}

func TestDecode_SubByteGray(t *testing.T) {
	// 1-bit gray: 10110000 -> 1,0,1,1
	data := buildStream(t, streamSpec{
		hdr:  Header{Width: 4, Height: 1, BitDepth: 1, ColorType: ColorGray},
		rows: [][]byte{{filterNone, 0xb0}},
	})
	buf, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff([]float32{1, 0, 1, 1}, buf.Samples()); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}

	// 4-bit gray: 0x5f -> 5/15, 15/15
	data = buildStream(t, streamSpec{
		hdr:  Header{Width: 2, Height: 1, BitDepth: 4, ColorType: ColorGray},
		rows: [][]byte{{filterNone, 0x5f}},
	})
	buf, err = Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff([]float32{5.0 / 15, 1}, buf.Samples(), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_AllFilters(t *testing.T) {
	// Two RGB rows; the second row is filtered with every filter type in turn.
	first := []byte{10, 20, 30, 40, 50, 60}
	second := []byte{200, 100, 50, 210, 90, 60}
	for _, ft := range []byte{filterNone, filterSub, filterUp, filterAverage, filterPaeth} {
		filtered := filterRow(ft, second, first, 3)
		data := buildStream(t, streamSpec{
			hdr:  Header{Width: 2, Height: 2, BitDepth: 8, ColorType: ColorRGB},
			rows: [][]byte{append([]byte{filterNone}, first...), append([]byte{ft}, filtered...)},
		})
		buf, err := Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("filter %d: Decode: %v", ft, err)
		}
		// Stored row 1 is buffer row 0.
		got := make([]byte, 6)
		for i, v := range buf.Samples()[:6] {
			got[i] = pixbuf.Quantize8(v)
		}
		if diff := cmp.Diff(second, got); diff != "" {
			t.Errorf("filter %d mismatch (-want +got):\n%s", ft, diff)
		}
	}
}

// filterRow is a straightforward forward filter used to build fixtures.
func filterRow(ft byte, cur, prev []byte, stride int) []byte {
	out := make([]byte, len(cur))
	for i := range cur {
		var left, upLeft byte
		if i >= stride {
			left, upLeft = cur[i-stride], prev[i-stride]
		}
		up := prev[i]
		switch ft {
		case filterNone:
			out[i] = cur[i]
		case filterSub:
			out[i] = cur[i] - left
		case filterUp:
			out[i] = cur[i] - up
		case filterAverage:
			out[i] = cur[i] - byte((int(left)+int(up))/2)
		case filterPaeth:
			out[i] = cur[i] - paeth(left, up, upLeft)
		}
	}
	return out
}

func TestFilterPaethRow_InvertsUnfilter(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	prev, cur := make([]byte, 32), make([]byte, 32)
	rng.Read(prev)
	rng.Read(cur)

	filtered := make([]byte, len(cur))
	filterPaethRow(filtered, cur, prev, 4)
	if err := unfilter(filterPaeth, filtered, prev, 4); err != nil {
		t.Fatalf("unfilter: %v", err)
	}
	if diff := cmp.Diff(cur, filtered); diff != "" {
		t.Errorf("paeth round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Rejects(t *testing.T) {
	valid := encodeBuffer(t, randomBuffer(t, 2, 2, 3, 3))

	corruptSig := append([]byte{}, valid...)
	corruptSig[3] ^= 0xff

	corruptCRC := append([]byte{}, valid...)
	corruptCRC[len(Signature)+8+headerLen] ^= 0xff

	rgbRow := []byte{filterNone, 1, 2, 3}
	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"corrupted signature", corruptSig},
		{"short signature", valid[:5]},
		{"corrupted checksum", corruptCRC},
		{"truncated", valid[:len(valid)-20]},
		{"bit depth 12", buildStream(t, streamSpec{
			hdr:  Header{Width: 1, Height: 1, BitDepth: 12, ColorType: ColorGray},
			rows: [][]byte{{filterNone, 0, 0}},
		})},
		{"gray alpha", buildStream(t, streamSpec{
			hdr:  Header{Width: 1, Height: 1, BitDepth: 8, ColorType: ColorGrayAlpha},
			rows: [][]byte{{filterNone, 1, 2}},
		})},
		{"interlaced", buildStream(t, streamSpec{
			hdr:  Header{Width: 1, Height: 1, BitDepth: 8, ColorType: ColorRGB, Interlace: 1},
			rows: [][]byte{rgbRow},
		})},
		{"unknown critical chunk", buildStream(t, streamSpec{
			hdr:   Header{Width: 1, Height: 1, BitDepth: 8, ColorType: ColorRGB},
			rows:  [][]byte{rgbRow},
			extra: []chunk{{typ: "ABCD", data: []byte{1}}},
		})},
		{"palette missing", buildStream(t, streamSpec{
			hdr:  Header{Width: 1, Height: 1, BitDepth: 8, ColorType: ColorPalette},
			rows: [][]byte{{filterNone, 0}},
		})},
		{"palette index out of range", buildStream(t, streamSpec{
			hdr:     Header{Width: 1, Height: 1, BitDepth: 8, ColorType: ColorPalette},
			palette: []byte{1, 2, 3},
			rows:    [][]byte{{filterNone, 4}},
		})},
		{"unknown filter", buildStream(t, streamSpec{
			hdr:  Header{Width: 1, Height: 1, BitDepth: 8, ColorType: ColorRGB},
			rows: [][]byte{{5, 1, 2, 3}},
		})},
		{"missing rows", buildStream(t, streamSpec{
			hdr:  Header{Width: 1, Height: 2, BitDepth: 8, ColorType: ColorRGB},
			rows: [][]byte{rgbRow},
		})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := Decode(bytes.NewReader(tc.data))
			if !errors.Is(err, pixbuf.ErrFormat) {
				t.Errorf("error = %v, want ErrFormat", err)
			}
			if buf != nil {
				t.Error("expected nil buffer on failure")
			}
		})
	}
}

// rawChunkHeader is a chunk length and type with no payload behind it.
func rawChunkHeader(length uint32, typ string) []byte {
	return append(binary.BigEndian.AppendUint32(nil, length), typ...)
}

// allocatedBy reports the bytes allocated while f runs.
func allocatedBy(f func()) uint64 {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	f()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestDecode_DeclaredSizesDoNotAllocate(t *testing.T) {
	hugeHeader := append([]byte(Signature), rawChunkHeader(1<<30, chunkIHDR)...)

	var hugeData bytes.Buffer
	hugeData.WriteString(Signature)
	hdr := Header{Width: 4, Height: 4, BitDepth: 8, ColorType: ColorRGB}
	if err := writeChunk(&hugeData, chunkIHDR, hdr.marshal()); err != nil {
		t.Fatalf("writing header: %v", err)
	}
	hugeData.Write(rawChunkHeader(1<<30, chunkIDAT))
	hugeData.WriteString("only a few bytes")

	hugeMeta := append([]byte{}, hugeData.Bytes()[:len(Signature)+8+headerLen+4]...)
	hugeMeta = append(hugeMeta, rawChunkHeader(1<<30, "tEXt")...)

	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"header chunk claims 1 GiB", hugeHeader},
		{"data chunk claims 1 GiB", hugeData.Bytes()},
		{"ancillary chunk claims 1 GiB", hugeMeta},
		{"dimensions exceed data", buildStream(t, streamSpec{
			hdr:  Header{Width: 8192, Height: 8192, BitDepth: 8, ColorType: ColorRGBA},
			rows: [][]byte{{filterNone}},
		})},
		{"no image data", func() []byte {
			var out bytes.Buffer
			out.WriteString(Signature)
			writeChunk(&out, chunkIHDR, hdr.marshal())
			writeChunk(&out, chunkIEND, nil)
			return out.Bytes()
		}()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			n := allocatedBy(func() { _, err = Decode(bytes.NewReader(tc.data)) })
			if !errors.Is(err, pixbuf.ErrFormat) {
				t.Errorf("error = %v, want ErrFormat", err)
			}
			if n > 1<<20 {
				t.Errorf("%d byte input allocated %d bytes", len(tc.data), n)
			}
		})
	}

	n := allocatedBy(func() {
		if _, err := GetInfo(bytes.NewReader(hugeHeader)); !errors.Is(err, pixbuf.ErrFormat) {
			t.Errorf("GetInfo error = %v, want ErrFormat", err)
		}
	})
	if n > 1<<20 {
		t.Errorf("GetInfo allocated %d bytes", n)
	}
}

func TestDecode_SkipsAncillaryChunks(t *testing.T) {
	data := buildStream(t, streamSpec{
		hdr:   Header{Width: 1, Height: 1, BitDepth: 8, ColorType: ColorRGB},
		rows:  [][]byte{{filterNone, 0, 128, 255}},
		extra: []chunk{{typ: "tEXt", data: []byte("Comment\x00hello")}},
	})
	buf, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := buf.At(0, 0)[2]; got != 1 {
		t.Errorf("blue = %v, want 1", got)
	}
}

func TestDecodeFile_Missing(t *testing.T) {
	if _, err := DecodeFile(filepath.Join(t.TempDir(), "nope.png")); !errors.Is(err, pixbuf.ErrIO) {
		t.Errorf("error = %v, want ErrIO", err)
	}
}

func TestGetInfo(t *testing.T) {
	data := buildStream(t, streamSpec{
		hdr:  Header{Width: 7, Height: 3, BitDepth: 16, ColorType: ColorRGBA},
		rows: nil,
	})
	info, err := GetInfo(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	want := &Info{Width: 7, Height: 3, BitDepth: 16, ColorType: ColorRGBA, Channels: 4}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}

	data = buildStream(t, streamSpec{
		hdr: Header{Width: 1, Height: 1, BitDepth: 8, ColorType: ColorGrayAlpha},
	})
	info, err = GetInfo(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.Channels != 0 {
		t.Errorf("gray+alpha Channels = %d, want 0 (not decodable)", info.Channels)
	}
}

func TestEncode_ChunkLayout(t *testing.T) {
	data := encodeBuffer(t, randomBuffer(t, 64, 64, 4, 9))
	r := bytes.NewReader(data[len(Signature):])
	var types []string
	for {
		c, err := readChunk(r, nil)
		if err != nil {
			t.Fatalf("readChunk: %v", err)
		}
		if len(types) == 0 || types[len(types)-1] != c.typ {
			types = append(types, c.typ)
		}
		if c.typ == chunkIEND {
			break
		}
	}
	if diff := cmp.Diff([]string{chunkIHDR, chunkIDAT, chunkIEND}, types); diff != "" {
		t.Errorf("chunk sequence mismatch (-want +got):\n%s", diff)
	}
	t.Logf("encoded 64x64 RGBA: %d bytes", len(data))
}
