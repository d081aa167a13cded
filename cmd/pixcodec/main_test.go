package main

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davesmith10/pixcodec/internal/pixbuf"
	"github.com/davesmith10/pixcodec/internal/raster"
	"github.com/google/go-cmp/cmp"
)

func TestOutputPaths(t *testing.T) {
	got, err := outputPaths([]string{"a/one.bmp", "b/two.png"}, "", "out")
	if err != nil {
		t.Fatalf("outputPaths: %v", err)
	}
	want := []string{filepath.Join("out", "one.png"), filepath.Join("out", "two.png")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	if _, err := outputPaths([]string{"a.bmp", "b.bmp"}, "x.png", ""); err == nil {
		t.Error("expected error for --output with two inputs")
	}
	if _, err := outputPaths([]string{"a/img.bmp", "b/img.png"}, "", "out"); err == nil {
		t.Error("expected error for colliding outputs")
	}
	if _, err := outputPaths([]string{"a.bmp"}, "", ""); err == nil {
		t.Error("expected error with no destination")
	}
}

func TestPreview(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	small := downscale(img, 10)
	if small.Bounds().Dx() != 10 || small.Bounds().Dy() != 2 {
		t.Fatalf("downscaled to %v, want 10x2", small.Bounds())
	}

	var out bytes.Buffer
	if err := printBlocks(&out, small); err != nil {
		t.Fatalf("printBlocks: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if n := strings.Count(lines[0], "\033[48;2;"); n != 10 {
		t.Errorf("row 0 has %d cells, want 10", n)
	}
	if c := small.NRGBAAt(5, 1); c.R < 250 || c.G > 5 || c.B > 5 {
		t.Errorf("cell (5,1) = %v, want red", c)
	}
}

func TestConvert_BatchReportsFailures(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	var inputs []string
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		buf, err := pixbuf.New(3, 2, 3)
		if err != nil {
			t.Fatalf("pixbuf.New: %v", err)
		}
		buf.Set(0, 0, pixbuf.Color{1, 0.5, 0})
		path := filepath.Join(dir, name)
		if err := raster.EncodeFile(path, buf); err != nil {
			t.Fatalf("EncodeFile: %v", err)
		}
		inputs = append(inputs, path)
	}
	bad := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	inputs = append(inputs, bad)

	args := []string{"convert", "--out-dir", outDir, "--jobs", "2", "--rotate", "90"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected an error for the broken input")
	}
	if !strings.Contains(err.Error(), bad) || !strings.Contains(err.Error(), "1 of 4") {
		t.Errorf("error %q should name %s and count one failure", err, bad)
	}

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		got, err := raster.DecodeFile(filepath.Join(outDir, name))
		if err != nil {
			t.Errorf("output %s: %v", name, err)
			continue
		}
		if got.Width() != 2 || got.Height() != 3 {
			t.Errorf("output %s is %dx%d, want 2x3", name, got.Width(), got.Height())
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "broken.png")); !os.IsNotExist(err) {
		t.Error("failed conversion left an output file behind")
	}
}
