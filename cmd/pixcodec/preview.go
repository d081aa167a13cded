package main

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/davesmith10/pixcodec/internal/pipeline"
	"github.com/disintegration/gift"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview [file]",
	Short: "Print a downscaled image to a truecolor terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().Int("width", 64, "Preview width in terminal cells")
	previewCmd.Flags().Bool("standard-bmp", false, "Decode bitmaps as standard BMP files")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	width, _ := cmd.Flags().GetInt("width")
	standardBMP, _ := cmd.Flags().GetBool("standard-bmp")
	if width <= 0 {
		return fmt.Errorf("invalid --width %d", width)
	}

	buf, _, err := pipeline.Decode(args[0], pipeline.Options{StandardBitmap: standardBMP, Logger: slog.Default()})
	if err != nil {
		return fmt.Errorf("decoding: %w", err)
	}

	img := downscale(buf.ToImage(), width)
	return printBlocks(os.Stdout, img)
}

// downscale shrinks img to at most width columns. Terminal cells are
// about twice as tall as wide, so rows are halved as well.
func downscale(img *image.NRGBA, width int) *image.NRGBA {
	b := img.Bounds()
	w := min(width, b.Dx())
	h := max(b.Dy()*w/b.Dx()/2, 1)
	g := gift.New(gift.Resize(w, h, gift.LanczosResampling))
	dst := image.NewNRGBA(g.Bounds(b))
	g.Draw(dst, img)
	return dst
}

func printBlocks(w io.Writer, img *image.NRGBA) error {
	b := img.Bounds()
	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y++ {
		sb.Reset()
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			sb.WriteString(coloredBlock(" ", c.R, c.G, c.B))
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

func coloredBlock(block string, red, green, blue uint8) string {
	return fmt.Sprintf("\033[48;2;%d;%d;%dm%s\033[0m", red, green, blue, block)
}
