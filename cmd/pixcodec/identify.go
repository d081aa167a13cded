package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/davesmith10/pixcodec/internal/bitmap"
	"github.com/davesmith10/pixcodec/internal/pipeline"
	"github.com/davesmith10/pixcodec/internal/raster"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify [file]",
	Short: "Inspect image header info",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	format := pipeline.DetectFormat(data)
	fmt.Printf("File:       %s\n", path)
	fmt.Printf("Format:     %s\n", format)

	switch format {
	case pipeline.FormatRaster:
		info, err := raster.GetInfo(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		fmt.Printf("Dimensions: %d x %d\n", info.Width, info.Height)
		fmt.Printf("Color type: %s\n", info.ColorType)
		fmt.Printf("Bit depth:  %d\n", info.BitDepth)
		fmt.Printf("Interlaced: %t\n", info.Interlaced)
		if info.Channels > 0 {
			fmt.Printf("Channels:   %d\n", info.Channels)
		} else {
			fmt.Println("Channels:   unsupported")
		}
	case pipeline.FormatBitmap:
		hdr, err := bitmap.ReadHeader(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		fmt.Printf("Dimensions: %d x %d\n", hdr.Width, hdr.Height)
		fmt.Printf("Bit count:  %d\n", hdr.BitCount)
		fmt.Printf("Data:       offset %d, %d bytes declared\n", hdr.DataOffset, hdr.ImageSize)
	default:
		return fmt.Errorf("parsing %s: unrecognized file signature", path)
	}

	fmt.Printf("File size:  %d bytes (%.1f MB)\n", len(data), float64(len(data))/(1024*1024))
	return nil
}
