package main

import (
	"fmt"
	"log/slog"

	"github.com/davesmith10/pixcodec/internal/pipeline"
	"github.com/davesmith10/pixcodec/internal/staging"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Decode an image to zstd-compressed float32 samples (raw output + JSON sidecar)",
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().StringP("input", "i", "", "Input bitmap or PNG file")
	dumpCmd.Flags().StringP("output", "o", "", "Output sample file (.raw.zst)")
	dumpCmd.Flags().Bool("standard-bmp", false, "Decode bitmaps as standard BMP files")
	dumpCmd.MarkFlagRequired("input")
	dumpCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")
	standardBMP, _ := cmd.Flags().GetBool("standard-bmp")

	buf, format, err := pipeline.Decode(inputPath, pipeline.Options{StandardBitmap: standardBMP, Logger: slog.Default()})
	if err != nil {
		return fmt.Errorf("decoding: %w", err)
	}

	metaPath, err := staging.WriteFiles(outputPath, buf)
	if err != nil {
		return fmt.Errorf("writing samples: %w", err)
	}

	fmt.Printf("Dumped %dx%d %s → %d channel %s samples\n",
		buf.Width(), buf.Height(), format, buf.Channels(), staging.SampleFormat)
	fmt.Printf("Sidecar: %s\n", metaPath)
	return nil
}
