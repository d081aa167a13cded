package main

import (
	"fmt"
	"log/slog"

	"github.com/davesmith10/pixcodec/internal/pipeline"
	"github.com/davesmith10/pixcodec/internal/staging"
	"github.com/spf13/cobra"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a float32 sample dump to PNG",
	RunE:  runEncode,
}

func init() {
	encodeCmd.Flags().StringP("input", "i", "", "Input sample file written by dump (sidecar read alongside)")
	encodeCmd.Flags().StringP("output", "o", "", "Output PNG file")
	encodeCmd.MarkFlagRequired("input")
	encodeCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(encodeCmd)
}

func runEncode(cmd *cobra.Command, args []string) error {
	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")

	buf, err := staging.ReadFiles(inputPath)
	if err != nil {
		return fmt.Errorf("reading samples: %w", err)
	}

	if !pipeline.Save(outputPath, buf, slog.Default()) {
		return fmt.Errorf("encoding %s failed", outputPath)
	}

	fmt.Printf("Encoded %dx%d → %s\n", buf.Width(), buf.Height(), outputPath)
	return nil
}
