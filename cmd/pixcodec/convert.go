package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/davesmith10/pixcodec/internal/pipeline"
	"github.com/davesmith10/pixcodec/internal/transform"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Decode images, apply rotation or reflection, and write PNG",
	RunE:  runConvert,
}

func init() {
	convertCmd.Flags().StringSliceP("input", "i", nil, "Input bitmap or PNG file (repeatable)")
	convertCmd.Flags().StringP("output", "o", "", "Output PNG file (single input only)")
	convertCmd.Flags().String("out-dir", "", "Output directory for batch conversion")
	convertCmd.Flags().Float64("rotate", 0, "Counter-clockwise rotation in degrees (multiple of 90)")
	convertCmd.Flags().StringSlice("reflect", nil, "Reflect over axis x or y (repeatable, applied in order)")
	convertCmd.Flags().Bool("standard-bmp", false, "Decode bitmaps as standard BMP files instead of raw float payloads")
	convertCmd.Flags().Int("jobs", runtime.GOMAXPROCS(0), "Parallel conversions")
	convertCmd.MarkFlagRequired("input")
	convertCmd.MarkFlagsMutuallyExclusive("output", "out-dir")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	inputs, _ := cmd.Flags().GetStringSlice("input")
	outputPath, _ := cmd.Flags().GetString("output")
	outDir, _ := cmd.Flags().GetString("out-dir")
	rotate, _ := cmd.Flags().GetFloat64("rotate")
	reflectNames, _ := cmd.Flags().GetStringSlice("reflect")
	standardBMP, _ := cmd.Flags().GetBool("standard-bmp")
	jobs, _ := cmd.Flags().GetInt("jobs")

	targets, err := outputPaths(inputs, outputPath, outDir)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		StandardBitmap: standardBMP,
		Rotate:         rotate,
		Logger:         slog.Default(),
	}
	for _, name := range reflectNames {
		axis, err := transform.ParseAxis(name)
		if err != nil {
			return err
		}
		opts.Reflect = append(opts.Reflect, axis)
	}

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []error
	)
	g.SetLimit(max(jobs, 1))
	for i, in := range inputs {
		in, out := in, targets[i]
		g.Go(func() error {
			result, err := pipeline.Run(in, out, opts)
			if err != nil {
				slog.Error("conversion failed", "in", in, "kind", pipeline.Kind(err), "err", err)
				mu.Lock()
				failed = append(failed, fmt.Errorf("%s: %w", in, err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			fmt.Printf("Converted %dx%d %s → %dx%d PNG: %s\n",
				result.SrcWidth, result.SrcHeight, result.SrcFormat, result.Width, result.Height, out)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d conversions failed: %w", len(failed), len(inputs), errors.Join(failed...))
	}
	return nil
}

// outputPaths pairs each input with its destination.
func outputPaths(inputs []string, outputPath, outDir string) ([]string, error) {
	switch {
	case outputPath != "":
		if len(inputs) != 1 {
			return nil, fmt.Errorf("--output takes a single input, got %d; use --out-dir", len(inputs))
		}
		return []string{outputPath}, nil
	case outDir != "":
		paths := make([]string, len(inputs))
		seen := make(map[string]string, len(inputs))
		for i, in := range inputs {
			base := filepath.Base(in)
			p := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".png")
			if prev, ok := seen[p]; ok {
				return nil, fmt.Errorf("%s and %s both map to %s", prev, in, p)
			}
			seen[p] = in
			paths[i] = p
		}
		return paths, nil
	default:
		return nil, errors.New("one of --output or --out-dir is required")
	}
}
