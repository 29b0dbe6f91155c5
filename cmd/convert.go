package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jDay-whyT/converterBot-backend/internal/app"
	"github.com/jDay-whyT/converterBot-backend/internal/entities"
)

var convertFlags struct {
	out     string
	quality int
	maxSide int
}

// convertCmd runs a conversion locally without the HTTP layer.
var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert one local file to JPEG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := args[0]
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}

		params := entities.ConversionParams{Quality: convertFlags.quality}
		if params.Quality == 0 {
			params.Quality = cfg.Converter.DefaultQuality
		}
		if convertFlags.maxSide != 0 {
			params.MaxSide = &convertFlags.maxSide
		}

		runner := app.NewRunner(cfg, log)
		app.LogToolInventory(cmd.Context(), runner, log)

		out, err := app.NewUseCase(cfg, runner, log).Convert(cmd.Context(), entities.ConversionRequest{
			Data:     data,
			Filename: filepath.Base(in),
			Params:   params,
		})
		if err != nil {
			return err
		}

		dst := convertFlags.out
		if dst == "" {
			dst = strings.TrimSuffix(in, filepath.Ext(in)) + ".jpg"
		}
		if err := os.WriteFile(dst, out.JPEG, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s", in, dst, out.Route)
		if out.Strategy != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " via %s", out.Strategy)
		}
		fmt.Fprintf(cmd.OutOrStdout(), ", %d bytes, %s)\n", len(out.JPEG), out.Elapsed)
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertFlags.out, "out", "o", "", "output path (default: input stem + .jpg)")
	convertCmd.Flags().IntVarP(&convertFlags.quality, "quality", "q", 0, "JPEG quality 1..100")
	convertCmd.Flags().IntVar(&convertFlags.maxSide, "max-side", 0, "bound the longer side in pixels")
	rootCmd.AddCommand(convertCmd)
}
