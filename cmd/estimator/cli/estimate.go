package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"fuelagent"
	"fuelagent/cmd/estimator/setup"

	"github.com/spf13/cobra"
)

var (
	estimateImages      []string
	estimateDescription string
	withOtel            bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [-i photo.jpg ...] [-d description]",
	Short: "Estimate a meal",
	Example: `  estimator estimate -i lunch.jpg -d "2 slices of fish cake"
  estimator estimate --dry-run -d "chicken rice"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEstimate(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	estimateCmd.Flags().StringSliceVarP(&estimateImages, "image", "i", nil, "Image file (repeatable)")
	estimateCmd.Flags().StringVarP(&estimateDescription, "description", "d", "", "Free-text meal description")
	estimateCmd.Flags().BoolVar(&withOtel, "otel", false, "Export traces and metrics over OTLP")
}

func runEstimate(ctx context.Context, out io.Writer) error {
	cfg, err := setup.LoadConfig()
	if err != nil {
		return err
	}

	images := make([][]byte, 0, len(estimateImages))
	for _, path := range estimateImages {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read image %s: %w", path, err)
		}
		images = append(images, data)
	}

	app, err := setup.Build(ctx, cfg, setup.Options{DryRun: dryRun})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("Failed to close resources", "error", err)
		}
	}()

	if withOtel {
		_, _, otelShutdown, err := fuelagent.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return err
		}
		defer func() {
			if err := otelShutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()
	}

	result, err := app.Estimator.Estimate(ctx, images, estimateDescription)
	if err != nil && !errors.Is(err, fuelagent.ErrAllPermutationsExhausted) {
		return err
	}
	if err != nil {
		if errors.Is(err, fuelagent.ErrRateLimited) {
			slog.Error("RESULT: Every credential is rate limited, try again later")
		} else {
			slog.Error("RESULT: Estimate failed on every permutation", "error", err)
		}
	}

	if dump {
		fuelagent.Dump(result)
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
