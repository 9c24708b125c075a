package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	dryRun  bool
	verbose bool
	dump    bool
)

var rootCmd = &cobra.Command{
	Use:   "estimator",
	Short: "Estimate meal calories and macros from photos and descriptions",
	Long: `estimator runs the meal estimation pipeline locally.

Commands:
  estimate   Estimate a meal from images and/or a description
  match      Show reference candidates for a food name
  rotation   Inspect or reset the persisted credential rotation flag
  import     Load a JSON reference snapshot into the SQLite dataset`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Use the scripted demo model instead of a real provider")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&dump, "dump", false, "Dump results with go-spew instead of JSON")

	rootCmd.AddCommand(estimateCmd, matchCmd, rotationCmd, importCmd)
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("SETUP: No .env file loaded", "error", err)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
