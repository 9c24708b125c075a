package main

import (
	"fmt"
	"log/slog"

	"fuelagent/cmd/estimator/setup"

	"github.com/spf13/cobra"
)

var rotationCmd = &cobra.Command{
	Use:   "rotation",
	Short: "Inspect or reset the persisted rotation flag",
}

var rotationShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the next starting credential and the permutation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, closeApp, err := buildRotationApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp()

		idx, err := app.Store.Get(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "next start: %d of %d credentials\n", idx, app.Plan.Size())
		for i, t := range app.Plan.Permutations(idx) {
			fmt.Fprintf(out, "%2d. %s\n", i+1, t)
		}
		return nil
	},
}

var rotationResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the rotation flag to the first credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, closeApp, err := buildRotationApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp()

		if err := app.Store.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "rotation flag reset")
		return nil
	},
}

func init() {
	rotationCmd.AddCommand(rotationShowCmd, rotationResetCmd)
}

func buildRotationApp(cmd *cobra.Command) (*setup.App, func(), error) {
	cfg, err := setup.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	app, err := setup.Build(cmd.Context(), cfg, setup.Options{DryRun: true})
	if err != nil {
		return nil, nil, err
	}
	return app, func() {
		if err := app.Close(); err != nil {
			slog.Error("Failed to close resources", "error", err)
		}
	}, nil
}
