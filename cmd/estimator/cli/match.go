package main

import (
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"fuelagent"
	"fuelagent/cmd/estimator/setup"
	"fuelagent/llm"

	"github.com/spf13/cobra"
)

var (
	matchTopK       int
	matchCredential string
)

var matchCmd = &cobra.Command{
	Use:   "match <food name>",
	Short: "Show ranked reference candidates for a food name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := setup.LoadConfig()
		if err != nil {
			return err
		}
		app, err := setup.Build(ctx, cfg, setup.Options{DryRun: dryRun, AttemptLogger: fuelagent.NewNoOpAttemptLogger()})
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				slog.Error("Failed to close resources", "error", err)
			}
		}()

		cred := app.Plan.Entries[0].Credential
		for _, e := range app.Plan.Entries {
			if e.Credential.Name == matchCredential {
				cred = e.Credential
			}
		}

		query := strings.Join(args, " ")
		cands, err := app.Matchers(cred).Match(ctx, query, matchTopK)
		if err != nil {
			return err
		}
		if dump {
			fuelagent.Dump(cands)
			return nil
		}
		return printCandidates(cmd, cred, cands)
	},
}

func init() {
	matchCmd.Flags().IntVarP(&matchTopK, "top", "k", 10, "Number of candidates")
	matchCmd.Flags().StringVar(&matchCredential, "credential", "", "Credential used to embed the query (default: first in plan)")
}

func printCandidates(cmd *cobra.Command, cred llm.Credential, cands []fuelagent.Candidate) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SCORE\tID\tNAME\tUNIT\tKCAL\n")
	for _, c := range cands {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\t%.0f\n", c.Score, c.Entry.ID, c.Entry.Name, c.Entry.DefaultUnit, c.Entry.Nutrients.Calories)
	}
	slog.Debug("MATCHER: Printed candidates", "credential", cred.Name, "count", len(cands))
	return w.Flush()
}
