package main

import (
	"fmt"

	"fuelagent/reference"
	"fuelagent/reference/storage"

	"github.com/spf13/cobra"
)

var importDB string

var importCmd = &cobra.Command{
	Use:   "import <snapshot.json>",
	Short: "Load a JSON reference snapshot into the SQLite dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		src, err := reference.LoadSnapshot(ctx, storage.NewFileSource(args[0]))
		if err != nil {
			return err
		}

		db, err := reference.NewSQLiteCatalog(importDB)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := reference.Import(ctx, db, src)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries into %s\n", n, importDB)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importDB, "db", "calorie_tracker.db", "SQLite dataset path")
}
