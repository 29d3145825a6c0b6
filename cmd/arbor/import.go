package main

import (
	"fmt"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/pkg/adapters/sqlite"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <dsn>",
	Short: "Copy the configured graph into a SQLite database",
	Long:  `Reads the graph from the configured source and replaces the definition tables of the SQLite database at dsn.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		loader, closer, err := cli.NewLoader(cfg.Graph)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
		def, err := loader.Load(cmd.Context())
		if err != nil {
			return err
		}

		db, err := sqlite.Open(args[0])
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Import(cmd.Context(), def); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d states, %d groups\n", len(def.States), len(def.Groups))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
