package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var errInvalidGraph = errors.New("graph has skipped items or unreachable states")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the graph for consistency",
	Long:  `Builds the graph, reports skipped items and crawls from every start state to find unreachable states.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		res, err := cli.Validate(cmd.Context(), cfg.Graph, logger)
		if err != nil {
			return err
		}
		out, err := tui.NewRenderer(stdoutIsTerminal())(cli.FormatValidation(res))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		if !res.OK() {
			return errInvalidGraph
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
