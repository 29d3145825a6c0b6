package main

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the persisted publish index",
	Long: `Operates on the publish index persisted for this server. A running server
only reads the index at start; use the /admin/cache routes to act on it live.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show publish index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := cli.Build(cfg, logger)
		if err != nil {
			return err
		}
		// Never started, so Close leaves the stored index untouched.
		defer app.Close(context.Background())

		stats, err := cli.IndexStats(cmd.Context(), app)
		if err != nil {
			return err
		}
		out, err := tui.NewRenderer(stdoutIsTerminal())(cli.FormatStats(stats))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var cacheResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop publish records",
	Long:  `Drops the given keys, or every record of a site, or the whole index when neither is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		site, _ := cmd.Flags().GetString("site")
		keys, _ := cmd.Flags().GetStringSlice("key")
		return withApp(cmd, func(app *cli.App) error {
			removed := app.Controller.ResetCache(site, keys...)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records\n", removed)
			return nil
		})
	},
}

// withApp starts an app for the duration of fn and persists the index on return.
// The start sweeps expired records.
func withApp(cmd *cobra.Command, fn func(*cli.App) error) (err error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := cli.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := app.Start(cmd.Context()); err != nil {
		return err
	}
	return fn(app)
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheResetCmd)
	cacheResetCmd.Flags().String("site", "", "Only drop records of this site")
	cacheResetCmd.Flags().StringSlice("key", nil, "Cache keys to drop (repeatable or comma separated)")
}
