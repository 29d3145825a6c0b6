package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Loads the graph, restores the publish index and serves pages over HTTP.
Admin routes live under /admin and Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}
		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			cfg.Graph.Watch = true
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := cli.Build(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(context.Background()); err != nil {
				logger.Error("shutdown failed", "err", err)
			}
		}()
		if err := app.Start(ctx); err != nil {
			return err
		}

		if stderrIsTerminal() {
			tui.PrintBanner(os.Stderr, strings.TrimSpace(arbor.Version))
		}
		return cli.Serve(ctx, app, cfg.HTTP.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides http.addr)")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload the graph when its source changes")
}
