package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/listing-refresher/internal/dashboard"
	"github.com/xkilldash9x/listing-refresher/internal/observability"
)

func newServeCmd() *cobra.Command {
	var idle bool

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot continuously alongside the dashboard API",
		Long: `Serve runs bot cycles on the refresh interval until interrupted. When
dashboard.enabled is set the HTTP API is served on dashboard.addr and can
start, stop and inspect the bot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if idle && !cfg.Dashboard.Enabled {
				return errors.New("--idle requires dashboard.enabled; nothing could start the bot")
			}

			components, err := componentFactory.Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize bot: %w", err)
			}
			defer components.Shutdown()

			g, gctx := errgroup.WithContext(ctx)

			if !idle {
				if err := components.Scheduler.Start(gctx); err != nil {
					return err
				}
			}

			if cfg.Dashboard.Enabled {
				srv := dashboard.New(gctx, cfg.Dashboard, components.Store, components.Scheduler, logger)
				g.Go(func() error { return srv.ListenAndServe(gctx) })
			}

			g.Go(func() error {
				<-gctx.Done()
				components.Scheduler.Stop()
				components.Scheduler.Wait()
				return nil
			})

			logger.Info("Refresher serving.", zap.Bool("dashboard", cfg.Dashboard.Enabled), zap.Bool("bot_running", !idle))
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Refresher stopped.")
			return nil
		},
	}

	serveCmd.Flags().BoolVar(&idle, "idle", false, "serve the dashboard without starting the bot")
	return serveCmd
}
