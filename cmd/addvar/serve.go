package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	var (
		addr  string
		build bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				o.cfg.Server.Addr = addr
			}
			svc, err := newService(o.cfg, o.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if build {
				buildAtStartup(ctx, o, svc)
			}
			return svc.api.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&build, "build", false, "build the index from the store before serving")
	return cmd
}

// buildAtStartup logs a failed build instead of refusing to serve; /v1/map
// falls back to keyword ranking until a build succeeds.
func buildAtStartup(ctx context.Context, o *rootOptions, svc *service) {
	stats, err := svc.api.BuildIndex(ctx)
	if err != nil {
		o.logger.Warn("startup index build failed", "err", err)
		return
	}
	o.logger.Info("startup index built", "items", stats.Len, "backend", stats.Backend)
}
