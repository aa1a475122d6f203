package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/huangsam/offcache/core/host"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// serveCmd runs the worker as a caching proxy in front of the origin.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker as a local caching proxy",
	Long: `Install and activate the worker, then serve HTTP on --listen.

Each request is a fetch event. Pages are told apart by the client header
(X-Offcache-Client by default) or by remote address. A page comes under
worker control on its first navigation after activation, or when the worker
claims it; requests from other pages go straight to the origin. Pages not
seen for --client-idle are closed, which lets a waiting worker take over.

Examples:
  # Serve https://example.com on :8080 with cache-first
  offcache serve --origin https://example.com

  # Network-first with an offline page
  offcache serve --origin https://example.com --strategy network-first --offline-page /offline.html`,
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		console := newConsole()
		dispatcher, reg, err := startHost(ctx, console)
		if err != nil {
			return err
		}

		cache := "none"
		if reg.Controller() != nil {
			cache = cfg.CacheName
		}
		cmd.PrintErrf("Serving %s on %s (strategy %s, cache %s)\n", cfg.Origin, cfg.Listen, cfg.Strategy, cache)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			reg.WatchClients(gctx, cfg.ClientIdle)
			return nil
		})
		g.Go(func() error {
			return host.ListenAndServe(gctx, cfg.Listen, dispatcher)
		})
		return g.Wait()
	},
}
