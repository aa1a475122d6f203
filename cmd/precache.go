package cmd

import (
	"fmt"

	"github.com/huangsam/offcache/core/host"
	"github.com/spf13/cobra"
)

// precacheCmd installs and activates the worker without serving traffic.
var precacheCmd = &cobra.Command{
	Use:   "precache",
	Short: "Install the worker and fill the current cache",
	Long: `Run the install and activate handlers once.

Install fetches every --precache path and stores all of them, or none when any
fetch fails. Activate then deletes every cache whose name is not --cache-name.

Examples:
  # Precache the default paths (/ and /index.html)
  offcache precache --origin https://example.com

  # Roll out a new cache generation
  offcache precache --origin https://example.com --cache-name sai-web-pwa-v1.1 --precache /,/index.html,/app.js`,
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		console := newConsole()
		w, err := newWorker(console)
		if err != nil {
			return err
		}

		reg := host.NewRegistration(host.NewClients(), console)
		v, err := reg.Register(rootCtx, w)
		if err != nil {
			return err
		}

		cache, err := cacheManager.GetCacheStorage().Open(rootCtx, cfg.CacheName)
		if err != nil {
			return fmt.Errorf("open cache %q: %w", cfg.CacheName, err)
		}
		keys, err := cache.Keys(rootCtx)
		if err != nil {
			return err
		}

		cmd.Printf("Worker %d is %s. Cache %s holds %d entries:\n", v.ID, v.State(), cfg.CacheName, len(keys))
		for _, k := range keys {
			cmd.Printf("  %s\n", k)
		}
		return nil
	},
}
