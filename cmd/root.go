package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/huangsam/offcache/core"
	"github.com/huangsam/offcache/core/host"
	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/internal/iocache"
	"github.com/huangsam/offcache/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// All linker flags will be set by goreleaser infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg will hold the validated, final configuration.
var cfg = &contract.Config{}

// input holds the raw, unvalidated configuration from all sources (file, env, flags).
// Viper will unmarshal into this struct.
var input = &contract.ConfigRawInput{}

// cacheManager is the global cache storage manager instance.
var cacheManager contract.CacheManager = iocache.Manager

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:   "offcache",
	Short: "Run an offline cache worker in front of a web origin.",
	Long: `Offcache precaches the static assets of a site, drops stale cache generations,
and answers requests from its cache when the network is gone.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Set environment variable prefix
	viper.SetEnvPrefix("OFFCACHE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // Read in environment variables that match

	// Set defaults in Viper
	viper.SetDefault("cache-name", contract.DefaultCacheName)
	viper.SetDefault("precache", contract.DefaultPrecache)
	viper.SetDefault("strategy", schema.CacheFirst)
	viper.SetDefault("offline-page", contract.DefaultOfflinePage)
	viper.SetDefault("listen", contract.DefaultListenAddr)
	viper.SetDefault("client-header", contract.DefaultClientHeader)
	viper.SetDefault("client-idle", contract.DefaultClientIdle.String())
	viper.SetDefault("cache-backend", schema.SQLiteBackend)
	viper.SetDefault("cache-db-connect", "")
	viper.SetDefault("color", "yes")
}

// loadConfigFile handles config file loading logic common to all setup functions.
func loadConfigFile() error {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName(".offcache") // Name of config file (without extension)
		viper.SetConfigType("yaml")      // We'll use YAML format
		viper.AddConfigPath(".")         // Look in the current directory
		viper.AddConfigPath("$HOME")     // Look in the home directory
	}

	// Load config file if present
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, which is fine; we'll use defaults/env/flags.
	}
	return nil
}

// sharedSetup unmarshals config, runs validation and opens the cache storage.
func sharedSetup(_ context.Context, _ *cobra.Command, _ []string) error {
	// 1. Read config file. This merges defaults, file, env, and flags.
	if err := loadConfigFile(); err != nil {
		return err
	}

	// 2. Unmarshal all resolved values from Viper into our raw input struct.
	if err := viper.Unmarshal(input); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	// 3. Run all validation and complex parsing.
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}

	// 4. Initialize the cache storage with validated config
	if err := iocache.InitStorage(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return fmt.Errorf("failed to initialize cache storage: %w", err)
	}

	return nil
}

// sharedSetupWrapper wraps sharedSetup to provide context for Cobra's PreRunE.
func sharedSetupWrapper(cmd *cobra.Command, args []string) error {
	return sharedSetup(rootCtx, cmd, args)
}

// newConsole returns the worker console on stderr.
func newConsole() *contract.Console {
	return contract.NewConsole(os.Stderr, contract.ShouldUseColor(cfg.UseColors, os.Stderr))
}

// newWorker builds the offline cache worker from the validated config.
func newWorker(console *contract.Console) (*core.Worker, error) {
	storage := cacheManager.GetCacheStorage()
	if storage == nil {
		return nil, fmt.Errorf("cache storage is not initialized")
	}
	return core.NewWorker(cfg, storage, host.NewWorkerClient(cfg.FetchTimeout), console), nil
}

// startHost registers a worker and returns a dispatcher in front of it.
// A failed install leaves the dispatcher with no worker, so traffic goes
// straight to the network.
func startHost(ctx context.Context, console *contract.Console) (*host.Dispatcher, *host.Registration, error) {
	w, err := newWorker(console)
	if err != nil {
		return nil, nil, err
	}

	reg := host.NewRegistration(host.NewClients(), console)
	if _, err := reg.Register(ctx, w); err != nil {
		contract.LogWarn("Worker not installed, serving from the network", err)
	}
	return host.NewDispatcher(cfg, reg, host.NewPassthroughClient(cfg.FetchTimeout), console), reg, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetCacheManager sets the global cache manager.
func SetCacheManager(mgr contract.CacheManager) {
	cacheManager = mgr
}
