// Package cmd defines the command-line interface for offcache.
package cmd

import (
	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(precacheCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
	cacheCmd.AddCommand(cacheExportCmd)
	cacheCmd.AddCommand(cacheMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("origin", "", "Origin the worker serves (e.g., https://example.com)")
	rootCmd.PersistentFlags().String("cache-name", contract.DefaultCacheName, "Name of the current cache generation")
	rootCmd.PersistentFlags().StringSlice("precache", contract.DefaultPrecache, "Comma-separated list of paths cached on install")
	rootCmd.PersistentFlags().String("strategy", string(schema.CacheFirst), "Fetch strategy: cache-first or network-first")
	rootCmd.PersistentFlags().String("offline-page", contract.DefaultOfflinePage, "Page served by network-first when the network fails")
	rootCmd.PersistentFlags().String("fetch-timeout", "", "Timeout for network fetches (e.g., 10s); empty means none")
	rootCmd.PersistentFlags().String("cache-backend", string(schema.SQLiteBackend), "Cache backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of serveCmd to Viper
	serveCmd.Flags().String("listen", contract.DefaultListenAddr, "Address the caching proxy listens on")
	serveCmd.Flags().String("client-header", contract.DefaultClientHeader, "Request header that identifies a client page")
	serveCmd.Flags().String("client-idle", contract.DefaultClientIdle.String(), "Close clients not seen for this long (e.g., 30m)")
	if err := viper.BindPFlags(serveCmd.Flags()); err != nil {
		contract.LogFatal("Error binding serve flags", err)
	}

	// Bind all flags of fetchCmd to Viper
	fetchCmd.Flags().Bool("include", false, "Print the response status line and headers before the body")
	if err := viper.BindPFlags(fetchCmd.Flags()); err != nil {
		contract.LogFatal("Error binding fetch flags", err)
	}

	// Bind all flags of cacheListCmd to Viper
	cacheListCmd.Flags().Bool("all", false, "List entries of every cache, not only the current one")
	if err := viper.BindPFlags(cacheListCmd.Flags()); err != nil {
		contract.LogFatal("Error binding cache list flags", err)
	}

	// Bind all flags of cacheMigrateCmd to Viper
	cacheMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(cacheMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding cache migrate flags", err)
	}
}
