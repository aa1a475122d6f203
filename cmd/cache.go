package cmd

import (
	"fmt"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/internal/iocache"
	"github.com/huangsam/offcache/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheConfigSetup loads the storage settings without opening the storage.
// Clear and migrate use it so they can run against a missing or fresh database.
func cacheConfigSetup() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	// Get cache-related config values
	backend := schema.DatabaseBackend(viper.GetString("cache-backend"))
	connStr := viper.GetString("cache-db-connect")

	// Basic validation for database backends
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	cfg.CacheBackend = backend
	cfg.CacheDBConnect = connStr
	cfg.CacheName = viper.GetString("cache-name")
	cfg.OutputFile = viper.GetString("output-file")
	return nil
}

// cacheSetup loads minimal configuration needed for cache operations.
// This is used by commands that need cache access without full shared setup.
func cacheSetup() error {
	if err := cacheConfigSetup(); err != nil {
		return err
	}
	if err := iocache.InitStorage(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	return nil
}

// cacheSetupWrapper wraps cacheSetup to provide PreRunE for cache commands.
func cacheSetupWrapper(_ *cobra.Command, _ []string) error {
	return cacheSetup()
}

// cacheConfigSetupWrapper wraps cacheConfigSetup to provide PreRunE for clear and migrate.
func cacheConfigSetupWrapper(_ *cobra.Command, _ []string) error {
	return cacheConfigSetup()
}

// sqliteFilePath returns the SQLite file behind the configured storage.
func sqliteFilePath() string {
	if cfg.CacheDBConnect != "" {
		return cfg.CacheDBConnect
	}
	return iocache.GetDBFilePath()
}

// cacheCmd focused on cache management.
//
// Note: Cache subcommands use minimal initialization (cacheSetup) instead of
// the full sharedSetup used by worker commands. No origin is needed to look at
// or prune stored caches.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the named caches",
	Long: `Inspect and manage the named caches the worker reads and writes.

Supported backends: SQLite (default), MySQL, PostgreSQL, or None (caching disabled)

Subcommands:
  status  - Show storage statistics and connection info
  list    - List stored entries
  delete  - Delete one named cache
  clear   - Remove all caches
  export  - Export entry metadata to Parquet
  migrate - Run database schema migrations

Examples:
  # Check cache status
  offcache cache status

  # Drop an old generation by hand
  offcache cache delete sai-web-pwa-v0.9`,
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics and connection details",
	Long: `Show detailed information about the cache storage.

Displays:
- Backend type and connection status
- Cache names in creation order
- Total number of stored entries
- Last and oldest entry timestamps
- Storage size

Examples:
  # Check cache status
  offcache cache status`,
	PreRunE: cacheSetupWrapper,
	Run: func(cmd *cobra.Command, _ []string) {
		status, err := cacheManager.GetCacheStorage().GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get cache status", err)
		}
		iocache.PrintCacheStatus(cmd.OutOrStdout(), status)
	},
}

// cacheListCmd lists stored entries.
var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the entries of the current cache",
	Long: `List stored entries without their bodies.

By default only the cache named by --cache-name is listed; --all lists every cache.

Examples:
  offcache cache list
  offcache cache list --all`,
	PreRunE: cacheSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name := cfg.CacheName
		if viper.GetBool("all") {
			name = ""
		}
		entries, err := cacheManager.GetCacheStorage().Entries(rootCtx, name)
		if err != nil {
			return fmt.Errorf("failed to list cache entries: %w", err)
		}
		return iocache.PrintCacheEntries(cmd.OutOrStdout(), entries)
	},
}

// cacheDeleteCmd deletes one named cache.
var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <cache-name>",
	Short: "Delete one named cache and its entries",
	Long: `Delete a single cache by name, as the activate handler does for stale caches.

Examples:
  offcache cache delete sai-web-pwa-v0.9`,
	Args:    cobra.ExactArgs(1),
	PreRunE: cacheSetupWrapper,
	RunE: func(cmd *cobra.Command, args []string) error {
		deleted, err := cacheManager.GetCacheStorage().Delete(rootCtx, args[0])
		if err != nil {
			return fmt.Errorf("failed to delete cache %q: %w", args[0], err)
		}
		if !deleted {
			cmd.Printf("No cache named %s.\n", args[0])
			return nil
		}
		cmd.Printf("Deleted cache: %s\n", args[0])
		return nil
	},
}

// cacheClearCmd clears the storage.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all caches",
	Long: `Delete every cache from the configured backend.

For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the cache tables and migration history

Examples:
  # Clear SQLite storage (default)
  offcache cache clear

  # Clear MySQL storage (set connection string via env variable)
  OFFCACHE_CACHE_BACKEND=mysql OFFCACHE_CACHE_DB_CONNECT="..." offcache cache clear`,
	PreRunE: cacheConfigSetupWrapper,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := iocache.ClearStorage(cfg.CacheBackend, sqliteFilePath(), cfg.CacheDBConnect); err != nil {
			contract.LogFatal("Failed to clear cache", err)
		}
		cmd.Println("Cache cleared successfully.")
	},
}

// cacheExportCmd exports entry metadata to Parquet.
var cacheExportCmd = &cobra.Command{
	Use:   "export [cache-name]",
	Short: "Export cache entry metadata to a Parquet file",
	Long: `Write one row per stored entry (cache, method, URL, status, type, body size,
stored time) to a Parquet file. Bodies are not exported.

Examples:
  # Export every cache
  offcache cache export --output-file entries.parquet

  # Export one cache
  offcache cache export sai-web-pwa-v1.0 --output-file current.parquet`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: cacheSetupWrapper,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return iocache.ExecuteCacheExport(rootCtx, cmd.OutOrStdout(), cacheManager.GetCacheStorage(), name, cfg.OutputFile)
	},
}

// cacheMigrateCmd runs schema migrations.
var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations for the cache tables",
	Long: `Apply or roll back the cache table migrations.

--target-version -1 migrates to the latest version, 0 rolls everything back,
and any other value migrates up or down to that version.

Examples:
  offcache cache migrate
  offcache cache migrate --target-version 1`,
	PreRunE: cacheConfigSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		connStr := cfg.CacheDBConnect
		if cfg.CacheBackend == schema.SQLiteBackend {
			connStr = sqliteFilePath()
		}
		if err := iocache.MigrateStorage(cfg.CacheBackend, connStr, viper.GetInt("target-version")); err != nil {
			contract.LogFatal("Failed to migrate cache storage", err)
		}
	},
}
