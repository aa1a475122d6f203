package contract

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/huangsam/offcache/schema"
)

// Default values for configuration.
const (
	DefaultCacheName    = "sai-web-pwa-v1.0"
	DefaultOfflinePage  = "/offline.html"
	DefaultListenAddr   = ":8080"
	DefaultClientHeader = "X-Offcache-Client"
	DefaultClientIdle   = 30 * time.Minute
)

// DefaultPrecache is the list of paths cached on install when none is configured.
var DefaultPrecache = []string{"/", "/index.html"}

// Config holds the runtime configuration for the worker and its host.
// This struct remains the "final, validated" config and is never mutated after startup.
type Config struct {
	Origin      *url.URL
	CacheName   string
	Precache    []string // Paths resolved against Origin at install time
	Strategy    schema.Strategy
	OfflinePage string

	Listen       string
	ClientHeader string
	FetchTimeout time.Duration // 0 means no timeout
	ClientIdle   time.Duration // Clients not seen for this long are closed

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	OutputFile string
	UseColors  bool // Enable colored labels in console output
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Worker identity ---
	Origin      string   `mapstructure:"origin"`
	CacheName   string   `mapstructure:"cache-name"`
	Precache    []string `mapstructure:"precache"`
	Strategy    string   `mapstructure:"strategy"`
	OfflinePage string   `mapstructure:"offline-page"`

	// --- Host ---
	Listen       string `mapstructure:"listen"`
	ClientHeader string `mapstructure:"client-header"`
	FetchTimeout string `mapstructure:"fetch-timeout"`
	ClientIdle   string `mapstructure:"client-idle"`

	// --- Storage ---
	CacheBackend   string `mapstructure:"cache-backend"`
	CacheDBConnect string `mapstructure:"cache-db-connect"`

	// --- Output ---
	OutputFile string `mapstructure:"output-file"`
	Color      string `mapstructure:"color"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Origin != nil {
		origin := *c.Origin
		clone.Origin = &origin
	}
	clone.Precache = slices.Clone(c.Precache)
	return &clone
}

// ResolvePath resolves a configured path against the worker origin.
func (c *Config) ResolvePath(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	return c.Origin.ResolveReference(ref), nil
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processOrigin(cfg, input); err != nil {
		return err
	}
	if err := processPrecache(cfg, input); err != nil {
		return err
	}
	if err := validateBackendConfigs(cfg, input); err != nil {
		return err
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("cache-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("cache-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateBackendConfigs validates the cache backend configuration.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = schema.SQLiteBackend
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	return ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect)
}

// validateSimpleInputs processes and validates all fields that need no resolution.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile

	// Parse color flag
	colors, err := ParseBoolString(defaultString(input.Color, "yes"))
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	cfg.CacheName = strings.TrimSpace(defaultString(input.CacheName, DefaultCacheName))
	if cfg.CacheName == "" {
		return fmt.Errorf("cache-name cannot be empty")
	}

	cfg.Strategy = schema.Strategy(strings.ToLower(defaultString(input.Strategy, string(schema.CacheFirst))))
	if _, ok := schema.ValidStrategies[cfg.Strategy]; !ok {
		return fmt.Errorf("invalid strategy '%s'. must be cache-first, network-first", input.Strategy)
	}

	cfg.OfflinePage = defaultString(input.OfflinePage, DefaultOfflinePage)
	cfg.Listen = defaultString(input.Listen, DefaultListenAddr)
	cfg.ClientHeader = defaultString(input.ClientHeader, DefaultClientHeader)

	cfg.FetchTimeout = 0
	if input.FetchTimeout != "" {
		timeout, err := time.ParseDuration(input.FetchTimeout)
		if err != nil {
			return fmt.Errorf("invalid fetch-timeout %q: %w", input.FetchTimeout, err)
		}
		if timeout < 0 {
			return fmt.Errorf("fetch-timeout cannot be negative (received %s)", timeout)
		}
		cfg.FetchTimeout = timeout
	}

	cfg.ClientIdle = DefaultClientIdle
	if input.ClientIdle != "" {
		idle, err := time.ParseDuration(input.ClientIdle)
		if err != nil {
			return fmt.Errorf("invalid client-idle %q: %w", input.ClientIdle, err)
		}
		if idle <= 0 {
			return fmt.Errorf("client-idle must be positive (received %s)", idle)
		}
		cfg.ClientIdle = idle
	}

	return nil
}

// processOrigin parses the origin and reduces it to scheme and host.
func processOrigin(cfg *Config, input *ConfigRawInput) error {
	if input.Origin == "" {
		return fmt.Errorf("origin is required (e.g. --origin https://example.com)")
	}
	u, err := url.Parse(input.Origin)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", input.Origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must use http or https (received %q)", input.Origin)
	}
	if u.Host == "" {
		return fmt.Errorf("origin must include a host (received %q)", input.Origin)
	}
	cfg.Origin = schema.Origin(u)
	return nil
}

// processPrecache validates the precache list. Duplicate paths are rejected since
// a bulk add cannot store the same request twice. For network-first, the offline
// page is appended so it is available when the network is not.
func processPrecache(cfg *Config, input *ConfigRawInput) error {
	paths := input.Precache
	if paths == nil {
		paths = DefaultPrecache
	}

	seen := make(map[string]struct{}, len(paths))
	cfg.Precache = make([]string, 0, len(paths)+1)
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		resolved, err := cfg.ResolvePath(p)
		if err != nil {
			return err
		}
		if !schema.SameOrigin(resolved, cfg.Origin) {
			return fmt.Errorf("precache path %q is not on origin %s", p, cfg.Origin)
		}
		key := schema.NormalizeURL(resolved.String())
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate precache path %q", p)
		}
		seen[key] = struct{}{}
		cfg.Precache = append(cfg.Precache, p)
	}

	if cfg.Strategy == schema.NetworkFirst {
		offline, err := cfg.ResolvePath(cfg.OfflinePage)
		if err != nil {
			return fmt.Errorf("invalid offline-page: %w", err)
		}
		if !schema.SameOrigin(offline, cfg.Origin) {
			return fmt.Errorf("offline-page %q is not on origin %s", cfg.OfflinePage, cfg.Origin)
		}
		if _, ok := seen[schema.NormalizeURL(offline.String())]; !ok {
			cfg.Precache = append(cfg.Precache, cfg.OfflinePage)
		}
	}

	return nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
