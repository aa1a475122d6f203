package contract

import (
	"testing"
	"time"

	"github.com/huangsam/offcache/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessAndValidate(t *testing.T) {
	tests := []struct {
		name        string
		input       *ConfigRawInput
		expectError string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name:  "valid minimal config uses defaults",
			input: &ConfigRawInput{Origin: "https://example.com"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://example.com", cfg.Origin.String())
				assert.Equal(t, DefaultCacheName, cfg.CacheName)
				assert.Equal(t, []string{"/", "/index.html"}, cfg.Precache)
				assert.Equal(t, schema.CacheFirst, cfg.Strategy)
				assert.Equal(t, schema.SQLiteBackend, cfg.CacheBackend)
				assert.Equal(t, DefaultListenAddr, cfg.Listen)
				assert.Equal(t, DefaultClientHeader, cfg.ClientHeader)
				assert.Zero(t, cfg.FetchTimeout)
				assert.Equal(t, DefaultClientIdle, cfg.ClientIdle)
				assert.True(t, cfg.UseColors)
			},
		},
		{
			name:  "origin is reduced to scheme and host",
			input: &ConfigRawInput{Origin: "HTTPS://Example.com:8443/blog/?x=1"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://example.com:8443", cfg.Origin.String())
			},
		},
		{
			name:  "default origin port is dropped",
			input: &ConfigRawInput{Origin: "https://example.com:443"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://example.com", cfg.Origin.String())
			},
		},
		{
			name:        "missing origin",
			input:       &ConfigRawInput{},
			expectError: "origin is required",
		},
		{
			name:        "origin without http scheme",
			input:       &ConfigRawInput{Origin: "ftp://example.com"},
			expectError: "origin must use http or https",
		},
		{
			name:        "origin without host",
			input:       &ConfigRawInput{Origin: "https://"},
			expectError: "origin must include a host",
		},
		{
			name:        "invalid strategy",
			input:       &ConfigRawInput{Origin: "https://example.com", Strategy: "stale-while-revalidate"},
			expectError: "invalid strategy",
		},
		{
			name:  "network-first appends the offline page",
			input: &ConfigRawInput{Origin: "https://example.com", Strategy: "Network-First"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, schema.NetworkFirst, cfg.Strategy)
				assert.Equal(t, []string{"/", "/index.html", "/offline.html"}, cfg.Precache)
			},
		},
		{
			name: "network-first keeps an already listed offline page",
			input: &ConfigRawInput{
				Origin:      "https://example.com",
				Strategy:    "network-first",
				Precache:    []string{"/", "/offline.html"},
				OfflinePage: "/offline.html",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"/", "/offline.html"}, cfg.Precache)
			},
		},
		{
			name:        "network-first offline page on another origin",
			input:       &ConfigRawInput{Origin: "https://example.com", Strategy: "network-first", OfflinePage: "https://cdn.example.net/offline.html"},
			expectError: "offline-page",
		},
		{
			name:        "duplicate precache paths",
			input:       &ConfigRawInput{Origin: "https://example.com", Precache: []string{"/index.html", "index.html"}},
			expectError: "duplicate precache path",
		},
		{
			name:        "cross-origin precache path",
			input:       &ConfigRawInput{Origin: "https://example.com", Precache: []string{"https://fonts.googleapis.com/css"}},
			expectError: "is not on origin",
		},
		{
			name:  "empty precache list is allowed",
			input: &ConfigRawInput{Origin: "https://example.com", Precache: []string{}},
			check: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.Precache)
			},
		},
		{
			name:  "blank precache entries are skipped",
			input: &ConfigRawInput{Origin: "https://example.com", Precache: []string{" / ", ""}},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"/"}, cfg.Precache)
			},
		},
		{
			name:  "fetch timeout",
			input: &ConfigRawInput{Origin: "https://example.com", FetchTimeout: "5s"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
			},
		},
		{
			name:        "invalid fetch timeout",
			input:       &ConfigRawInput{Origin: "https://example.com", FetchTimeout: "soon"},
			expectError: "invalid fetch-timeout",
		},
		{
			name:        "negative fetch timeout",
			input:       &ConfigRawInput{Origin: "https://example.com", FetchTimeout: "-1s"},
			expectError: "cannot be negative",
		},
		{
			name:  "client idle",
			input: &ConfigRawInput{Origin: "https://example.com", ClientIdle: "90s"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 90*time.Second, cfg.ClientIdle)
			},
		},
		{
			name:        "invalid client idle",
			input:       &ConfigRawInput{Origin: "https://example.com", ClientIdle: "later"},
			expectError: "invalid client-idle",
		},
		{
			name:        "zero client idle",
			input:       &ConfigRawInput{Origin: "https://example.com", ClientIdle: "0s"},
			expectError: "client-idle must be positive",
		},
		{
			name:        "invalid color",
			input:       &ConfigRawInput{Origin: "https://example.com", Color: "maybe"},
			expectError: "invalid --color value",
		},
		{
			name:        "blank cache name",
			input:       &ConfigRawInput{Origin: "https://example.com", CacheName: "   "},
			expectError: "cache-name cannot be empty",
		},
		{
			name:        "invalid backend",
			input:       &ConfigRawInput{Origin: "https://example.com", CacheBackend: "redis"},
			expectError: "invalid cache backend",
		},
		{
			name:        "mysql backend without connection string",
			input:       &ConfigRawInput{Origin: "https://example.com", CacheBackend: "mysql"},
			expectError: "cache-db-connect is required",
		},
		{
			name:  "none backend",
			input: &ConfigRawInput{Origin: "https://example.com", CacheBackend: "NONE"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, schema.NoneBackend, cfg.CacheBackend)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			err := ProcessAndValidate(cfg, tt.input)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestValidateDatabaseConnectionString(t *testing.T) {
	tests := []struct {
		name    string
		backend schema.DatabaseBackend
		connStr string
		wantErr bool
	}{
		{"sqlite needs nothing", schema.SQLiteBackend, "", false},
		{"none needs nothing", schema.NoneBackend, "", false},
		{"valid mysql", schema.MySQLBackend, "user:pass@tcp(localhost:3306)/offcache", false},
		{"mysql without tcp", schema.MySQLBackend, "user:pass@localhost/offcache", true},
		{"mysql without db", schema.MySQLBackend, "user:pass@tcp(localhost:3306)", true},
		{"valid postgres", schema.PostgreSQLBackend, "host=localhost port=5432 user=postgres dbname=offcache", false},
		{"postgres without host", schema.PostgreSQLBackend, "dbname=offcache", true},
		{"postgres without dbname", schema.PostgreSQLBackend, "host=localhost", true},
		{"postgres empty", schema.PostgreSQLBackend, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDatabaseConnectionString(tt.backend, tt.connStr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigClone(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, ProcessAndValidate(cfg, &ConfigRawInput{Origin: "https://example.com"}))

	clone := cfg.Clone()
	clone.Precache[0] = "/changed"
	clone.Origin.Host = "other.example.com"

	assert.Equal(t, "/", cfg.Precache[0])
	assert.Equal(t, "example.com", cfg.Origin.Host)
}

func TestResolvePath(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, ProcessAndValidate(cfg, &ConfigRawInput{Origin: "https://example.com"}))

	u, err := cfg.ResolvePath("/index.html")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/index.html", u.String())

	u, err = cfg.ResolvePath("static/main.js")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/static/main.js", u.String())
}
