//go:build database

package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/internal/iocache"
	"github.com/huangsam/offcache/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startMySQL starts a MySQL container and returns its connection string.
func startMySQL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret123",
			"MYSQL_DATABASE":      "offcache",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(60 * time.Second),
	}
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mysqlC.Terminate(ctx) })

	host, err := mysqlC.Host(ctx)
	require.NoError(t, err)
	port, err := mysqlC.MappedPort(ctx, "3306")
	require.NoError(t, err)

	return fmt.Sprintf("root:secret123@tcp(%s:%s)/offcache?parseTime=true", host, port.Port())
}

// startPostgres starts a PostgreSQL container and returns its connection string.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		// The server logs readiness twice: once for the init run, once for real
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("host=%s port=%s user=postgres dbname=postgres sslmode=disable", host, port.Port())
}

// exerciseStorage runs the cache storage contract against a live database.
func exerciseStorage(t *testing.T, backend schema.DatabaseBackend, connStr string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, iocache.MigrateStorage(backend, connStr, -1))

	storage, err := iocache.NewCacheStorage("offcache", backend, connStr)
	require.NoError(t, err)
	defer func() { _ = storage.Close() }()

	old, err := storage.Open(ctx, "site-v1")
	require.NoError(t, err)
	cache, err := storage.Open(ctx, "site-v2")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "https://example.com/index.html#top", nil)
	require.NoError(t, err)

	page := func(body string) *schema.StoredResponse {
		return &schema.StoredResponse{
			Method: http.MethodGet,
			URL:    "https://example.com/index.html",
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": {"text/html"}},
			Body:   []byte(body),
			Type:   schema.BasicResponse,
		}
	}
	require.NoError(t, old.Put(ctx, req, page("v1")))
	require.NoError(t, cache.PutAll(ctx, []*schema.StoredResponse{page("v2")}))
	require.NoError(t, cache.Put(ctx, req, page("v2 again")))

	got, err := cache.Match(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "v2 again", string(got.Body))
	assert.Equal(t, "text/html", got.Header.Get("Content-Type"))

	// Storage-wide match looks in the oldest cache first
	got, err = storage.Match(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got.Body))

	names, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"site-v1", "site-v2"}, names)

	deleted, err := storage.Delete(ctx, "site-v1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = old.Match(ctx, req)
	require.ErrorIs(t, err, contract.ErrCacheMiss)

	status, err := storage.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, []string{"site-v2"}, status.CacheNames)
	assert.Equal(t, 1, status.TotalEntries)

	require.NoError(t, iocache.ClearStorage(backend, "", connStr))
}

// exerciseCLI runs the worker commands against a live database.
func exerciseCLI(t *testing.T, backend schema.DatabaseBackend, connStr string) {
	t.Helper()
	site := newSite(t)
	env := []string{
		"OFFCACHE_ORIGIN=" + site.URL,
		"OFFCACHE_CACHE_BACKEND=" + string(backend),
		"OFFCACHE_CACHE_DB_CONNECT=" + connStr,
		"OFFCACHE_COLOR=no",
	}

	_, err := runOffcache(t, env, "cache", "clear")
	require.NoError(t, err)

	_, err = runOffcache(t, env, "cache", "migrate")
	require.NoError(t, err)

	out, err := runOffcache(t, env, "precache", "--precache", "/,/app.js")
	require.NoError(t, err)
	assert.Contains(t, out, "holds 2 entries")

	site.Close()
	out, err = runOffcache(t, env, "fetch", "/")
	require.NoError(t, err)
	assert.Equal(t, "<h1>home</h1>", out)

	out, err = runOffcache(t, env, "cache", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Total Entries: 2")
}

// TestOffcacheWithMySQL tests the storage and the CLI with a MySQL backend.
func TestOffcacheWithMySQL(t *testing.T) {
	connStr := startMySQL(t)
	exerciseStorage(t, schema.MySQLBackend, connStr)
	exerciseCLI(t, schema.MySQLBackend, connStr)
}

// TestOffcacheWithPostgres tests the storage and the CLI with a PostgreSQL backend.
func TestOffcacheWithPostgres(t *testing.T) {
	connStr := startPostgres(t)
	exerciseStorage(t, schema.PostgreSQLBackend, connStr)
	exerciseCLI(t, schema.PostgreSQLBackend, connStr)
}
