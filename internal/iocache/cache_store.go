// Package iocache persists named response caches.
package iocache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/schema"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// entryColumns are the columns needed to rebuild a stored response, in scan order.
var entryColumns = []string{"method", "url", "status", "status_text", "headers", "body", "response_type", "stored_at"}

// CacheStorageImpl handles durable storage of named caches using various database backends.
type CacheStorageImpl struct {
	db           *sql.DB
	cachesTable  string
	entriesTable string
	backend      schema.DatabaseBackend
	connStr      string
}

var _ contract.CacheStorage = &CacheStorageImpl{} // Compile-time check

// NewCacheStorage initializes and returns a new CacheStorage based on the backend type.
// Tables are named <tablePrefix>_caches and <tablePrefix>_entries.
func NewCacheStorage(tablePrefix string, backend schema.DatabaseBackend, connStr string) (*CacheStorageImpl, error) {
	// Validate table prefix to prevent SQL injection
	if err := validateTableName(tablePrefix); err != nil {
		return nil, err
	}

	ps := &CacheStorageImpl{
		cachesTable:  tablePrefix + "_caches",
		entriesTable: tablePrefix + "_entries",
		backend:      backend,
		connStr:      connStr,
	}

	if backend == schema.NoneBackend {
		// No-op storage for disabled caching
		return ps, nil
	}

	db, err := openDatabase(backend, connStr)
	if err != nil {
		return nil, err
	}

	for _, query := range getCreateTableQueries(ps.cachesTable, ps.entriesTable, backend) {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create cache tables: %w", err)
		}
	}

	ps.db = db
	return ps, nil
}

// getCreateTableQueries returns the CREATE TABLE queries for the given backend.
// They are run one at a time since MySQL rejects multi-statement Exec calls by default.
func getCreateTableQueries(cachesTable, entriesTable string, backend schema.DatabaseBackend) []string {
	caches := quoteTableName(cachesTable, backend)
	entries := quoteTableName(entriesTable, backend)
	switch backend {
	case schema.MySQLBackend:
		return []string{
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					cache_name VARCHAR(191) PRIMARY KEY,
					created_at BIGINT NOT NULL
				);`, caches),
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					cache_name VARCHAR(191) NOT NULL,
					request_key VARCHAR(512) NOT NULL,
					method VARCHAR(16) NOT NULL,
					url TEXT NOT NULL,
					status INT NOT NULL,
					status_text VARCHAR(255) NOT NULL,
					headers MEDIUMTEXT NOT NULL,
					body LONGBLOB,
					response_type VARCHAR(16) NOT NULL,
					stored_at BIGINT NOT NULL,
					PRIMARY KEY (cache_name, request_key)
				);`, entries),
		}

	case schema.PostgreSQLBackend:
		return []string{
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					cache_name TEXT PRIMARY KEY,
					created_at BIGINT NOT NULL
				);`, caches),
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					cache_name TEXT NOT NULL,
					request_key TEXT NOT NULL,
					method TEXT NOT NULL,
					url TEXT NOT NULL,
					status INTEGER NOT NULL,
					status_text TEXT NOT NULL,
					headers TEXT NOT NULL,
					body BYTEA,
					response_type TEXT NOT NULL,
					stored_at BIGINT NOT NULL,
					PRIMARY KEY (cache_name, request_key)
				);`, entries),
		}

	default: // SQLite
		return []string{
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					cache_name TEXT PRIMARY KEY,
					created_at INTEGER NOT NULL
				);`, caches),
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					cache_name TEXT NOT NULL,
					request_key TEXT NOT NULL,
					method TEXT NOT NULL,
					url TEXT NOT NULL,
					status INTEGER NOT NULL,
					status_text TEXT NOT NULL,
					headers TEXT NOT NULL,
					body BLOB,
					response_type TEXT NOT NULL,
					stored_at INTEGER NOT NULL,
					PRIMARY KEY (cache_name, request_key)
				);`, entries),
		}
	}
}

// disabled reports whether the storage discards everything.
func (ps *CacheStorageImpl) disabled() bool {
	return ps.backend == schema.NoneBackend || ps.db == nil
}

// q quotes a table name and rebinds placeholders for this backend.
func (ps *CacheStorageImpl) q(format string, tables ...any) string {
	return rebind(fmt.Sprintf(format, tables...), ps.backend)
}

func (ps *CacheStorageImpl) caches() string  { return quoteTableName(ps.cachesTable, ps.backend) }
func (ps *CacheStorageImpl) entries() string { return quoteTableName(ps.entriesTable, ps.backend) }

// getEnsureCacheQuery returns the insert-if-missing query for a cache name.
func (ps *CacheStorageImpl) getEnsureCacheQuery() string {
	switch ps.backend {
	case schema.MySQLBackend:
		return ps.q(`INSERT IGNORE INTO %s (cache_name, created_at) VALUES (?, ?)`, ps.caches())
	case schema.PostgreSQLBackend:
		return ps.q(`INSERT INTO %s (cache_name, created_at) VALUES (?, ?) ON CONFLICT (cache_name) DO NOTHING`, ps.caches())
	default: // SQLite
		return ps.q(`INSERT OR IGNORE INTO %s (cache_name, created_at) VALUES (?, ?)`, ps.caches())
	}
}

// getUpsertEntryQuery returns the UPSERT query for an entry.
func (ps *CacheStorageImpl) getUpsertEntryQuery() string {
	cols := "cache_name, request_key, " + strings.Join(entryColumns, ", ")
	values := "?, ?, ?, ?, ?, ?, ?, ?, ?, ?"
	switch ps.backend {
	case schema.MySQLBackend:
		return ps.q(`INSERT INTO %s (`+cols+`) VALUES (`+values+`) AS new
			ON DUPLICATE KEY UPDATE method = new.method, url = new.url, status = new.status, status_text = new.status_text,
			headers = new.headers, body = new.body, response_type = new.response_type, stored_at = new.stored_at`, ps.entries())

	case schema.PostgreSQLBackend:
		return ps.q(`INSERT INTO %s (`+cols+`) VALUES (`+values+`)
			ON CONFLICT (cache_name, request_key) DO UPDATE SET method = EXCLUDED.method, url = EXCLUDED.url,
			status = EXCLUDED.status, status_text = EXCLUDED.status_text, headers = EXCLUDED.headers, body = EXCLUDED.body,
			response_type = EXCLUDED.response_type, stored_at = EXCLUDED.stored_at`, ps.entries())

	default: // SQLite
		return ps.q(`INSERT OR REPLACE INTO %s (`+cols+`) VALUES (`+values+`)`, ps.entries())
	}
}

// Open returns the named cache, creating it when missing.
func (ps *CacheStorageImpl) Open(ctx context.Context, name string) (contract.Cache, error) {
	if name == "" {
		return nil, fmt.Errorf("cache name cannot be empty")
	}
	if ps.disabled() {
		return &namedCache{store: ps, name: name}, nil
	}
	if _, err := ps.db.ExecContext(ctx, ps.getEnsureCacheQuery(), name, time.Now().UnixNano()); err != nil {
		return nil, fmt.Errorf("failed to open cache %q: %w", name, err)
	}
	return &namedCache{store: ps, name: name}, nil
}

// Has reports whether a cache with this name exists.
func (ps *CacheStorageImpl) Has(ctx context.Context, name string) (bool, error) {
	if ps.disabled() {
		return false, nil
	}
	var count int
	row := ps.db.QueryRowContext(ctx, ps.q(`SELECT COUNT(*) FROM %s WHERE cache_name = ?`, ps.caches()), name)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to look up cache %q: %w", name, err)
	}
	return count > 0, nil
}

// Keys lists cache names in creation order.
func (ps *CacheStorageImpl) Keys(ctx context.Context) ([]string, error) {
	if ps.disabled() {
		return nil, nil
	}
	rows, err := ps.db.QueryContext(ctx, ps.q(`SELECT cache_name FROM %s ORDER BY created_at, cache_name`, ps.caches()))
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan cache name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes the named cache and all of its entries.
func (ps *CacheStorageImpl) Delete(ctx context.Context, name string) (bool, error) {
	if ps.disabled() {
		return false, nil
	}

	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, ps.q(`DELETE FROM %s WHERE cache_name = ?`, ps.entries()), name); err != nil {
		return false, fmt.Errorf("failed to delete entries of cache %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, ps.q(`DELETE FROM %s WHERE cache_name = ?`, ps.caches()), name)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted caches: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit cache deletion: %w", err)
	}
	return affected > 0, nil
}

// Match looks the request up in every cache, oldest cache first.
func (ps *CacheStorageImpl) Match(ctx context.Context, req *http.Request) (*schema.StoredResponse, error) {
	if ps.disabled() {
		return nil, contract.ErrCacheMiss
	}
	cols := make([]string, len(entryColumns))
	for i, c := range entryColumns {
		cols[i] = "e." + c
	}
	query := ps.q(`SELECT `+strings.Join(cols, ", ")+` FROM %s e JOIN %s c ON c.cache_name = e.cache_name
		WHERE e.request_key = ? ORDER BY c.created_at, c.cache_name LIMIT 1`, ps.entries(), ps.caches())
	return scanStoredResponse(ps.db.QueryRowContext(ctx, query, requestKey(req)))
}

// Entries describes the stored entries of one cache, or of all caches when name is empty.
func (ps *CacheStorageImpl) Entries(ctx context.Context, name string) ([]schema.CacheEntryInfo, error) {
	if ps.disabled() {
		return nil, nil
	}

	query := `SELECT cache_name, method, url, status, response_type, COALESCE(LENGTH(body), 0), stored_at FROM %s`
	var args []any
	if name != "" {
		query += ` WHERE cache_name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY cache_name, url`

	rows, err := ps.db.QueryContext(ctx, ps.q(query, ps.entries()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []schema.CacheEntryInfo
	for rows.Next() {
		var (
			info     schema.CacheEntryInfo
			typ      string
			storedAt int64
		)
		if err := rows.Scan(&info.CacheName, &info.Method, &info.URL, &info.Status, &typ, &info.BodyBytes, &storedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		info.Type = schema.ResponseType(typ)
		info.StoredAt = time.Unix(0, storedAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close closes the underlying DB connection.
func (ps *CacheStorageImpl) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

// GetStatus returns status information about the cache storage.
func (ps *CacheStorageImpl) GetStatus() (schema.CacheStatus, error) {
	status := schema.CacheStatus{
		Backend:   string(ps.backend),
		Connected: ps.db != nil,
	}

	if ps.disabled() {
		return status, nil
	}

	names, err := ps.Keys(context.Background())
	if err != nil {
		return status, err
	}
	status.CacheNames = names

	// Get total entries
	row := ps.db.QueryRow(ps.q("SELECT COUNT(*) FROM %s", ps.entries()))
	if err := row.Scan(&status.TotalEntries); err != nil {
		return status, fmt.Errorf("failed to get total entries: %w", err)
	}

	if status.TotalEntries > 0 {
		var lastTs, oldestTs int64
		row = ps.db.QueryRow(ps.q("SELECT MAX(stored_at), MIN(stored_at) FROM %s", ps.entries()))
		if err := row.Scan(&lastTs, &oldestTs); err != nil {
			return status, fmt.Errorf("failed to get entry times: %w", err)
		}
		status.LastEntryTime = time.Unix(0, lastTs)
		status.OldestEntryTime = time.Unix(0, oldestTs)
	}

	// Estimate storage size (approximate)
	switch ps.backend {
	case schema.SQLiteBackend:
		sizeQuery := "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()"
		if err := ps.db.QueryRow(sizeQuery).Scan(&status.TableSizeBytes); err != nil {
			status.TableSizeBytes = 0
		}
	case schema.MySQLBackend:
		// Fallback rough estimate if information_schema query fails
		status.TableSizeBytes = int64(status.TotalEntries) * 1000

		cfg, err := mysql.ParseDSN(ps.connStr)
		if err != nil || cfg.DBName == "" {
			break
		}
		sizeQuery := "SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = ? AND table_name IN (?, ?)"
		if err := ps.db.QueryRow(sizeQuery, cfg.DBName, ps.cachesTable, ps.entriesTable).Scan(&status.TableSizeBytes); err != nil {
			status.TableSizeBytes = int64(status.TotalEntries) * 1000
		}
	case schema.PostgreSQLBackend:
		sizeQuery := "SELECT pg_total_relation_size($1) + pg_total_relation_size($2)"
		if err := ps.db.QueryRow(sizeQuery, ps.cachesTable, ps.entriesTable).Scan(&status.TableSizeBytes); err != nil {
			status.TableSizeBytes = int64(status.TotalEntries) * 1000 // Fallback rough estimate
		}
	}

	return status, nil
}

// requestKey returns the cache identity of req.
func requestKey(req *http.Request) string {
	return schema.RequestKey(req.Method, req.URL.String())
}

// scanStoredResponse rebuilds a response from a row selected with entryColumns.
func scanStoredResponse(row *sql.Row) (*schema.StoredResponse, error) {
	var (
		resp     schema.StoredResponse
		headers  string
		typ      string
		storedAt int64
	)
	err := row.Scan(&resp.Method, &resp.URL, &resp.Status, &resp.StatusText, &headers, &resp.Body, &typ, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contract.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(headers), &resp.Header); err != nil {
		return nil, fmt.Errorf("failed to decode cached headers: %w", err)
	}
	resp.Type = schema.ResponseType(typ)
	resp.StoredAt = time.Unix(0, storedAt)
	return &resp, nil
}
