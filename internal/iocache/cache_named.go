package iocache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/schema"
)

// namedCache is a view of one cache inside a CacheStorageImpl.
type namedCache struct {
	store *CacheStorageImpl
	name  string
}

var _ contract.Cache = &namedCache{} // Compile-time check

// Name returns the cache name.
func (c *namedCache) Name() string {
	return c.name
}

// Match returns the stored response for req or contract.ErrCacheMiss.
func (c *namedCache) Match(ctx context.Context, req *http.Request) (*schema.StoredResponse, error) {
	if c.store.disabled() {
		return nil, contract.ErrCacheMiss
	}
	query := c.store.q(`SELECT method, url, status, status_text, headers, body, response_type, stored_at
		FROM %s WHERE cache_name = ? AND request_key = ?`, c.store.entries())
	return scanStoredResponse(c.store.db.QueryRowContext(ctx, query, c.name, requestKey(req)))
}

// Put stores resp under req, replacing any previous entry.
func (c *namedCache) Put(ctx context.Context, req *http.Request, resp *schema.StoredResponse) error {
	if req.Method != http.MethodGet {
		return fmt.Errorf("put %s %s: %w", req.Method, req.URL, contract.ErrNotGET)
	}
	if c.store.disabled() {
		return nil
	}
	return c.write(ctx, []*schema.StoredResponse{bindRequest(req, resp)})
}

// PutAll stores every response in one transaction.
func (c *namedCache) PutAll(ctx context.Context, resps []*schema.StoredResponse) error {
	for _, r := range resps {
		if r.Method != http.MethodGet {
			return fmt.Errorf("put %s %s: %w", r.Method, r.URL, contract.ErrNotGET)
		}
	}
	if c.store.disabled() || len(resps) == 0 {
		return nil
	}
	return c.write(ctx, resps)
}

// write upserts the responses and re-registers the cache name in one transaction,
// so a cache deleted after Open never keeps orphaned entries.
func (c *namedCache) write(ctx context.Context, resps []*schema.StoredResponse) error {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, c.store.getEnsureCacheQuery(), c.name, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to register cache %q: %w", c.name, err)
	}

	stmt, err := tx.PrepareContext(ctx, c.store.getUpsertEntryQuery())
	if err != nil {
		return fmt.Errorf("failed to prepare cache write: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range resps {
		if err := c.upsert(ctx, stmt, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache write: %w", err)
	}
	return nil
}

func (c *namedCache) upsert(ctx context.Context, stmt *sql.Stmt, r *schema.StoredResponse) error {
	headers, err := json.Marshal(r.Header)
	if err != nil {
		return fmt.Errorf("failed to encode headers for %s: %w", r.URL, err)
	}
	storedAt := r.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	statusText := r.StatusText
	if statusText == "" {
		statusText = http.StatusText(r.Status)
	}
	_, err = stmt.ExecContext(ctx,
		c.name, r.Key(),
		r.Method, schema.NormalizeURL(r.URL), r.Status, statusText,
		string(headers), r.Body, string(r.Type), storedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s in cache %q: %w", r.URL, c.name, err)
	}
	return nil
}

// Delete removes the entry for req and reports whether one existed.
func (c *namedCache) Delete(ctx context.Context, req *http.Request) (bool, error) {
	if c.store.disabled() {
		return false, nil
	}
	res, err := c.store.db.ExecContext(ctx,
		c.store.q(`DELETE FROM %s WHERE cache_name = ? AND request_key = ?`, c.store.entries()),
		c.name, requestKey(req))
	if err != nil {
		return false, fmt.Errorf("failed to delete %s from cache %q: %w", req.URL, c.name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted entries: %w", err)
	}
	return affected > 0, nil
}

// Keys lists the URLs stored in the cache.
func (c *namedCache) Keys(ctx context.Context) ([]string, error) {
	if c.store.disabled() {
		return nil, nil
	}
	rows, err := c.store.db.QueryContext(ctx,
		c.store.q(`SELECT url FROM %s WHERE cache_name = ? ORDER BY url`, c.store.entries()), c.name)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys of cache %q: %w", c.name, err)
	}
	defer func() { _ = rows.Close() }()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// bindRequest returns a copy of resp keyed by req.
func bindRequest(req *http.Request, resp *schema.StoredResponse) *schema.StoredResponse {
	bound := *resp
	bound.Method = req.Method
	bound.URL = req.URL.String()
	return &bound
}
