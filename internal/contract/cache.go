package contract

import (
	"context"
	"errors"
	"net/http"

	"github.com/huangsam/offcache/schema"
)

// Sentinel errors returned by cache implementations.
var (
	// ErrCacheMiss is returned when no stored response matches a request.
	ErrCacheMiss = errors.New("no matching cache entry")

	// ErrNotGET is returned when a non-GET request is written to a cache.
	ErrNotGET = errors.New("only GET requests can be cached")
)

// CacheManager defines the interface for reaching the cache storage.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetCacheStorage() CacheStorage
}

// CacheStorage is the origin-scoped set of named caches.
type CacheStorage interface {
	// Open returns the named cache, creating it when missing.
	Open(ctx context.Context, name string) (Cache, error)

	// Has reports whether a cache with this name exists.
	Has(ctx context.Context, name string) (bool, error)

	// Keys lists cache names in creation order.
	Keys(ctx context.Context) ([]string, error)

	// Delete removes the named cache and all of its entries.
	// It reports whether a cache was removed.
	Delete(ctx context.Context, name string) (bool, error)

	// Match looks the request up in every cache, oldest cache first.
	Match(ctx context.Context, req *http.Request) (*schema.StoredResponse, error)

	// Entries describes the stored entries of one cache, or of all caches when name is empty.
	Entries(ctx context.Context, name string) ([]schema.CacheEntryInfo, error)

	// GetStatus returns status information about the storage.
	GetStatus() (schema.CacheStatus, error)

	// Close closes the underlying connection.
	Close() error
}

// Cache is a single named mapping from request identity to stored response.
type Cache interface {
	Name() string

	// Match returns the stored response for req or ErrCacheMiss.
	Match(ctx context.Context, req *http.Request) (*schema.StoredResponse, error)

	// Put stores resp under req, replacing any previous entry.
	Put(ctx context.Context, req *http.Request, resp *schema.StoredResponse) error

	// PutAll stores every response in one transaction; either all are written or none.
	PutAll(ctx context.Context, resps []*schema.StoredResponse) error

	// Delete removes the entry for req and reports whether one existed.
	Delete(ctx context.Context, req *http.Request) (bool, error)

	// Keys lists the URLs stored in the cache.
	Keys(ctx context.Context) ([]string, error)
}
