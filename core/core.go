// Package core has the offline cache worker: install, activate and fetch handlers.
package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/schema"
)

// Worker is one version of the offline cache worker. Its version is the cache
// name it owns; everything else in the storage is stale once it activates.
type Worker struct {
	cfg     *contract.Config
	storage contract.CacheStorage
	client  contract.Fetcher
	console *contract.Console

	mu    sync.Mutex
	cache contract.Cache // current cache, opened once
}

var _ contract.LifecycleHandler = &Worker{} // Compile-time check

// NewWorker builds a worker for cfg. The config is copied so later edits by the
// caller never leak into a running worker.
func NewWorker(cfg *contract.Config, storage contract.CacheStorage, client contract.Fetcher, console *contract.Console) *Worker {
	return &Worker{
		cfg:     cfg.Clone(),
		storage: storage,
		client:  client,
		console: console,
	}
}

// CacheName returns the cache this version owns.
func (w *Worker) CacheName() string {
	return w.cfg.CacheName
}

// Strategy returns the fetch strategy.
func (w *Worker) Strategy() schema.Strategy {
	return w.cfg.Strategy
}

// currentCache returns the handle for the cache this version owns, opening it
// on first use. Handles stay valid after a delete since writes re-register the name.
func (w *Worker) currentCache(ctx context.Context) (contract.Cache, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cache != nil {
		return w.cache, nil
	}
	cache, err := w.storage.Open(ctx, w.cfg.CacheName)
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", w.cfg.CacheName, err)
	}
	w.cache = cache
	return cache, nil
}
