package core

import (
	"context"
	"fmt"
	"net/http"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/schema"
	"golang.org/x/sync/errgroup"
)

// Install precaches the configured paths into the current cache, all or nothing.
// It asks to skip waiting whether or not precaching succeeds.
func (w *Worker) Install(ctx context.Context, ev contract.InstallEvent) error {
	defer ev.SkipWaiting()

	if err := w.precache(ctx); err != nil {
		w.console.Error("Service worker installation failed", err)
		return err
	}
	return nil
}

func (w *Worker) precache(ctx context.Context) error {
	cache, err := w.storage.Open(ctx, w.cfg.CacheName)
	if err != nil {
		return fmt.Errorf("open cache %q: %w", w.cfg.CacheName, err)
	}
	w.mu.Lock()
	w.cache = cache
	w.mu.Unlock()
	w.console.Log("Opened cache and added static assets")
	return w.addAll(ctx, cache, w.cfg.Precache)
}

// addAll fetches every path concurrently and stores the responses in one write.
// Any transport error or non-2xx status fails the batch before anything is stored.
func (w *Worker) addAll(ctx context.Context, cache contract.Cache, paths []string) error {
	resps := make([]*schema.StoredResponse, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			stored, err := w.fetchForCache(gctx, path)
			if err != nil {
				return err
			}
			resps[i] = stored
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := cache.PutAll(ctx, resps); err != nil {
		return fmt.Errorf("store precached responses: %w", err)
	}
	return nil
}

// fetchForCache fetches one precache path and buffers the response.
func (w *Worker) fetchForCache(ctx context.Context, path string) (*schema.StoredResponse, error) {
	u, err := w.cfg.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", u, err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", u, resp.Status)
	}

	return bufferResponse(req, resp, responseType(resp, req.URL, w.cfg.Origin))
}
