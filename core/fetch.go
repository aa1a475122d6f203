package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/schema"
)

// Fetch answers a request from a controlled client. Requests that are not GET
// or that leave the worker origin are not intercepted.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*http.Response, bool, error) {
	if req.Method != http.MethodGet || !schema.SameOrigin(req.URL, w.cfg.Origin) {
		return nil, false, nil
	}

	var (
		resp *http.Response
		err  error
	)
	switch w.cfg.Strategy {
	case schema.NetworkFirst:
		resp, err = w.networkFirst(ctx, req)
	default:
		resp, err = w.cacheFirst(ctx, req)
	}
	return resp, true, err
}

// cacheFirst serves from the current cache and populates it on a miss.
// Only 200 basic responses are written back. There is no offline fallback.
func (w *Worker) cacheFirst(ctx context.Context, req *http.Request) (*http.Response, error) {
	cache, err := w.currentCache(ctx)
	if err != nil {
		w.console.Error("Fetching failed", err)
		return nil, err
	}

	stored, err := cache.Match(ctx, req)
	if err == nil {
		return stored.HTTPResponse(req), nil
	}
	if !errors.Is(err, contract.ErrCacheMiss) {
		w.console.Error("Fetching failed", err)
		return nil, err
	}

	resp, err := w.network(ctx, req)
	if err != nil {
		w.console.Error("Fetching failed", err)
		return nil, err
	}

	typ := responseType(resp, req.URL, w.cfg.Origin)
	if resp.StatusCode != http.StatusOK || typ != schema.BasicResponse {
		return resp, nil
	}

	// The body is a single-use stream: buffer once, cache one copy, return the other.
	stored, err = cloneResponse(req, resp, typ)
	if err != nil {
		w.console.Error("Fetching failed", err)
		return nil, err
	}

	// The write back outlives the client, so it ignores the request's cancellation.
	if err := cache.Put(context.WithoutCancel(ctx), req, stored); err != nil {
		w.console.Error("Caching response failed", err)
	}
	return resp, nil
}

// networkFirst returns the network response verbatim and leaves the cache
// alone. Only a failed fetch consults the cache, for the offline page.
func (w *Worker) networkFirst(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, fetchErr := w.network(ctx, req)
	if fetchErr == nil {
		return resp, nil
	}

	offline, err := w.matchOfflinePage(ctx)
	if err != nil {
		return nil, errors.Join(fetchErr, err)
	}
	return offline.HTTPResponse(req), nil
}

func (w *Worker) matchOfflinePage(ctx context.Context) (*schema.StoredResponse, error) {
	u, err := w.cfg.ResolvePath(w.cfg.OfflinePage)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build offline page request: %w", err)
	}

	cache, err := w.currentCache(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := cache.Match(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("offline page %s: %w", u, err)
	}
	return stored, nil
}

// network sends a copy of req to the network client.
func (w *Worker) network(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	resp, err := w.client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	return resp, nil
}
