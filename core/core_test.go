package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/internal/iocache"
	"github.com/huangsam/offcache/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeEvent records the scope calls a worker makes.
type fakeEvent struct {
	skipped  atomic.Bool
	claims   atomic.Int32
	claimErr error
}

func (e *fakeEvent) SkipWaiting() { e.skipped.Store(true) }

func (e *fakeEvent) Claim(context.Context) error {
	e.claims.Add(1)
	return e.claimErr
}

// fetcherFunc adapts a function to contract.Fetcher.
type fetcherFunc func(*http.Request) (*http.Response, error)

func (f fetcherFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

var errOffline = errors.New("dial tcp: network is unreachable")

func offlineFetcher() contract.Fetcher {
	return fetcherFunc(func(*http.Request) (*http.Response, error) { return nil, errOffline })
}

// testOrigin is an origin server that counts the requests it receives.
type testOrigin struct {
	*httptest.Server
	hits atomic.Int32
}

func newTestOrigin(t *testing.T) *testOrigin {
	t.Helper()
	o := &testOrigin{}
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.hits.Add(1)
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/error":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, "page "+r.URL.Path)
		}
	}))
	t.Cleanup(o.Close)
	return o
}

type workerFixture struct {
	origin  *testOrigin
	cfg     *contract.Config
	storage contract.CacheStorage
	logs    *bytes.Buffer
	worker  *Worker
}

func newFixture(t *testing.T, input *contract.ConfigRawInput) *workerFixture {
	t.Helper()
	origin := newTestOrigin(t)

	input.Origin = origin.URL
	cfg := &contract.Config{}
	require.NoError(t, contract.ProcessAndValidate(cfg, input))

	storage, err := iocache.NewCacheStorage("offcache", schema.SQLiteBackend, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	logs := &bytes.Buffer{}
	return &workerFixture{
		origin:  origin,
		cfg:     cfg,
		storage: storage,
		logs:    logs,
		worker:  NewWorker(cfg, storage, origin.Client(), contract.NewConsole(logs, false)),
	}
}

// withFetcher returns a worker sharing the fixture's config and storage but using f.
func (fx *workerFixture) withFetcher(f contract.Fetcher) *Worker {
	return NewWorker(fx.cfg, fx.storage, f, contract.NewConsole(fx.logs, false))
}

func (fx *workerFixture) get(t *testing.T, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, fx.origin.URL+path, nil)
	require.NoError(t, err)
	return req
}

func (fx *workerFixture) cacheKeys(t *testing.T) []string {
	t.Helper()
	cache, err := fx.storage.Open(context.Background(), fx.cfg.CacheName)
	require.NoError(t, err)
	keys, err := cache.Keys(context.Background())
	require.NoError(t, err)
	return keys
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestInstall(t *testing.T) {
	ctx := context.Background()

	t.Run("precaches every path", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		ev := &fakeEvent{}

		require.NoError(t, fx.worker.Install(ctx, ev))

		assert.Equal(t, []string{fx.origin.URL + "/", fx.origin.URL + "/index.html"}, fx.cacheKeys(t))
		assert.True(t, ev.skipped.Load())
		assert.Contains(t, fx.logs.String(), "[log] Opened cache and added static assets")
	})

	t.Run("one bad status stores nothing", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{Precache: []string{"/", "/missing", "/index.html"}})
		ev := &fakeEvent{}

		err := fx.worker.Install(ctx, ev)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")

		assert.Empty(t, fx.cacheKeys(t))
		assert.True(t, ev.skipped.Load(), "skip waiting is requested regardless")
		assert.Contains(t, fx.logs.String(), "[error] Service worker installation failed")
	})

	t.Run("network failure stores nothing", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		w := fx.withFetcher(offlineFetcher())

		err := w.Install(ctx, &fakeEvent{})
		assert.ErrorIs(t, err, errOffline)
		assert.Empty(t, fx.cacheKeys(t))
	})

	t.Run("empty precache list succeeds", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{Precache: []string{}})

		require.NoError(t, fx.worker.Install(ctx, &fakeEvent{}))
		assert.Empty(t, fx.cacheKeys(t))
		assert.Zero(t, fx.origin.hits.Load())
	})

	t.Run("storage failure is reported", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		storage := &iocache.MockCacheStorage{}
		storage.On("Open", ctx, fx.cfg.CacheName).Return(nil, errors.New("disk full"))
		w := NewWorker(fx.cfg, storage, fx.origin.Client(), nil)

		err := w.Install(ctx, &fakeEvent{})
		assert.ErrorContains(t, err, "disk full")
		storage.AssertExpectations(t)
	})
}

func TestActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps only the current cache and claims", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{CacheName: "sai-web-pwa-v1.1"})
		for _, name := range []string{"sai-web-pwa-v0.9", "sai-web-pwa-v1.0"} {
			old, err := fx.storage.Open(ctx, name)
			require.NoError(t, err)
			require.NoError(t, old.Put(ctx, fx.get(t, "/"), &schema.StoredResponse{Status: 200, Type: schema.BasicResponse}))
		}
		require.NoError(t, fx.worker.Install(ctx, &fakeEvent{}))

		ev := &fakeEvent{}
		require.NoError(t, fx.worker.Activate(ctx, ev))

		names, err := fx.storage.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"sai-web-pwa-v1.1"}, names)
		assert.Equal(t, int32(1), ev.claims.Load())
		assert.Contains(t, fx.logs.String(), "[log] Deleting old cache: sai-web-pwa-v0.9")
		assert.Contains(t, fx.logs.String(), "[log] Deleting old cache: sai-web-pwa-v1.0")
		assert.Len(t, fx.cacheKeys(t), 2, "current cache is untouched")
	})

	t.Run("nothing to delete", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		ev := &fakeEvent{}
		require.NoError(t, fx.worker.Activate(ctx, ev))
		assert.Equal(t, int32(1), ev.claims.Load())
	})

	t.Run("deletions are independent", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		storage := &iocache.MockCacheStorage{}
		storage.On("Keys", ctx).Return([]string{"v0", "v0.5", fx.cfg.CacheName}, nil)
		storage.On("Delete", ctx, "v0").Return(false, errors.New("locked"))
		storage.On("Delete", ctx, "v0.5").Return(true, nil)
		w := NewWorker(fx.cfg, storage, fx.origin.Client(), contract.NewConsole(fx.logs, false))

		ev := &fakeEvent{}
		err := w.Activate(ctx, ev)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `delete cache "v0": locked`)
		assert.NotContains(t, err.Error(), "v0.5")
		assert.Equal(t, int32(1), ev.claims.Load(), "claim still runs")
		storage.AssertExpectations(t)
		storage.AssertNotCalled(t, "Delete", ctx, fx.cfg.CacheName)
	})

	t.Run("claim failure is reported", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		ev := &fakeEvent{claimErr: errors.New("no clients api")}
		err := fx.worker.Activate(ctx, ev)
		assert.ErrorContains(t, err, "claim clients: no clients api")
	})

	t.Run("listing failure still claims", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		storage := &iocache.MockCacheStorage{}
		storage.On("Keys", ctx).Return(nil, errors.New("gone"))
		w := NewWorker(fx.cfg, storage, fx.origin.Client(), nil)

		ev := &fakeEvent{}
		assert.ErrorContains(t, w.Activate(ctx, ev), "list caches: gone")
		assert.Equal(t, int32(1), ev.claims.Load())
	})
}

func TestFetchIgnoredRequests(t *testing.T) {
	ctx := context.Background()

	for _, strategy := range []string{"cache-first", "network-first"} {
		t.Run(strategy, func(t *testing.T) {
			fx := newFixture(t, &contract.ConfigRawInput{Strategy: strategy})

			post, err := http.NewRequest(http.MethodPost, fx.origin.URL+"/form", nil)
			require.NoError(t, err)
			resp, intercepted, err := fx.worker.Fetch(ctx, post)
			assert.NoError(t, err)
			assert.False(t, intercepted)
			assert.Nil(t, resp)

			external, err := http.NewRequest(http.MethodGet, "https://fonts.googleapis.com/css", nil)
			require.NoError(t, err)
			_, intercepted, err = fx.worker.Fetch(ctx, external)
			assert.NoError(t, err)
			assert.False(t, intercepted)

			assert.Zero(t, fx.origin.hits.Load())
			assert.Empty(t, fx.cacheKeys(t))
		})
	}
}

func TestFetchCacheFirst(t *testing.T) {
	ctx := context.Background()

	t.Run("hit needs no network", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		require.NoError(t, fx.worker.Install(ctx, &fakeEvent{}))
		before := fx.origin.hits.Load()

		resp, intercepted, err := fx.worker.Fetch(ctx, fx.get(t, "/index.html"))
		require.NoError(t, err)
		assert.True(t, intercepted)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "page /index.html", readBody(t, resp))
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Equal(t, before, fx.origin.hits.Load())
	})

	t.Run("miss fetches once and populates", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})

		resp, intercepted, err := fx.worker.Fetch(ctx, fx.get(t, "/about"))
		require.NoError(t, err)
		assert.True(t, intercepted)
		assert.Equal(t, "page /about", readBody(t, resp))
		assert.Equal(t, int32(1), fx.origin.hits.Load())

		resp, _, err = fx.worker.Fetch(ctx, fx.get(t, "/about"))
		require.NoError(t, err)
		assert.Equal(t, "page /about", readBody(t, resp))
		assert.Equal(t, int32(1), fx.origin.hits.Load(), "second request is served from cache")
	})

	t.Run("non-200 is returned but not cached", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})

		for range 2 {
			resp, _, err := fx.worker.Fetch(ctx, fx.get(t, "/missing"))
			require.NoError(t, err)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			_ = resp.Body.Close()
		}
		assert.Equal(t, int32(2), fx.origin.hits.Load())
		assert.Empty(t, fx.cacheKeys(t))
	})

	t.Run("network failure has no fallback", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		w := fx.withFetcher(offlineFetcher())

		resp, intercepted, err := w.Fetch(ctx, fx.get(t, "/about"))
		assert.True(t, intercepted)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, errOffline)
		assert.Contains(t, fx.logs.String(), "[error] Fetching failed")
	})

	t.Run("opaque responses are not cached", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "elsewhere")
		}))
		defer other.Close()

		// The origin answers with content fetched from another host after a redirect.
		redirecting := fetcherFunc(func(*http.Request) (*http.Response, error) {
			moved, err := http.NewRequest(http.MethodGet, other.URL+"/landing", nil)
			if err != nil {
				return nil, err
			}
			return other.Client().Do(moved)
		})
		w := fx.withFetcher(redirecting)

		resp, _, err := w.Fetch(ctx, fx.get(t, "/go"))
		require.NoError(t, err)
		assert.Equal(t, "elsewhere", readBody(t, resp))
		assert.Empty(t, fx.cacheKeys(t))
	})

	t.Run("failed write back still answers", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		cache := &iocache.MockCache{}
		storage := &iocache.MockCacheStorage{}
		storage.On("Open", ctx, fx.cfg.CacheName).Return(cache, nil)
		cache.On("Match", ctx, mock.Anything).Return(nil, contract.ErrCacheMiss)
		cache.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("read-only"))
		w := NewWorker(fx.cfg, storage, fx.origin.Client(), contract.NewConsole(fx.logs, false))

		resp, _, err := w.Fetch(ctx, fx.get(t, "/about"))
		require.NoError(t, err)
		assert.Equal(t, "page /about", readBody(t, resp))
		assert.Contains(t, fx.logs.String(), "[error] Caching response failed: read-only")
		cache.AssertExpectations(t)
	})

	t.Run("cache is opened once per worker", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})
		cache := &iocache.MockCache{}
		storage := &iocache.MockCacheStorage{}
		storage.On("Open", ctx, fx.cfg.CacheName).Return(cache, nil).Once()
		cache.On("Match", ctx, mock.Anything).Return(&schema.StoredResponse{
			Method: http.MethodGet,
			URL:    fx.origin.URL + "/",
			Status: http.StatusOK,
			Body:   []byte("stored"),
			Type:   schema.BasicResponse,
		}, nil)
		w := NewWorker(fx.cfg, storage, fx.origin.Client(), contract.NewConsole(fx.logs, false))

		for range 3 {
			resp, _, err := w.Fetch(ctx, fx.get(t, "/"))
			require.NoError(t, err)
			assert.Equal(t, "stored", readBody(t, resp))
		}
		storage.AssertNumberOfCalls(t, "Open", 1)
		assert.Equal(t, int32(0), fx.origin.hits.Load())
	})

	t.Run("write back recreates a deleted cache", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{})

		resp, _, err := fx.worker.Fetch(ctx, fx.get(t, "/about"))
		require.NoError(t, err)
		_ = resp.Body.Close()

		deleted, err := fx.storage.Delete(ctx, fx.cfg.CacheName)
		require.NoError(t, err)
		require.True(t, deleted)

		resp, _, err = fx.worker.Fetch(ctx, fx.get(t, "/about"))
		require.NoError(t, err)
		assert.Equal(t, "page /about", readBody(t, resp))
		assert.Equal(t, int32(2), fx.origin.hits.Load())

		has, err := fx.storage.Has(ctx, fx.cfg.CacheName)
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("default port shares keys with the bare host", func(t *testing.T) {
		cfg := &contract.Config{}
		require.NoError(t, contract.ProcessAndValidate(cfg, &contract.ConfigRawInput{Origin: "http://example.com:80"}))
		storage, err := iocache.NewCacheStorage("offcache", schema.SQLiteBackend, filepath.Join(t.TempDir(), "cache.db"))
		require.NoError(t, err)
		defer func() { _ = storage.Close() }()

		var calls atomic.Int32
		fetcher := fetcherFunc(func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{},
				Body:       io.NopCloser(bytes.NewBufferString("page " + req.URL.Path)),
				Request:    req,
			}, nil
		})
		w := NewWorker(cfg, storage, fetcher, contract.NewConsole(&bytes.Buffer{}, false))
		require.NoError(t, w.Install(ctx, &fakeEvent{}))
		installed := calls.Load()

		for _, target := range []string{"http://example.com/index.html", "http://example.com:80/index.html"} {
			req, err := http.NewRequest(http.MethodGet, target, nil)
			require.NoError(t, err)
			resp, intercepted, err := w.Fetch(ctx, req)
			require.NoError(t, err)
			assert.True(t, intercepted)
			assert.Equal(t, "page /index.html", readBody(t, resp))
		}
		assert.Equal(t, installed, calls.Load(), "precached URL is served without the network")

		cache, err := storage.Open(ctx, cfg.CacheName)
		require.NoError(t, err)
		keys, err := cache.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"http://example.com/", "http://example.com/index.html"}, keys)
	})
}

func TestFetchNetworkFirst(t *testing.T) {
	ctx := context.Background()

	t.Run("success is verbatim and leaves the cache alone", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{Strategy: "network-first"})
		require.NoError(t, fx.worker.Install(ctx, &fakeEvent{}))
		keys := fx.cacheKeys(t)

		resp, intercepted, err := fx.worker.Fetch(ctx, fx.get(t, "/about"))
		require.NoError(t, err)
		assert.True(t, intercepted)
		assert.Equal(t, "page /about", readBody(t, resp))
		assert.Equal(t, keys, fx.cacheKeys(t))

		// Error statuses are still network successes
		resp, _, err = fx.worker.Fetch(ctx, fx.get(t, "/error"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("failure serves the offline page", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{Strategy: "network-first"})
		require.NoError(t, fx.worker.Install(ctx, &fakeEvent{}))
		assert.Contains(t, fx.cacheKeys(t), fx.origin.URL+"/offline.html")

		w := fx.withFetcher(offlineFetcher())
		resp, intercepted, err := w.Fetch(ctx, fx.get(t, "/blog/post-1"))
		require.NoError(t, err)
		assert.True(t, intercepted)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "page /offline.html", readBody(t, resp))
	})

	t.Run("failure without an offline page", func(t *testing.T) {
		fx := newFixture(t, &contract.ConfigRawInput{Strategy: "network-first"})
		w := fx.withFetcher(offlineFetcher())

		resp, intercepted, err := w.Fetch(ctx, fx.get(t, "/"))
		assert.True(t, intercepted)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, errOffline)
		assert.ErrorIs(t, err, contract.ErrCacheMiss)
	})
}
