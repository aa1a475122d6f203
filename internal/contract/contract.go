// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"net/http"
)

// Fetcher performs network requests. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// InstallEvent is handed to a worker while it installs.
type InstallEvent interface {
	// SkipWaiting asks the host to activate the worker as soon as it is installed,
	// even while clients are still controlled by an older version.
	SkipWaiting()
}

// ActivateEvent is handed to a worker while it activates.
type ActivateEvent interface {
	// Claim makes every open client controlled by the activating worker.
	Claim(ctx context.Context) error
}

// LifecycleHandler is the dispatch table a host drives: one method per lifecycle event.
type LifecycleHandler interface {
	// Install runs once per worker version. A returned error keeps the version from activating.
	Install(ctx context.Context, ev InstallEvent) error

	// Activate runs once when the version takes over.
	Activate(ctx context.Context, ev ActivateEvent) error

	// Fetch handles one request from a controlled client. When intercepted is false
	// the host applies its default handling and the response is ignored.
	Fetch(ctx context.Context, req *http.Request) (resp *http.Response, intercepted bool, err error)
}
