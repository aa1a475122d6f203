// Package host runs offline cache workers: it drives their lifecycle and turns
// proxied HTTP traffic into fetch events.
package host

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/schema"
)

// Version is one registered worker and its lifecycle state.
type Version struct {
	ID      int
	Handler contract.LifecycleHandler

	mu    sync.RWMutex
	state schema.WorkerState
}

// State returns the lifecycle state of the version.
func (v *Version) State() schema.WorkerState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

func (v *Version) setState(state schema.WorkerState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
}

// Registration holds the installing, waiting and active versions of the worker
// for one origin. Lifecycle jobs run one at a time.
type Registration struct {
	jobs sync.Mutex

	mu         sync.RWMutex
	installing *Version
	waiting    *Version
	active     *Version
	nextID     int

	clients *Clients
	console *contract.Console
}

// NewRegistration returns an empty registration over clients.
func NewRegistration(clients *Clients, console *contract.Console) *Registration {
	return &Registration{clients: clients, console: console}
}

// Clients returns the client registry.
func (r *Registration) Clients() *Clients {
	return r.clients
}

// Register installs h as a new version. A failed install makes the version
// redundant. A successful one activates at once when it asked to skip waiting,
// when nothing is active yet, or when no client is controlled; otherwise it
// waits for the controlled clients to close.
func (r *Registration) Register(ctx context.Context, h contract.LifecycleHandler) (*Version, error) {
	r.jobs.Lock()
	defer r.jobs.Unlock()

	r.mu.Lock()
	r.nextID++
	v := &Version{ID: r.nextID, Handler: h, state: schema.StateParsed}
	r.installing = v
	r.mu.Unlock()

	v.setState(schema.StateInstalling)
	ev := &installEvent{}
	if err := h.Install(ctx, ev); err != nil {
		r.mu.Lock()
		r.installing = nil
		r.mu.Unlock()
		v.setState(schema.StateRedundant)
		return v, fmt.Errorf("install worker %d: %w", v.ID, err)
	}

	r.mu.Lock()
	r.installing = nil
	if r.waiting != nil {
		r.waiting.setState(schema.StateRedundant)
	}
	r.waiting = v
	hasActive := r.active != nil
	r.mu.Unlock()
	v.setState(schema.StateInstalled)

	if ev.skipWaiting.Load() || !hasActive || r.clients.ControlledCount() == 0 {
		r.activateWaiting(ctx)
	}
	return v, nil
}

// ClientClosed forgets a client. When it was the last controlled client, a
// waiting version takes over.
func (r *Registration) ClientClosed(ctx context.Context, id string) {
	r.jobs.Lock()
	defer r.jobs.Unlock()

	r.clients.Remove(id)
	if r.clients.ControlledCount() == 0 {
		r.activateWaiting(ctx)
	}
}

// ExpireIdleClients closes every client not seen within idle and returns how
// many were closed.
func (r *Registration) ExpireIdleClients(ctx context.Context, idle time.Duration) int {
	ids := r.clients.Idle(idle)
	for _, id := range ids {
		r.ClientClosed(ctx, id)
	}
	return len(ids)
}

// WatchClients expires idle clients every idle/2 until ctx is done.
func (r *Registration) WatchClients(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(max(idle/2, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ExpireIdleClients(ctx, idle)
		}
	}
}

// activateWaiting promotes the waiting version and runs its activate handler.
// Callers hold r.jobs.
func (r *Registration) activateWaiting(ctx context.Context) {
	r.mu.Lock()
	v := r.waiting
	if v == nil {
		r.mu.Unlock()
		return
	}
	if r.active != nil {
		r.active.setState(schema.StateRedundant)
	}
	r.waiting = nil
	r.active = v
	r.mu.Unlock()

	v.setState(schema.StateActivating)
	if err := v.Handler.Activate(ctx, &activateEvent{clients: r.clients}); err != nil {
		r.console.Error("Service worker activation failed", err)
	}
	v.setState(schema.StateActivated)
}

// Controller returns the version that handles fetch events, or nil while no
// version has finished activating.
func (r *Registration) Controller() *Version {
	r.mu.RLock()
	v := r.active
	r.mu.RUnlock()
	if v == nil || v.State() != schema.StateActivated {
		return nil
	}
	return v
}

// Versions returns the installing, waiting and active versions. Any may be nil.
func (r *Registration) Versions() (installing, waiting, active *Version) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.installing, r.waiting, r.active
}

// installEvent records a skip-waiting request.
type installEvent struct {
	skipWaiting atomic.Bool
}

var _ contract.InstallEvent = &installEvent{} // Compile-time check

func (e *installEvent) SkipWaiting() {
	e.skipWaiting.Store(true)
}

// activateEvent lets the activating version claim every known client.
type activateEvent struct {
	clients *Clients
}

var _ contract.ActivateEvent = &activateEvent{} // Compile-time check

func (e *activateEvent) Claim(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.clients.ClaimAll()
	return nil
}
