package host

import (
	"slices"
	"sync"
	"time"
)

type client struct {
	controlled bool
	lastSeen   time.Time
}

// Clients tracks the pages seen by the host and whether each is controlled by
// the active worker. A page is recorded when it navigates; its other requests
// only refresh it.
type Clients struct {
	mu      sync.RWMutex
	clients map[string]*client
	now     func() time.Time
}

// NewClients returns an empty client registry.
func NewClients() *Clients {
	return &Clients{clients: make(map[string]*client), now: time.Now}
}

// Add registers id if new, marks it seen and reports whether it is controlled.
func (c *Clients) Add(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.clients[id]
	if !ok {
		cl = &client{}
		c.clients[id] = cl
	}
	cl.lastSeen = c.now()
	return cl.controlled
}

// Touch marks a known id as seen and reports whether it is controlled.
// Unknown ids are not recorded.
func (c *Clients) Touch(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.clients[id]
	if !ok {
		return false
	}
	cl.lastSeen = c.now()
	return cl.controlled
}

// Control marks id as controlled, registering it if new.
func (c *Clients) Control(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.clients[id]
	if !ok {
		cl = &client{}
		c.clients[id] = cl
	}
	cl.controlled = true
	cl.lastSeen = c.now()
}

// Controlled reports whether id is controlled.
func (c *Clients) Controlled(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.clients[id]
	return ok && cl.controlled
}

// ClaimAll marks every known client as controlled and returns how many changed.
func (c *Clients) ClaimAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cl := range c.clients {
		if !cl.controlled {
			cl.controlled = true
			n++
		}
	}
	return n
}

// ControlledCount returns the number of controlled clients.
func (c *Clients) ControlledCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, cl := range c.clients {
		if cl.controlled {
			n++
		}
	}
	return n
}

// Remove forgets id and reports whether it was known.
func (c *Clients) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.clients[id]
	delete(c.clients, id)
	return ok
}

// Idle returns the ids not seen for at least d, in sorted order.
func (c *Clients) Idle(d time.Duration) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cutoff := c.now().Add(-d)
	var ids []string
	for id, cl := range c.clients {
		if !cl.lastSeen.After(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// IDs returns the known client ids in sorted order.
func (c *Clients) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.clients))
	for id := range c.clients {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
