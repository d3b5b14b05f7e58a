package bridge

import (
	"sync"

	"github.com/zedjones/tsbridge/internal/ts3"
)

// Presence is the bridge's belief about which voice clients are online,
// keyed by their current client id. It is the only state shared between the
// poll loop and the rest of the process, so every access takes the lock.
//
// The mapping is deliberately memory-only: a restart rebuilds it from the
// events that follow, and departures observed for unknown ids fall back to
// anonymous notification text.
type Presence struct {
	mu      sync.Mutex
	clients map[ts3.ClientID]string
}

// NewPresence returns an empty store.
func NewPresence() *Presence {
	return &Presence{clients: make(map[ts3.ClientID]string)}
}

// Put records a client as online under the given display name.
func (p *Presence) Put(id ts3.ClientID, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[id] = name
}

// Remove forgets a client and returns its last known name. Removing an
// unknown id is the normal partial-state case (the bridge never saw the
// matching arrival) and reports ok=false.
func (p *Presence) Remove(id ts3.ClientID) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.clients[id]
	if ok {
		delete(p.clients, id)
	}
	return name, ok
}

// Get returns the last known name for a client, if tracked.
func (p *Presence) Get(id ts3.ClientID) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.clients[id]
	return name, ok
}

// Len reports how many clients are currently tracked.
func (p *Presence) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
