package logic

import (
	"sync"
	"time"
)

// DefaultStaleness is how long a remote reading stays valid.
const DefaultStaleness = 15 * time.Second

// Peer is a configured remote sensor node.
type Peer struct {
	ID   PeerID
	Name string
}

type remoteSlot struct {
	peer       Peer
	value      float64
	updatedAt  time.Time
	hasReading bool
}

// RemoteReadingCache holds the latest flow reading from each configured peer.
// Staleness is evaluated when a value is read, never by a background sweep.
// Safe for concurrent use: OnReceive runs on transport goroutines.
type RemoteReadingCache struct {
	staleness time.Duration

	mu    sync.Mutex
	order []PeerID
	slots map[PeerID]*remoteSlot
}

// NewRemoteReadingCache creates a cache for the given peers.
func NewRemoteReadingCache(peers []Peer, staleness time.Duration) *RemoteReadingCache {
	c := &RemoteReadingCache{
		staleness: staleness,
		slots:     make(map[PeerID]*remoteSlot, len(peers)),
	}
	for _, p := range peers {
		if _, dup := c.slots[p.ID]; dup {
			continue
		}
		c.order = append(c.order, p.ID)
		c.slots[p.ID] = &remoteSlot{peer: p}
	}
	return c
}

// OnReceive stores value as the latest reading from id.
// Readings from unknown peers are ignored and false is returned.
func (c *RemoteReadingCache) OnReceive(id PeerID, value float64, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[id]
	if !ok {
		return false
	}
	s.value = value
	s.updatedAt = now
	s.hasReading = true
	return true
}

// Read returns the effective value for id at now: the last value, or 0 if the
// peer never reported or its reading is older than the staleness window.
func (c *RemoteReadingCache) Read(id PeerID, now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[id]
	if !ok {
		return 0
	}
	r := c.readingLocked(s, now)
	return r.Value
}

// Snapshot returns the effective reading of every peer, in configuration order.
func (c *RemoteReadingCache) Snapshot(now time.Time) []Reading {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Reading, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.readingLocked(c.slots[id], now))
	}
	return out
}

// Peers returns the configured peers in configuration order.
func (c *RemoteReadingCache) Peers() []Peer {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Peer, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.slots[id].peer)
	}
	return out
}

func (c *RemoteReadingCache) readingLocked(s *remoteSlot, now time.Time) Reading {
	r := Reading{
		Source:     Source{Peer: s.peer.ID, Name: s.peer.Name},
		ObservedAt: s.updatedAt,
	}
	if !s.hasReading || now.Sub(s.updatedAt) > c.staleness {
		// lastValue is retained; only the reported value drops to zero
		r.Stale = true
		return r
	}
	r.Value = s.value
	return r
}
