package stream

import (
	"sync"
	"time"
)

// UserEntry is one recent-activity record: the last peer/slot/talkgroup a
// radio_id was heard transmitting on.
type UserEntry struct {
	RadioID    uint32
	PeerID     uint32
	Slot       int
	Talkgroup  uint32
	LastHeard  time.Time
}

// UserCache maps radio_id to its most recent peer/slot/talkgroup, used by
// private-call routing to find the single target peer currently
// associated with a destination radio. Entries expire after TTL and are
// purged lazily on lookup plus by a periodic sweep.
type UserCache struct {
	mu      sync.RWMutex
	entries map[uint32]UserEntry
	ttl     time.Duration
}

func NewUserCache(ttl time.Duration) *UserCache {
	return &UserCache{
		entries: make(map[uint32]UserEntry),
		ttl:     ttl,
	}
}

// Update upserts an entry and refreshes last_heard.
func (c *UserCache) Update(radioID, peerID uint32, slot int, talkgroup uint32, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[radioID] = UserEntry{
		RadioID:   radioID,
		PeerID:    peerID,
		Slot:      slot,
		Talkgroup: talkgroup,
		LastHeard: now,
	}
}

// Lookup returns the entry for radioID, or ok=false if absent or expired
// (expired entries are evicted as a side effect).
func (c *UserCache) Lookup(radioID uint32, now time.Time) (UserEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[radioID]
	c.mu.RUnlock()
	if !ok {
		return UserEntry{}, false
	}
	if now.Sub(entry.LastHeard) > c.ttl {
		c.mu.Lock()
		delete(c.entries, radioID)
		c.mu.Unlock()
		return UserEntry{}, false
	}
	return entry, true
}

// PeerFor is a convenience used by private-call routing: returns the
// peer_id last associated with radioID, if any live entry exists.
func (c *UserCache) PeerFor(radioID uint32, now time.Time) (uint32, bool) {
	entry, ok := c.Lookup(radioID, now)
	if !ok {
		return 0, false
	}
	return entry.PeerID, true
}

// Sweep bulk-evicts every expired entry; intended to run once per minute
// from the scheduler.
func (c *UserCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, entry := range c.entries {
		if now.Sub(entry.LastHeard) > c.ttl {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

func (c *UserCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
