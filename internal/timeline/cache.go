// Package timeline holds the client-facing view of one conversation: an
// ordered, deduplicated message cache and the reconciler that merges
// optimistic sends with store-confirmed change feed events.
package timeline

import (
	"sort"
	"sync"
	"time"

	"github.com/acyrxbrown/chat-app/internal/store"
)

type State string

const (
	// StateConfirmed entries came from the store (directly or via the feed).
	StateConfirmed State = "confirmed"
	// StatePending entries are optimistic sends awaiting confirmation.
	StatePending State = "pending"
	// StateFailed entries are sends the store rejected; they stay visible so
	// the user can resend explicitly.
	StateFailed State = "failed"
)

// Entry is a message plus the client-only delivery state.
type Entry struct {
	store.Message
	State State `json:"state"`
}

// replaceTolerance bounds how far apart an optimistic timestamp and its
// confirmed replacement may be while still keeping the entry's position, so
// the swap doesn't reorder the visible list mid-render.
const replaceTolerance = 5 * time.Second

// Cache is the ordered collection of a conversation's messages: ascending
// created_at, each id at most once. All methods are safe for concurrent use;
// Snapshot never observes a half-applied mutation.
type Cache struct {
	mu      sync.Mutex
	entries []Entry
}

func NewCache() *Cache {
	return &Cache{}
}

// Append inserts in timestamp order. Confirmed events can arrive after later
// optimistic entries, so the insert position is not necessarily the tail.
// A duplicate id is a no-op, which is what absorbs at-least-once delivery.
func (c *Cache) Append(entry Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexOf(entry.ID) >= 0 {
		return false
	}
	c.insertSorted(entry)
	return true
}

// Replace atomically swaps an optimistic entry for its confirmed
// counterpart. If the confirmed id is already cached (the other side of the
// race won), the optimistic entry is simply dropped. Position is kept when
// the authoritative timestamp is within tolerance of the estimate.
func (c *Cache) Replace(oldID string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldIdx := c.indexOf(oldID)

	if c.indexOf(entry.ID) >= 0 && entry.ID != oldID {
		if oldIdx >= 0 {
			c.entries = append(c.entries[:oldIdx], c.entries[oldIdx+1:]...)
		}
		return
	}

	if oldIdx < 0 {
		c.insertSorted(entry)
		return
	}

	old := c.entries[oldIdx]
	drift := entry.CreatedAt.Sub(old.CreatedAt)
	if drift < 0 {
		drift = -drift
	}
	if drift <= replaceTolerance {
		c.entries[oldIdx] = entry
		return
	}

	c.entries = append(c.entries[:oldIdx], c.entries[oldIdx+1:]...)
	c.insertSorted(entry)
}

// Update refreshes a cached entry's row fields in place, preserving its
// delivery state. Unknown ids are ignored.
func (c *Cache) Update(msg store.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(msg.ID)
	if idx < 0 {
		return
	}
	state := c.entries[idx].State
	if c.entries[idx].CreatedAt.Equal(msg.CreatedAt) {
		c.entries[idx] = Entry{Message: msg, State: state}
		return
	}
	c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	c.insertSorted(Entry{Message: msg, State: state})
}

// Remove drops a message by id; no-op if absent.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return false
	}
	c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	return true
}

// SetState updates the delivery state of a cached entry.
func (c *Cache) SetState(id string, state State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return false
	}
	c.entries[idx].State = state
	return true
}

// Snapshot returns a copy of the ordered entries for rendering.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// indexOf must be called with the lock held.
func (c *Cache) indexOf(id string) int {
	for i := range c.entries {
		if c.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// insertSorted must be called with the lock held. Equal timestamps keep
// arrival order.
func (c *Cache) insertSorted(entry Entry) {
	idx := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].CreatedAt.After(entry.CreatedAt)
	})
	c.entries = append(c.entries, Entry{})
	copy(c.entries[idx+1:], c.entries[idx:])
	c.entries[idx] = entry
}
