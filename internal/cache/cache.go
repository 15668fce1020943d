// Package cache provides the process-wide, context-keyed cache of transcript
// snapshots. Multiple surfaces bound to the same context (a compact popup and
// a full panel) hydrate from each other's snapshots here instead of each
// issuing a history load.
package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"drafter/internal/logging"
	"drafter/internal/transcript"
	"drafter/internal/types"
)

// TranscriptCache is an explicit keyed store passed by reference to each
// session controller. Entries are reference-counted by mounted surfaces and
// dropped when the last surface for a context unmounts.
type TranscriptCache struct {
	mu      sync.Mutex
	entries map[types.ContextKey]*entry
	loads   singleflight.Group
}

type entry struct {
	snap transcript.Snapshot
	refs int
}

// New creates an empty cache.
func New() *TranscriptCache {
	return &TranscriptCache{entries: make(map[types.ContextKey]*entry)}
}

// Get returns the cached snapshot for a context, if any.
func (c *TranscriptCache) Get(key types.ContextKey) (transcript.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return transcript.Snapshot{}, false
	}
	return e.snap, true
}

// Set writes a snapshot back for a context. The write is skipped when the
// message sequence is reference-identical to the cached one, so per-token
// callbacks that changed nothing don't churn the cache.
func (c *TranscriptCache) Set(key types.ContextKey, snap transcript.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		// A snapshot for an unmounted context is dropped: the completion
		// that produced it arrived after the last surface went away.
		return
	}
	if sameMessages(e.snap.Messages, snap.Messages) && e.snap.Initialized == snap.Initialized {
		return
	}
	e.snap = snap
	logging.CacheDebug("cache %s updated, %d messages", key, len(snap.Messages))
}

// Mount registers a surface for a context and returns the new reference
// count. The first mount creates the entry.
func (c *TranscriptCache) Mount(key types.ContextKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	e.refs++
	return e.refs
}

// Unmount releases a surface's reference. The entry (and any pending loads)
// are dropped when the last reference goes away.
func (c *TranscriptCache) Unmount(key types.ContextKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0
	}
	e.refs--
	if e.refs <= 0 {
		delete(c.entries, key)
		logging.CacheDebug("cache %s dropped on last unmount", key)
		return 0
	}
	return e.refs
}

// Mounted reports whether any surface holds the context.
func (c *TranscriptCache) Mounted(key types.ContextKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// LoadOnce collapses concurrent history loads for the same context into one
// call; every waiter receives the same result.
func (c *TranscriptCache) LoadOnce(key types.ContextKey, load func() ([]types.Message, error)) ([]types.Message, error) {
	v, err, shared := c.loads.Do(key.String(), func() (interface{}, error) {
		return load()
	})
	if shared {
		logging.CacheDebug("cache %s history load shared across surfaces", key)
	}
	if v == nil {
		return nil, err
	}
	return v.([]types.Message), err
}

// sameMessages compares two message slices by reference identity (same
// backing array and length), not by content.
func sameMessages(a, b []types.Message) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
