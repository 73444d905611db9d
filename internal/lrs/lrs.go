// Package lrs implements LrsTracker: a source-id to last-spoken-at map used
// by worker admission control to find and evict the least recently active
// speaker when the concurrent-STT-session limit is reached.
package lrs

import (
	"sync"
	"time"
)

// Tracker tracks the last time each source id was observed speaking. Safe
// for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	lastSpoke map[uint32]time.Time
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{lastSpoke: make(map[uint32]time.Time)}
}

// Touch records sourceID as having spoken at t.
func (t *Tracker) Touch(sourceID uint32, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSpoke[sourceID] = at
}

// Remove drops sourceID from the tracker, e.g. once its worker exits.
func (t *Tracker) Remove(sourceID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSpoke, sourceID)
}

// FindLeastRecentlySpoken returns the source id with the oldest recorded
// speech time, and false if the tracker is empty.
func (t *Tracker) FindLeastRecentlySpoken() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		best   uint32
		bestAt time.Time
		found  bool
	)
	for id, at := range t.lastSpoke {
		if !found || at.Before(bestAt) {
			best, bestAt, found = id, at, true
		}
	}
	return best, found
}

// Len returns the number of tracked source ids.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSpoke)
}
