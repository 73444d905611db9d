// Package ssrcmap maintains the bidirectional mapping between media-stream
// source ids and user identities, updated from platform speaking-event
// callbacks.
package ssrcmap

import "sync"

// Identity is a user identity bound to a source id.
type Identity struct {
	UserID      string
	DisplayName string
}

// Map is a concurrency-safe bidirectional source-id <-> user-identity map.
// Updates are atomic per user: a reassignment removes the user's previous
// forward entry before inserting the new one, so the maps never carry a
// stale source id for a user that has moved to a new one.
type Map struct {
	mu      sync.RWMutex
	forward map[uint32]Identity // source id -> identity
	reverse map[string]uint32   // user id -> current source id
}

// New returns an empty Map.
func New() *Map {
	return &Map{
		forward: make(map[uint32]Identity),
		reverse: make(map[string]uint32),
	}
}

// Bind records that sourceID now carries audio for the given user, removing
// any prior source id previously bound to that user.
func (m *Map) Bind(sourceID uint32, userID, displayName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.reverse[userID]; ok && prev != sourceID {
		delete(m.forward, prev)
	}
	m.forward[sourceID] = Identity{UserID: userID, DisplayName: displayName}
	m.reverse[userID] = sourceID
}

// Lookup resolves a source id to the identity currently bound to it.
func (m *Map) Lookup(sourceID uint32) (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.forward[sourceID]
	return id, ok
}

// SourceFor resolves a user id to its currently bound source id.
func (m *Map) SourceFor(userID string) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sourceID, ok := m.reverse[userID]
	return sourceID, ok
}

// Unbind removes sourceID's forward entry and, if it is still the current
// binding for its user, the reverse entry too.
func (m *Map) Unbind(sourceID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.forward[sourceID]
	if !ok {
		return
	}
	delete(m.forward, sourceID)
	if m.reverse[id.UserID] == sourceID {
		delete(m.reverse, id.UserID)
	}
}
