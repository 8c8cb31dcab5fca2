// ABOUTME: Last-writer-wins map container and its transaction view
// ABOUTME: Keys resolve by the greatest op ID; removals are tombstones so late writes still order correctly

package crdt

import (
	"encoding/json"
	"fmt"
)

type mapEntry struct {
	id      ID
	value   json.RawMessage
	deleted bool
}

func (e *mapEntry) live() bool {
	return e != nil && !e.deleted
}

type mapState struct {
	entries map[string]*mapEntry
}

func newMapState() *mapState {
	return &mapState{entries: make(map[string]*mapEntry)}
}

func (m *mapState) get(key string) (json.RawMessage, bool) {
	e := m.entries[key]
	if !e.live() {
		return nil, false
	}
	return e.value, true
}

func (m *mapState) keys() []string {
	live := make(map[string]struct{}, len(m.entries))
	for k, e := range m.entries {
		if e.live() {
			live[k] = struct{}{}
		}
	}
	return sortedKeys(live)
}

// Map actions reported in KeyChange.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// KeyChange describes what happened to one key in a frame.
type KeyChange struct {
	Action   string
	OldValue json.RawMessage
	NewValue json.RawMessage
}

func (m *mapState) keyChanges(ch *change) map[string]KeyChange {
	out := make(map[string]KeyChange)
	for key, old := range ch.keys {
		cur := m.entries[key]
		switch {
		case !old.live() && cur.live():
			out[key] = KeyChange{Action: ActionAdd, NewValue: cur.value}
		case old.live() && !cur.live():
			out[key] = KeyChange{Action: ActionDelete, OldValue: old.value}
		case old.live() && cur.live() && old != cur:
			out[key] = KeyChange{Action: ActionUpdate, OldValue: old.value, NewValue: cur.value}
		}
	}
	return out
}

// MapEvent is delivered to Map observers once per frame.
type MapEvent struct {
	Keys   map[string]KeyChange
	Origin any
	Local  bool
}

// Map is a handle on a named map container.
type Map struct {
	doc *Doc
	c   *container
}

// Name returns the container name.
func (m *Map) Name() string {
	return m.c.name
}

// Get returns the raw value for key.
func (m *Map) Get(key string) (json.RawMessage, bool) {
	m.doc.mu.RLock()
	defer m.doc.mu.RUnlock()
	return m.c.m.get(key)
}

// Has reports whether key is set.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys returns the live keys in sorted order.
func (m *Map) Keys() []string {
	m.doc.mu.RLock()
	defer m.doc.mu.RUnlock()
	return m.c.m.keys()
}

// Len returns the number of live keys.
func (m *Map) Len() int {
	return len(m.Keys())
}

// Entries returns a copy of every live key and value.
func (m *Map) Entries() map[string]json.RawMessage {
	m.doc.mu.RLock()
	defer m.doc.mu.RUnlock()
	out := make(map[string]json.RawMessage)
	for _, k := range m.c.m.keys() {
		out[k], _ = m.c.m.get(k)
	}
	return out
}

// Observe registers fn for every frame that changes this map.
func (m *Map) Observe(fn func(MapEvent)) func() {
	return m.doc.observe(m.c, func(ev containerEvent) {
		fn(MapEvent{Keys: ev.keys, Origin: ev.origin, Local: ev.local})
	})
}

// In binds the map to an open transaction.
func (m *Map) In(tx *Txn) MapView {
	tx.check(m.doc)
	return MapView{m: m, tx: tx}
}

// MapView reads and writes a map inside a transaction.
type MapView struct {
	m  *Map
	tx *Txn
}

// Get returns the raw value for key, including writes made earlier in the frame.
func (v MapView) Get(key string) (json.RawMessage, bool) {
	v.tx.check(v.m.doc)
	return v.m.c.m.get(key)
}

// Has reports whether key is set.
func (v MapView) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Keys returns the live keys in sorted order.
func (v MapView) Keys() []string {
	v.tx.check(v.m.doc)
	return v.m.c.m.keys()
}

// Entries returns a copy of every live key and value.
func (v MapView) Entries() map[string]json.RawMessage {
	v.tx.check(v.m.doc)
	out := make(map[string]json.RawMessage)
	for _, k := range v.m.c.m.keys() {
		out[k], _ = v.m.c.m.get(k)
	}
	return out
}

// Set writes value (JSON-encoded) under key.
func (v MapView) Set(key string, value any) error {
	v.tx.checkWrite(v.m.doc)
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value for %q: %w", key, err)
	}
	v.tx.localSet(v.m.c, key, raw)
	return nil
}

// Delete removes key. It reports whether the key was set.
func (v MapView) Delete(key string) bool {
	v.tx.checkWrite(v.m.doc)
	if _, ok := v.m.c.m.get(key); !ok {
		return false
	}
	v.tx.localSet(v.m.c, key, nil)
	return true
}
