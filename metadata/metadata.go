// Package metadata provides a thread-safe string-keyed value map used to
// carry trace identifiers and other contextual data through request and
// event envelopes.
package metadata

import "sync"

// Map is a plain, not-thread-safe map alias used at the JSON boundary.
type Map = map[string]interface{}

// MD is a concurrency-safe metadata set. The zero value is not usable,
// use New or FromMap.
type MD struct {
	data map[string]interface{}
	mu   *sync.RWMutex
}

// New returns an empty metadata set.
func New() MD {
	return MD{
		data: make(map[string]interface{}),
		mu:   new(sync.RWMutex),
	}
}

// FromMap creates a new metadata set populated with the provided values.
func FromMap(src map[string]interface{}) MD {
	md := New()
	md.Load(src)
	return md
}

// Copy returns an independent copy of the metadata set.
func (m MD) Copy() MD {
	cp := New()
	cp.Load(m.Values())
	return cp
}

// Get the value of a single entry, returns nil if unset.
func (m MD) Get(key string) interface{} {
	m.mu.RLock()
	v, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return v
}

// Set a single entry, overriding any previous value for the same key.
func (m MD) Set(key string, value interface{}) {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

// Delete removes the given keys, a no-op for keys that are not set.
func (m MD) Delete(key ...string) {
	m.mu.Lock()
	for _, k := range key {
		delete(m.data, k)
	}
	m.mu.Unlock()
}

// Load merges src into the metadata set, overriding existing entries.
func (m MD) Load(src map[string]interface{}) {
	m.mu.Lock()
	for k, v := range src {
		m.data[k] = v
	}
	m.mu.Unlock()
}

// Values returns a snapshot of all currently registered values.
func (m MD) Values() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]interface{}, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// IsEmpty returns true when no values are currently set.
func (m MD) IsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data) == 0
}

// Clear removes all values currently set.
func (m MD) Clear() {
	m.mu.Lock()
	for k := range m.data {
		delete(m.data, k)
	}
	m.mu.Unlock()
}

// Join merges the values from other metadata sets into the current one.
func (m MD) Join(other ...MD) {
	for _, b := range other {
		for k, v := range b.Values() {
			m.Set(k, v)
		}
	}
}
