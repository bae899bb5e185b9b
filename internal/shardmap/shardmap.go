// Package shardmap provides a concurrency-safe map from a string key to a
// set of members. Keys are spread over independently locked buckets so that
// operations on unrelated keys do not contend.
package shardmap

import (
	"hash/maphash"
	"sync"
)

// DefaultShards is the bucket count used by New.
const DefaultShards = 64

// Member is anything with a stable identity inside a set.
type Member interface {
	ID() string
}

type bucket[K ~string, V Member] struct {
	mu   sync.RWMutex
	sets map[K]map[string]V
}

// Map maps keys to member sets. The zero value is not usable; call New.
type Map[K ~string, V Member] struct {
	seed    maphash.Seed
	buckets []*bucket[K, V]
}

// New returns a Map with DefaultShards buckets.
func New[K ~string, V Member]() *Map[K, V] {
	return NewWithShards[K, V](DefaultShards)
}

// NewWithShards returns a Map with n buckets. n < 1 is treated as 1.
func NewWithShards[K ~string, V Member](n int) *Map[K, V] {
	if n < 1 {
		n = 1
	}
	m := &Map[K, V]{
		seed:    maphash.MakeSeed(),
		buckets: make([]*bucket[K, V], n),
	}
	for i := range m.buckets {
		m.buckets[i] = &bucket[K, V]{sets: make(map[K]map[string]V)}
	}
	return m
}

func (m *Map[K, V]) bucketFor(key K) *bucket[K, V] {
	h := maphash.String(m.seed, string(key))
	return m.buckets[h%uint64(len(m.buckets))]
}

// Add inserts v into the set for key. It reports whether the set was created
// by this call. Adding a member that is already present is a no-op.
func (m *Map[K, V]) Add(key K, v V) (created bool) {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.sets[key]
	if !ok {
		set = make(map[string]V)
		b.sets[key] = set
		created = true
	}
	set[v.ID()] = v
	return created
}

// Remove deletes v from the set for key. It reports whether the set became
// empty and was dropped by this call. Removing an absent member is a no-op.
func (m *Map[K, V]) Remove(key K, v V) (emptied bool) {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.sets[key]
	if !ok {
		return false
	}
	if _, ok := set[v.ID()]; !ok {
		return false
	}
	delete(set, v.ID())
	if len(set) == 0 {
		delete(b.sets, key)
		return true
	}
	return false
}

// Members returns a snapshot of the set for key.
func (m *Map[K, V]) Members(key K) []V {
	b := m.bucketFor(key)
	b.mu.RLock()
	defer b.mu.RUnlock()

	set := b.sets[key]
	out := make([]V, 0, len(set))
	for _, v := range set {
		out = append(out, v)
	}
	return out
}

// Contains reports whether the set for key holds a member with id.
func (m *Map[K, V]) Contains(key K, id string) bool {
	b := m.bucketFor(key)
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.sets[key][id]
	return ok
}

// Len returns the size of the set for key.
func (m *Map[K, V]) Len(key K) int {
	b := m.bucketFor(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sets[key])
}

// Keys returns every key with a non-empty set. Buckets are visited one at a
// time, so the result is not an atomic snapshot of the whole map.
func (m *Map[K, V]) Keys() []K {
	var out []K
	for _, b := range m.buckets {
		b.mu.RLock()
		for k := range b.sets {
			out = append(out, k)
		}
		b.mu.RUnlock()
	}
	return out
}
