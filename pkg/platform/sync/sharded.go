// Package sync holds concurrency primitives shared by the in-memory stores.
package sync

import (
	"hash/maphash"
	"sync"
)

const defaultShards = 64

// KeyedMutex serializes work per key without one lock per key: keys hash onto
// a fixed set of shards, so unrelated keys rarely contend and memory stays
// bounded however many records exist.
type KeyedMutex[K comparable] struct {
	seed   maphash.Seed
	shards []sync.Mutex
}

// NewKeyedMutex returns a KeyedMutex with n shards, or a default count when n
// is not positive.
func NewKeyedMutex[K comparable](n int) *KeyedMutex[K] {
	if n <= 0 {
		n = defaultShards
	}
	return &KeyedMutex[K]{seed: maphash.MakeSeed(), shards: make([]sync.Mutex, n)}
}

// Lock acquires the shard for key and returns its release func.
func (m *KeyedMutex[K]) Lock(key K) (unlock func()) {
	mu := &m.shards[m.shard(key)]
	mu.Lock()
	return mu.Unlock
}

// With runs fn while holding the shard for key.
func (m *KeyedMutex[K]) With(key K, fn func() error) error {
	unlock := m.Lock(key)
	defer unlock()
	return fn()
}

func (m *KeyedMutex[K]) shard(key K) uint64 {
	return maphash.Comparable(m.seed, key) % uint64(len(m.shards))
}
