package query

import "sync"

// shardedMap is a concurrently readable map split across independently
// locked shards, so readers of unrelated slots never contend.
type shardedMap[K comparable, V any] struct {
	shards []mapShard[K, V]
	hash   func(K) uint64
}

type mapShard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func newShardedMap[K comparable, V any](n int, hash func(K) uint64) *shardedMap[K, V] {
	if n < 1 {
		n = 1
	}
	s := &shardedMap[K, V]{
		shards: make([]mapShard[K, V], n),
		hash:   hash,
	}
	for i := range s.shards {
		s.shards[i].m = make(map[K]V)
	}
	return s
}

func (s *shardedMap[K, V]) shard(k K) *mapShard[K, V] {
	return &s.shards[s.hash(k)%uint64(len(s.shards))]
}

func (s *shardedMap[K, V]) get(k K) (V, bool) {
	sh := s.shard(k)
	sh.mu.RLock()
	v, ok := sh.m[k]
	sh.mu.RUnlock()
	return v, ok
}

// getOrCreate returns the value for k, inserting mk() if absent.
func (s *shardedMap[K, V]) getOrCreate(k K, mk func() V) V {
	if v, ok := s.get(k); ok {
		return v
	}
	sh := s.shard(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if v, ok := sh.m[k]; ok {
		return v
	}
	v := mk()
	sh.m[k] = v
	return v
}

// update runs fn on the value for k under the shard's write lock,
// inserting mk() first if absent.
func (s *shardedMap[K, V]) update(k K, mk func() V, fn func(V)) {
	sh := s.shard(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[k]
	if !ok {
		v = mk()
		sh.m[k] = v
	}
	fn(v)
}

// view runs fn on the value for k under the shard's read lock.
func (s *shardedMap[K, V]) view(k K, fn func(V)) bool {
	sh := s.shard(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.m[k]
	if ok {
		fn(v)
	}
	return ok
}

func (s *shardedMap[K, V]) remove(k K) (V, bool) {
	sh := s.shard(k)
	sh.mu.Lock()
	v, ok := sh.m[k]
	delete(sh.m, k)
	sh.mu.Unlock()
	return v, ok
}

func (s *shardedMap[K, V]) len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

func (s *shardedMap[K, V]) clear() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		clear(sh.m)
		sh.mu.Unlock()
	}
}

// slotHash spreads slots across shards.
func slotHash(s Slot) uint64 {
	h := uint64(s.Key.Index)*0x9E3779B97F4A7C15 ^ uint64(s.Key.Gen)<<48
	return h ^ uint64(s.Kind)*0xC2B2AE3D27D4EB4F
}
