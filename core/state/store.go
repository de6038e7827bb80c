// Package state provides sharded in-memory keyed stores for short-lived
// conversation state. Operations on different keys only contend when the keys
// hash to the same shard, and every operation on one key is linearized by its
// shard lock.
package state

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type entry[T any] struct {
	value   T
	touched time.Time
}

type shard[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
}

// Store is a concurrency-safe map from string keys to values of type T that
// remembers when each key was last written.
type Store[T any] struct {
	shards [shardCount]*shard[T]
	now    func() time.Time
}

// Option customises a Store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now; tests use it to drive idle eviction.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs an empty Store.
func New[T any](opts ...Option) *Store[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store[T]{now: o.now}
	for i := range s.shards {
		s.shards[i] = &shard[T]{items: make(map[string]entry[T])}
	}
	return s
}

func (s *Store[T]) shardFor(key string) *shard[T] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Get returns the value stored under key.
func (s *Store[T]) Get(key string) (T, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.items[key]
	return e.value, ok
}

// Set stores v under key and refreshes its idle clock.
func (s *Store[T]) Set(key string, v T) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.items[key] = entry[T]{value: v, touched: s.now()}
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store[T]) Delete(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.items, key)
}

// Update applies fn to the current value of key atomically. fn reports whether
// the returned value should be kept; returning false deletes the key.
func (s *Store[T]) Update(key string, fn func(cur T, exists bool) (next T, keep bool)) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.items[key]
	next, keep := fn(cur.value, ok)
	if !keep {
		delete(sh.items, key)
		return
	}
	sh.items[key] = entry[T]{value: next, touched: s.now()}
}

// LoadAndDelete removes key and returns the value it held.
func (s *Store[T]) LoadAndDelete(key string) (T, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.items[key]
	if ok {
		delete(sh.items, key)
	}
	return e.value, ok
}

// DeleteIf removes key only when match accepts its current value.
func (s *Store[T]) DeleteIf(key string, match func(T) bool) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.items[key]
	if !ok || !match(e.value) {
		return false
	}
	delete(sh.items, key)
	return true
}

// Len returns the number of keys currently stored.
func (s *Store[T]) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn for every entry until fn returns false. fn must not call back
// into the store.
func (s *Store[T]) Range(fn func(key string, v T) bool) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.items {
			if !fn(k, e.value) {
				sh.mu.RUnlock()
				return
			}
		}
		sh.mu.RUnlock()
	}
}

// EvictIdle removes entries not written for longer than maxIdle and returns
// how many were dropped. maxIdle <= 0 disables eviction.
func (s *Store[T]) EvictIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-maxIdle)
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.items {
			if e.touched.Before(cutoff) {
				delete(sh.items, k)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}
