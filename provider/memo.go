package provider

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Memo caches one value fetched for the commit currently on display.
//
// Concurrent Get calls before the value is cached share a single load.
// Invalidate starts a new generation: a load that was already in flight
// still answers its callers but does not populate the cache.
type Memo[T any] struct {
	mu    sync.Mutex
	group singleflight.Group
	gen   uint64
	val   T
	ok    bool
}

// Get returns the cached value, loading it first if needed. Failed loads
// are not cached.
func (m *Memo[T]) Get(ctx context.Context, load func(context.Context) (T, error)) (T, error) {
	m.mu.Lock()
	if m.ok {
		v := m.val
		m.mu.Unlock()
		return v, nil
	}
	gen := m.gen
	m.mu.Unlock()

	ch := m.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.gen == gen {
			m.val, m.ok = v, true
		}
		m.mu.Unlock()
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// Cached returns the cached value without loading.
func (m *Memo[T]) Cached() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.val, m.ok
}

// Invalidate drops the cached value.
func (m *Memo[T]) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	m.gen++
	m.val, m.ok = zero, false
}
