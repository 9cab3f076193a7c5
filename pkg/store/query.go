package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FetchFunc loads the value of a query from the backend.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// State describes a query without its value.
type State struct {
	// Loaded is true once a fetch has succeeded.
	Loaded bool
	// Settled is true once at least one fetch has finished, successfully or not.
	Settled  bool
	Stale    bool
	Fetching bool
	// Err is the error of the most recent fetch, nil after a success.
	Err       error
	Version   uint64
	UpdatedAt time.Time
}

// Query is a cached, invalidatable value of type T.
type Query[T any] struct {
	store *Store
	key   QueryKey
	fetch FetchFunc[T]

	mu            sync.RWMutex
	value         T
	loaded        bool
	settled       bool
	stale         bool
	err           error
	version       uint64
	updatedAt     time.Time
	invalidations uint64
	applied       uint64 // generation the current value was fetched at
	inflight      int
}

// Register creates the query for key, or returns the one already registered.
// Registering the same key with a different value type panics.
func Register[T any](st *Store, key QueryKey, fetch FetchFunc[T]) *Query[T] {
	q := &Query[T]{store: st, key: key, fetch: fetch}
	got := st.register(key, q)
	existing, ok := got.(*Query[T])
	if !ok {
		panic(fmt.Sprintf("store: query %q registered with a different type", key))
	}
	return existing
}

// Key returns the query's key.
func (q *Query[T]) Key() QueryKey {
	return q.key
}

// Get returns the cached value, fetching it first when it was never loaded or
// is stale. Concurrent callers share one fetch; a caller whose ctx ends
// stops waiting without aborting it. When a refetch fails but an
// older value exists, the older value is returned with a nil error and the
// failure is kept in State().Err.
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	q.mu.RLock()
	if q.loaded && !q.stale {
		v := q.value
		q.mu.RUnlock()
		return v, nil
	}
	gen := q.invalidations
	q.mu.RUnlock()

	// Callers only share a fetch started after the same invalidation. The
	// shared fetch outlives any single caller's cancellation.
	flight := fmt.Sprintf("%s#%d", q.key, gen)
	ch := q.store.group.DoChan(flight, func() (interface{}, error) {
		return q.refresh(context.WithoutCancel(ctx), gen)
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			var zero T
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

func (q *Query[T]) refresh(ctx context.Context, gen uint64) (T, error) {
	q.mu.Lock()
	q.inflight++
	q.mu.Unlock()

	val, err := q.fetch(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	q.settled = true
	if err != nil {
		q.err = err
		if q.loaded {
			q.store.log.WithError(err).WithField("key", q.key).Warn("Refetch failed, keeping previous value")
			return q.value, nil
		}
		var zero T
		return zero, err
	}

	// A newer fetch already landed; keep its value.
	if q.loaded && gen < q.applied {
		return q.value, nil
	}
	q.value = val
	q.loaded = true
	q.applied = gen
	q.err = nil
	q.version++
	q.updatedAt = q.store.clock.Now()
	// An invalidation that raced the fetch leaves the query stale.
	if q.invalidations == gen {
		q.stale = false
	}
	return val, nil
}

// Peek returns the cached value without fetching.
func (q *Query[T]) Peek() (T, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.value, q.loaded
}

func (q *Query[T]) peekVersioned() (T, uint64, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.value, q.version, q.loaded
}

// State returns the query's state.
func (q *Query[T]) State() State {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return State{
		Loaded:    q.loaded,
		Settled:   q.settled,
		Stale:     q.stale,
		Fetching:  q.inflight > 0,
		Err:       q.err,
		Version:   q.version,
		UpdatedAt: q.updatedAt,
	}
}

// Invalidate marks this query stale and notifies the store's subscribers.
func (q *Query[T]) Invalidate() {
	q.store.Invalidate(q.key)
}

func (q *Query[T]) markStale() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stale = true
	q.invalidations++
}
