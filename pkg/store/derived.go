package store

import (
	"context"
	"sync"
)

// Derived is a value computed from a query. It is recomputed only when the
// source query's version changes.
type Derived[S, D any] struct {
	src     *Query[S]
	compute func(S) D

	mu      sync.Mutex
	value   D
	version uint64
	has     bool
}

// NewDerived derives a value from src with compute.
func NewDerived[S, D any](src *Query[S], compute func(S) D) *Derived[S, D] {
	return &Derived[S, D]{src: src, compute: compute}
}

// Get fetches the source if needed and returns the derived value.
func (d *Derived[S, D]) Get(ctx context.Context) (D, error) {
	if _, err := d.src.Get(ctx); err != nil {
		var zero D
		return zero, err
	}
	v, _ := d.Peek()
	return v, nil
}

// Peek returns the derived value of the cached source without fetching.
func (d *Derived[S, D]) Peek() (D, bool) {
	s, version, ok := d.src.peekVersioned()
	if !ok {
		var zero D
		return zero, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.has || d.version != version {
		d.value = d.compute(s)
		d.version = version
		d.has = true
	}
	return d.value, true
}
