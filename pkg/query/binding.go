package query

import (
	"context"
	"fmt"
)

// Binding ties one cache key to a typed fetcher. Screens read their list
// through a binding and mutations invalidate it.
type Binding[T any] struct {
	cache *Cache
	key   Key
	fetch func(ctx context.Context) (T, error)
}

// Bind returns a binding of key to fetch on c.
func Bind[T any](c *Cache, key Key, fetch func(ctx context.Context) (T, error)) *Binding[T] {
	return &Binding[T]{cache: c, key: key, fetch: fetch}
}

// Key returns the bound key.
func (b *Binding[T]) Key() Key { return b.key }

// Snapshot is a typed view of the bound entry.
type Snapshot[T any] struct {
	Data     T
	HasData  bool
	Status   Status
	Err      error
	Fetching bool
	Stale    bool
}

// Fetch returns fresh cached data or loads it.
func (b *Binding[T]) Fetch(ctx context.Context) (T, error) {
	var zero T
	v, err := b.cache.Fetch(ctx, b.key, func(ctx context.Context) (any, error) {
		return b.fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("query: entry %s holds %T", b.key, v)
	}
	return t, nil
}

// Refetch invalidates the key and loads it again.
func (b *Binding[T]) Refetch(ctx context.Context) (T, error) {
	b.cache.Invalidate(b.key)
	return b.Fetch(ctx)
}

// Invalidate marks the bound entry stale.
func (b *Binding[T]) Invalidate() {
	b.cache.Invalidate(b.key)
}

// Snapshot returns the current state of the bound entry.
func (b *Binding[T]) Snapshot() Snapshot[T] {
	e, ok := b.cache.Get(b.key)
	if !ok {
		return Snapshot[T]{}
	}
	s := Snapshot[T]{
		HasData:  e.HasData,
		Status:   e.Status,
		Err:      e.Err,
		Fetching: e.Fetching,
		Stale:    e.Stale,
	}
	if t, ok := e.Data.(T); ok {
		s.Data = t
	}
	return s
}

// Subscribe calls fn whenever the bound entry changes.
func (b *Binding[T]) Subscribe(fn func()) func() {
	return b.cache.Subscribe(b.key, func(k Key) {
		if len(k) == len(b.key) {
			fn()
		}
	})
}
