package domain

import (
	"context"
	"sync"
)

// Ref is a lazily-resolved reference to a related entity. A reference is
// either supplied eagerly at construction or backed by a query function that
// runs at most once; repeat resolutions return the cached result, including a
// cached error. The lock is held across the fetch so that two concurrent
// resolutions of the same reference never issue duplicate queries.
type Ref[T any] struct {
	mu    sync.Mutex
	fetch func(context.Context) (T, error)
	done  bool
	val   T
	err   error
}

// NewRef returns an eagerly-resolved reference.
func NewRef[T any](v T) *Ref[T] {
	return &Ref[T]{val: v, done: true}
}

// DeferRef returns a reference resolved by fetch on first use.
func DeferRef[T any](fetch func(context.Context) (T, error)) *Ref[T] {
	return &Ref[T]{fetch: fetch}
}

// Resolve returns the referenced value, fetching it on first call. A nil Ref
// denotes an absent optional relation and resolves to the zero value.
func (r *Ref[T]) Resolve(ctx context.Context) (T, error) {
	if r == nil {
		var zero T
		return zero, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return r.val, r.err
	}
	if r.fetch == nil {
		r.done = true
		return r.val, nil
	}

	r.val, r.err = r.fetch(ctx)
	r.done = true
	r.fetch = nil
	return r.val, r.err
}

// Set assigns the referenced value without invoking any query.
func (r *Ref[T]) Set(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.val = v
	r.err = nil
	r.done = true
	r.fetch = nil
}

// Resolved reports whether the reference holds a value, without fetching.
func (r *Ref[T]) Resolved() (T, bool) {
	if r == nil {
		var zero T
		return zero, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.val, r.done && r.err == nil
}
