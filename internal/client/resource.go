package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// State is a snapshot of a resource. Data is nil until a response arrives
// and must be treated as read-only; it is shared with other subscribers.
type State[T any] struct {
	Data      *T
	Err       error
	IsLoading bool
}

type Resource[T any] struct {
	b *binding

	// decode cache, guarded by b.c.mu
	decoded     *T
	decodeErr   error
	decodedFrom *entry
	decodedGen  uint64
}

// Watch starts reading path. An empty path is inactive: it never sends a
// request and stays loading until closed.
func Watch[T any](c *Client, path string) *Resource[T] {
	return &Resource[T]{b: c.watch(path)}
}

func (r *Resource[T]) Path() string { return r.b.path }

// Updates receives a value after state changes. It is buffered by one, so
// bursts of changes collapse into a single wake-up.
func (r *Resource[T]) Updates() <-chan struct{} { return r.b.updates }

func (r *Resource[T]) State() State[T] {
	c := r.b.c
	c.mu.Lock()
	defer c.mu.Unlock()

	b := r.b
	switch {
	case b.closed:
		return State[T]{}
	case c.closed:
		return State[T]{Err: ErrClosed}
	case b.path == "":
		return State[T]{IsLoading: true}
	case b.entry == nil:
		return State[T]{IsLoading: b.pending}
	}

	e := b.entry
	st := State[T]{IsLoading: e.loading, Err: e.err}
	if e.body == nil {
		return st
	}
	if r.decodedFrom != e || r.decodedGen != e.bodyGen {
		var v T
		r.decoded, r.decodeErr = nil, nil
		if err := json.Unmarshal(e.body, &v); err != nil {
			r.decodeErr = fmt.Errorf("decode %s: %w", e.key.Path, err)
		} else {
			r.decoded = &v
		}
		r.decodedFrom, r.decodedGen = e, e.bodyGen
	}
	st.Data = r.decoded
	if st.Err == nil {
		st.Err = r.decodeErr
	}
	return st
}

// Await blocks until the resource is not loading or ctx is done.
func (r *Resource[T]) Await(ctx context.Context) (State[T], error) {
	for {
		st := r.State()
		if !st.IsLoading {
			return st, nil
		}
		select {
		case <-r.b.updates:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// Refetch drops the cached answer for this (path, credential) and asks
// again; every subscriber of the entry sees the new result. The previous
// data stays visible while the request is in flight.
func (r *Resource[T]) Refetch() {
	c := r.b.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.b.closed || c.closed || r.b.entry == nil {
		return
	}
	c.startLocked(r.b.entry)
}

// Close releases the resource. The shared entry is dropped, and its request
// cancelled, when no other resource holds it.
func (r *Resource[T]) Close() {
	c := r.b.c
	c.mu.Lock()
	if r.b.closed {
		c.mu.Unlock()
		return
	}
	r.b.closed = true
	delete(c.bindings, r.b)
	c.releaseLocked(r.b)
	c.mu.Unlock()
	if r.b.stop != nil {
		r.b.stop()
	}
}
