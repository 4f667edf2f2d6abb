package cache

import (
	"context"
	"sync"
	"time"
)

// Binding links a consumer, such as a view, to one QueryKey at a time. It
// subscribes to the store, keeps the key fresh and forwards every change of
// the bound key to onChange until Close is called.
type Binding struct {
	client   *Client
	onChange Listener

	mu          sync.Mutex
	key         QueryKey
	fetch       FetchFn
	opts        []QueryOption
	unsubscribe func()
	closed      bool
}

// Bind subscribes onChange to key and ensures the entry is fresh. Read the
// initial state with Snapshot; onChange only sees later changes.
func (c *Client) Bind(key QueryKey, fetch FetchFn, onChange Listener, opts ...QueryOption) *Binding {
	b := &Binding{client: c, onChange: onChange}
	b.Rekey(key, fetch, opts...)
	return b
}

// Key returns the currently bound key.
func (b *Binding) Key() QueryKey {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key.clone()
}

// Rekey moves the binding to key. The new key is subscribed before the old
// one is released so a shared entry is never dropped in between.
func (b *Binding) Rekey(key QueryKey, fetch FetchFn, opts ...QueryOption) {
	key = key.clone()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	same := b.unsubscribe != nil && b.key.Equal(key)
	b.fetch = fetch
	b.opts = append([]QueryOption(nil), opts...)
	b.mu.Unlock()

	if !same {
		unsubscribe := b.client.store.Subscribe(key, b.listenerFor(key))

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			unsubscribe()
			return
		}
		previous := b.unsubscribe
		b.key = key
		b.unsubscribe = unsubscribe
		b.mu.Unlock()

		if previous != nil {
			previous()
		}
	}

	b.client.EnsureFresh(key, fetch, opts...)
}

// listenerFor drops notifications that arrive for a key the binding has
// already moved away from.
func (b *Binding) listenerFor(key QueryKey) Listener {
	return func(e Entry) {
		b.mu.Lock()
		deliver := !b.closed && b.key.Equal(key)
		b.mu.Unlock()
		if deliver && b.onChange != nil {
			b.onChange(e)
		}
	}
}

// Snapshot returns the current entry of the bound key.
func (b *Binding) Snapshot() Entry {
	key := b.Key()
	if e, ok := b.client.store.Get(key); ok {
		return e
	}
	return Entry{Key: key, Status: StatusIdle}
}

// Refetch forces a fetch of the bound key.
func (b *Binding) Refetch() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	key, fetch := b.key, b.fetch
	opts := append(append([]QueryOption(nil), b.opts...), Force())
	b.mu.Unlock()

	b.client.EnsureFresh(key, fetch, opts...)
}

// Close releases the subscription. It is safe to call more than once.
func (b *Binding) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.onChange = nil
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Result is the typed view of an Entry.
type Result[T any] struct {
	Data      T
	Err       error
	Status    Status
	Stale     bool
	FetchedAt time.Time
}

// Loading reports whether a fetch is running. Data may still hold the
// previous value.
func (r Result[T]) Loading() bool { return r.Status == StatusLoading }

func (r Result[T]) Failed() bool { return r.Status == StatusError }

// ResultOf converts e to a Result[T]. Data of an unexpected type is reported
// as ErrInvalidResultType.
func ResultOf[T any](e Entry) Result[T] {
	r := Result[T]{
		Err:       e.Err,
		Status:    e.Status,
		Stale:     e.Stale,
		FetchedAt: e.FetchedAt,
	}
	data, err := As[T](e.Data)
	if err != nil {
		r.Status = StatusError
		r.Err = err
		return r
	}
	r.Data = data
	return r
}

// Watch is the typed form of Bind.
func Watch[T any](c *Client, key QueryKey, fetch func(ctx context.Context) (T, error), onChange func(Result[T]), opts ...QueryOption) *Binding {
	var listener Listener
	if onChange != nil {
		listener = func(e Entry) { onChange(ResultOf[T](e)) }
	}
	return c.Bind(key, Erase(fetch), listener, opts...)
}
