package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-tender-cache/pkg/logging"
)

// Client ties the store, the query executor and the mutation runner
// together. Create one per application session and pass it explicitly.
type Client struct {
	cfg      Config
	store    *Store
	exec     *executor
	gateway  CacheService
	notifier Notifier
	logger   logging.Logger
	disposed atomic.Bool
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	notifier   Notifier
	logger     logging.Logger
	gateway    CacheService
	eviction   EvictionPolicy
	serializer KeySerializer
	now        func() time.Time
}

// WithNotifier sets where success and failure messages go.
func WithNotifier(n Notifier) ClientOption {
	return func(o *clientOptions) { o.notifier = n }
}

func WithLogger(l logging.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// WithGateway replaces the sturdyc backed fetch gateway.
func WithGateway(g CacheService) ClientOption {
	return func(o *clientOptions) { o.gateway = g }
}

// WithEvictionPolicy overrides the GCTime based idle eviction.
func WithEvictionPolicy(p EvictionPolicy) ClientOption {
	return func(o *clientOptions) { o.eviction = p }
}

func WithKeySerializer(ks KeySerializer) ClientOption {
	return func(o *clientOptions) { o.serializer = ks }
}

func WithClock(now func() time.Time) ClientOption {
	return func(o *clientOptions) { o.now = now }
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := clientOptions{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	logger := logging.OrNop(o.logger).With("component", "query-cache")
	if o.notifier == nil {
		o.notifier = nopNotifier{}
	}
	if o.gateway == nil {
		gateway, err := NewCacheService(cfg)
		if err != nil {
			return nil, err
		}
		o.gateway = gateway
	}
	if o.eviction == nil {
		if cfg.GCTime > 0 {
			o.eviction = NewIdleTimeout(cfg.GCTime)
		} else {
			o.eviction = NeverEvict{}
		}
	}

	store := NewStore(
		WithStoreLogger(logger),
		WithStoreEviction(o.eviction),
		WithStoreSerializer(o.serializer),
		WithStoreClock(o.now),
	)

	return &Client{
		cfg:      cfg,
		store:    store,
		exec:     newExecutor(store, o.gateway, o.notifier, logger, cfg, o.now),
		gateway:  o.gateway,
		notifier: o.notifier,
		logger:   logger,
	}, nil
}

// Store exposes the underlying store.
func (c *Client) Store() *Store { return c.store }

func (c *Client) Config() Config { return c.cfg }

// Get returns the current entry for key.
func (c *Client) Get(key QueryKey) (Entry, bool) {
	return c.store.Get(key)
}

// EnsureFresh starts a background fetch for key when needed. Results land in
// the store and reach subscribers through their listeners.
func (c *Client) EnsureFresh(key QueryKey, fetch FetchFn, opts ...QueryOption) {
	if c.disposed.Load() {
		return
	}
	c.exec.ensureFresh(key, fetch, opts...)
}

// Fetch is the blocking read-through: it serves a fresh entry directly or
// waits for the in-flight fetch of key. A disabled query returns nil data and
// no error.
func (c *Client) Fetch(ctx context.Context, key QueryKey, fetch FetchFn, opts ...QueryOption) (any, error) {
	if c.disposed.Load() {
		return nil, ErrDisposed
	}

	for {
		f, enabled := c.exec.ensureFresh(key, fetch, opts...)
		if !enabled {
			return nil, nil
		}
		if f == nil {
			if c.disposed.Load() {
				return nil, ErrDisposed
			}
			entry, ok := c.store.Get(key)
			if !ok {
				return nil, nil
			}
			if entry.Status == StatusError {
				return entry.Data, entry.Err
			}
			return entry.Data, nil
		}

		select {
		case <-f.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		switch {
		case f.restarted:
			// a follow-up fetch replaced the result; join it
			opts = withoutForce(opts)
			continue
		case f.discarded:
			if c.disposed.Load() {
				return nil, ErrDisposed
			}
			return nil, ErrReset
		}
		return f.value, f.err
	}
}

func withoutForce(opts []QueryOption) []QueryOption {
	out := make([]QueryOption, 0, len(opts)+1)
	out = append(out, opts...)
	return append(out, func(o *queryOptions) { o.force = false })
}

// InFlight reports whether key has an unsettled fetch.
func (c *Client) InFlight(key QueryKey) bool {
	_, ok := c.exec.pending(key)
	return ok
}

// Invalidate marks every entry matched by any matcher as stale and refetches
// the subscribed ones. It returns the matched keys.
// Overlapping matchers still refetch each key once.
func (c *Client) Invalidate(matchers ...Matcher) []QueryKey {
	m := AnyOf(matchers...)
	if m == nil {
		return nil
	}
	return c.store.Invalidate(m)
}

// SetQueryData writes data for key as if it had just been fetched.
func (c *Client) SetQueryData(key QueryKey, data any) {
	gen := c.store.Generation()
	_ = c.gateway.Delete(context.Background(), memoKey(gen, c.store.ID(key)))
	c.store.setEntryIf(gen, key,
		WithData(data),
		WithStatus(StatusSuccess),
		WithError(nil),
		WithFetchedAt(c.exec.now()),
		ClearStale(),
	)
}

// Reset clears session scoped state, e.g. on logout or company switch.
func (c *Client) Reset() {
	if c.disposed.Load() {
		return
	}
	previous := c.store.Generation()
	kept := c.store.Reset()
	c.exec.reset(previous, kept)
}

// Dispose cancels in-flight fetches and releases all state. The client must
// not be used afterwards.
func (c *Client) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	c.exec.dispose()
	c.store.Dispose()
	c.logger.Info("query cache disposed")
}

// Notifier returns the client's notifier.
func (c *Client) Notifier() Notifier { return c.notifier }

func (c *Client) Logger() logging.Logger { return c.logger }

// Query is the typed form of Fetch.
func Query[T any](ctx context.Context, c *Client, key QueryKey, fetch func(ctx context.Context) (T, error), opts ...QueryOption) (T, error) {
	data, err := c.Fetch(ctx, key, Erase(fetch), opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return As[T](data)
}
