package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-tender-cache/pkg/logging"
	"github.com/puzpuzpuz/xsync/v3"
)

// QueryOption adjusts a single EnsureFresh, Fetch or Bind call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	enabled    bool
	force      bool
	staleTime  time.Duration
	retry      int
	retryDelay time.Duration
}

// Enabled guards a query on its inputs being known. A disabled query never
// runs; this is a precondition, not an error.
func Enabled(ok bool) QueryOption {
	return func(o *queryOptions) { o.enabled = ok }
}

// Force refetches even when the entry is fresh.
func Force() QueryOption {
	return func(o *queryOptions) { o.force = true }
}

func StaleTime(d time.Duration) QueryOption {
	return func(o *queryOptions) { o.staleTime = d }
}

func Retry(n int) QueryOption {
	return func(o *queryOptions) { o.retry = n }
}

func RetryDelay(d time.Duration) QueryOption {
	return func(o *queryOptions) { o.retryDelay = d }
}

type registration struct {
	key   QueryKey
	fetch FetchFn
	opts  queryOptions
}

// inflight marks a fetch that has not settled yet. At most one exists per
// key and generation.
type inflight struct {
	key  QueryKey
	gen  uint64
	done chan struct{}

	// guarded by executor.mu
	revalidate bool

	// set before done is closed
	value     any
	err       error
	discarded bool
	restarted bool
}

// executor runs fetches on behalf of the store.
type executor struct {
	store    *Store
	gateway  CacheService
	notifier Notifier
	logger   logging.Logger
	defaults queryOptions
	timeout  time.Duration
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[string]*inflight

	// last fetcher seen per key, used to refetch on invalidation
	registry *xsync.MapOf[string, registration]
}

func newExecutor(store *Store, gateway CacheService, notifier Notifier, logger logging.Logger, cfg Config, now func() time.Time) *executor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &executor{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		defaults: queryOptions{
			enabled:    true,
			staleTime:  cfg.StaleTime,
			retry:      cfg.Retry,
			retryDelay: cfg.RetryDelay,
		},
		timeout:  cfg.FetchTimeout,
		now:      now,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]*inflight),
		registry: xsync.NewMapOf[string, registration](),
	}
	store.attach(e)
	return e
}

func (e *executor) options(opts []QueryOption) queryOptions {
	o := e.defaults
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// memoKey scopes gateway memos to a store generation so results of fetches
// that finish after a Reset can never be served.
func memoKey(gen uint64, id string) string {
	return fmt.Sprintf("g%d%s%s", gen, KeySeparator, id)
}

// ensureFresh starts a fetch for key unless one is already in flight or the
// entry is fresh. It returns the in-flight request, if any, and whether the
// query was enabled.
func (e *executor) ensureFresh(key QueryKey, fetch FetchFn, opts ...QueryOption) (*inflight, bool) {
	o := e.options(opts)
	if !o.enabled || fetch == nil {
		return nil, false
	}
	if e.ctx.Err() != nil {
		return nil, true
	}

	id := e.store.ID(key)
	reg := registration{key: key.clone(), fetch: fetch, opts: o}
	reg.opts.force = false
	e.registry.Store(id, reg)

	return e.start(id, reg, o)
}

func (e *executor) start(id string, reg registration, o queryOptions) (*inflight, bool) {
	e.mu.Lock()
	gen := e.store.Generation()
	if f, ok := e.inflight[id]; ok && f.gen == gen {
		e.mu.Unlock()
		return f, true
	}
	entry, exists := e.store.Get(reg.key)
	if exists && !o.force && entry.IsFresh(o.staleTime, e.now()) {
		e.mu.Unlock()
		return nil, true
	}
	f := &inflight{key: reg.key, gen: gen, done: make(chan struct{})}
	e.inflight[id] = f
	e.mu.Unlock()

	// Only an entry created by a subscription that never fetched may share
	// a memo; any other fetch must reach the fetcher.
	if o.force || !exists || entry.Stale || !entry.FetchedAt.IsZero() {
		_ = e.gateway.Delete(e.ctx, memoKey(gen, id))
	}

	e.store.setEntryIf(gen, reg.key, WithStatus(StatusLoading))
	e.logger.Debug("fetch started", "key", id, "generation", gen)

	go e.run(id, f, reg.fetch, o)
	return f, true
}

func (e *executor) run(id string, f *inflight, fetch FetchFn, o queryOptions) {
	value, err := e.fetchWithRetry(id, f.gen, fetch, o)

	e.mu.Lock()
	keepStale := f.revalidate
	e.mu.Unlock()

	var applied bool
	if err != nil {
		applied = e.store.setEntryIf(f.gen, f.key,
			WithStatus(StatusError),
			WithError(err),
			incrementFailures(),
		)
		if applied && e.ctx.Err() == nil {
			e.logger.Warn("fetch failed", "key", id, "error", err)
			e.notifier.NotifyFailure(UserMessage(err))
		}
	} else {
		patches := []Patch{
			WithData(value),
			WithStatus(StatusSuccess),
			WithError(nil),
			WithFetchedAt(e.now()),
			resetFailures(),
		}
		if keepStale {
			patches = append(patches, MarkStale())
		} else {
			patches = append(patches, ClearStale())
		}
		applied = e.store.setEntryIf(f.gen, f.key, patches...)
	}

	e.mu.Lock()
	if current, ok := e.inflight[id]; ok && current == f {
		delete(e.inflight, id)
	}
	again := f.revalidate && applied
	e.mu.Unlock()

	f.value, f.err = value, err
	f.discarded = !applied
	f.restarted = again
	close(f.done)

	if again {
		if reg, ok := e.registry.Load(id); ok {
			e.start(id, reg, withForce(reg.opts))
		}
	}
}

func withForce(o queryOptions) queryOptions {
	o.force = true
	return o
}

func (e *executor) fetchWithRetry(id string, gen uint64, fetch FetchFn, o queryOptions) (any, error) {
	backoff := newBackoff(o.retryDelay)
	for attempt := 0; ; attempt++ {
		value, err := e.fetchOnce(id, gen, fetch)
		if err == nil {
			return value, nil
		}
		if attempt >= o.retry || !isRetryable(err) || e.ctx.Err() != nil {
			return nil, err
		}
		delay := backoff.forAttempt(attempt)
		e.logger.Debug("retrying fetch", "key", id, "attempt", attempt+1, "delay", delay, "error", err)
		if err := sleepContext(e.ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (e *executor) fetchOnce(id string, gen uint64, fetch FetchFn) (value any, err error) {
	ctx := e.ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.gateway.GetOrFetch(ctx, memoKey(gen, id), func(ctx context.Context) (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				v, err = nil, panicError("fetch "+id, r)
			}
		}()
		return fetch(ctx)
	})
}

// invalidated drops gateway memos for every known key matched by m, then
// refetches the subscribed ones.
func (e *executor) invalidated(m Matcher, subscribed []QueryKey) {
	gen := e.store.Generation()
	e.registry.Range(func(id string, reg registration) bool {
		if m.Match(reg.key) {
			_ = e.gateway.Delete(e.ctx, memoKey(gen, id))
		}
		return true
	})
	for _, key := range subscribed {
		e.revalidate(key)
	}
}

// evicted forgets the fetcher and the memo of an entry dropped from the
// store.
func (e *executor) evicted(id string) {
	e.registry.Delete(id)
	_ = e.gateway.Delete(e.ctx, memoKey(e.store.Generation(), id))
}

// revalidate refetches key with its registered fetcher. When a fetch is
// already in flight its result may predate the write, so it is kept stale and
// exactly one follow-up fetch runs after it settles.
func (e *executor) revalidate(key QueryKey) {
	id := e.store.ID(key)
	reg, ok := e.registry.Load(id)
	if !ok {
		return
	}

	e.mu.Lock()
	if f, ok := e.inflight[id]; ok && f.gen == e.store.Generation() {
		f.revalidate = true
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.start(id, reg, reg.opts)
}

// reset forgets in-flight markers, registrations that are no longer
// subscribed and the memos of the previous generation. kept holds the ids
// that survived the store reset.
func (e *executor) reset(previous uint64, kept []string) {
	e.mu.Lock()
	e.inflight = make(map[string]*inflight)
	e.mu.Unlock()

	keep := make(map[string]struct{}, len(kept))
	for _, id := range kept {
		keep[id] = struct{}{}
	}
	e.registry.Range(func(id string, _ registration) bool {
		if _, ok := keep[id]; !ok {
			e.registry.Delete(id)
		}
		return true
	})
	_ = e.gateway.DeleteByPrefix(e.ctx, fmt.Sprintf("g%d%s", previous, KeySeparator))
}

func (e *executor) dispose() {
	e.cancel()
	e.mu.Lock()
	e.inflight = make(map[string]*inflight)
	e.mu.Unlock()
	e.registry.Clear()
	_ = e.gateway.Clear(context.Background())
}

// pending returns the in-flight request for key in the current generation.
func (e *executor) pending(key QueryKey) (*inflight, bool) {
	id := e.store.ID(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.inflight[id]
	if !ok || f.gen != e.store.Generation() {
		return nil, false
	}
	return f, true
}

