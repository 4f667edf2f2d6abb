package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-tender-cache/pkg/logging"
)

// Listener receives the entry snapshot after every change to a subscribed key.
type Listener func(Entry)

type subscription struct {
	id uint64
	fn Listener
	// delivered is the highest entry version handed to fn.
	delivered atomic.Uint64
}

type storeEntry struct {
	Entry
	id string
	// subs is copy-on-write so notification can iterate a snapshot
	// without holding the store lock.
	subs []*subscription
}

// invalidationHook lets the query executor react to store changes: drop
// memoized fetch results, refetch subscribed keys after an invalidation and
// forget fetchers of evicted entries.
type invalidationHook interface {
	invalidated(m Matcher, subscribed []QueryKey)
	evicted(id string)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used for listener failures and evictions.
func WithStoreLogger(l logging.Logger) StoreOption {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

// WithStoreEviction sets the eviction policy. Defaults to NeverEvict.
func WithStoreEviction(p EvictionPolicy) StoreOption {
	return func(s *Store) {
		if p != nil {
			s.eviction = p
		}
	}
}

// WithStoreSerializer overrides the key serializer.
func WithStoreSerializer(ks KeySerializer) StoreOption {
	return func(s *Store) {
		if ks != nil {
			s.serializer = ks
		}
	}
}

// WithStoreClock overrides time.Now, mostly for tests.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the keyed cache of query entries. All state is guarded by one
// mutex; listeners run after the lock is released.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*storeEntry
	nextSubID  uint64
	generation uint64
	disposed   bool
	hook       invalidationHook

	serializer KeySerializer
	eviction   EvictionPolicy
	logger     logging.Logger
	now        func() time.Time
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:    make(map[string]*storeEntry),
		serializer: defaultSerializer,
		eviction:   NeverEvict{},
		logger:     logging.NewNopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) attach(h invalidationHook) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

// ID returns the canonical index string for key.
func (s *Store) ID(key QueryKey) string {
	return s.serializer.SerializeKey(key)
}

// Get returns a snapshot of the entry for key.
func (s *Store) Get(key QueryKey) (Entry, bool) {
	id := s.ID(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// Keys returns every cached key ordered by its serialized form.
func (s *Store) Keys() []QueryKey {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	keys := make([]QueryKey, len(ids))
	for i, id := range ids {
		keys[i] = s.entries[id].Key
	}
	s.mu.Unlock()
	return keys
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Generation changes on every Reset. Results of fetches started under an
// older generation are discarded.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// entryLocked returns the entry for id, creating an idle one if needed.
func (s *Store) entryLocked(id string, key QueryKey) (*storeEntry, bool) {
	if e, ok := s.entries[id]; ok {
		return e, false
	}
	e := &storeEntry{
		id: id,
		Entry: Entry{
			Key:       key.clone(),
			Status:    StatusIdle,
			UpdatedAt: s.now(),
		},
	}
	s.entries[id] = e
	return e, true
}

// Subscribe registers listener for changes to key and returns the handle
// that removes it. The handle is safe to call more than once.
func (s *Store) Subscribe(key QueryKey, listener Listener) (unsubscribe func()) {
	id := s.ID(key)

	s.mu.Lock()
	if s.disposed || listener == nil {
		s.mu.Unlock()
		return func() {}
	}
	e, _ := s.entryLocked(id, key)
	s.nextSubID++
	sub := &subscription{id: s.nextSubID, fn: listener}
	subs := make([]*subscription, len(e.subs), len(e.subs)+1)
	copy(subs, e.subs)
	e.subs = append(subs, sub)
	e.SubscriberCount++
	s.mu.Unlock()

	s.eviction.Active(id)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id, sub.id) })
	}
}

func (s *Store) unsubscribe(id string, subID uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	idx := -1
	for i, sub := range e.subs {
		if sub.id == subID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	subs := make([]*subscription, 0, len(e.subs)-1)
	subs = append(subs, e.subs[:idx]...)
	subs = append(subs, e.subs[idx+1:]...)
	e.subs = subs
	e.SubscriberCount--
	idle := e.SubscriberCount == 0 && !s.disposed
	s.mu.Unlock()

	if idle {
		s.eviction.Idle(id, func() { s.evictIfIdle(id) })
	}
}

func (s *Store) evictIfIdle(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.SubscriberCount > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook.evicted(id)
	}
	s.logger.Debug("evicted idle entry", "key", id)
}

// Remove drops the entry for key if it has no subscribers.
func (s *Store) Remove(key QueryKey) bool {
	id := s.ID(key)
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.SubscriberCount > 0 {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, id)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook.evicted(id)
	}
	return true
}

// SetEntry applies patches to the entry for key, creating it if absent, and
// notifies the entry's listeners.
func (s *Store) SetEntry(key QueryKey, patches ...Patch) {
	s.setEntry(false, 0, key, patches...)
}

// setEntryIf behaves like SetEntry but is a no-op unless the store is still
// at generation gen.
func (s *Store) setEntryIf(gen uint64, key QueryKey, patches ...Patch) bool {
	return s.setEntry(true, gen, key, patches...)
}

func (s *Store) setEntry(checkGen bool, gen uint64, key QueryKey, patches ...Patch) bool {
	id := s.ID(key)

	s.mu.Lock()
	if s.disposed || (checkGen && gen != s.generation) {
		s.mu.Unlock()
		return false
	}
	e, created := s.entryLocked(id, key)
	for _, patch := range patches {
		if patch != nil {
			patch(&e.Entry)
		}
	}
	e.UpdatedAt = s.now()
	e.Version++
	snapshot := e.Entry
	subs := e.subs
	s.mu.Unlock()

	if created && snapshot.SubscriberCount == 0 {
		s.eviction.Idle(id, func() { s.evictIfIdle(id) })
	}
	s.notify(snapshot, subs)
	return true
}

// Invalidate marks every entry matched by m as stale and returns the matched
// keys. Subscribed entries are refetched through the attached executor;
// unsubscribed ones revalidate on their next subscription.
func (s *Store) Invalidate(m Matcher) []QueryKey {
	if m == nil {
		return nil
	}

	type pending struct {
		entry Entry
		subs  []*subscription
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	ids := make([]string, 0)
	for id, e := range s.entries {
		if m.Match(e.Key) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	now := s.now()
	matched := make([]QueryKey, 0, len(ids))
	var subscribed []QueryKey
	notifications := make([]pending, 0, len(ids))
	for _, id := range ids {
		e := s.entries[id]
		e.Stale = true
		e.UpdatedAt = now
		e.Version++
		matched = append(matched, e.Key)
		if e.SubscriberCount > 0 {
			subscribed = append(subscribed, e.Key)
		}
		notifications = append(notifications, pending{entry: e.Entry, subs: e.subs})
	}
	hook := s.hook
	s.mu.Unlock()

	for _, n := range notifications {
		s.notify(n.entry, n.subs)
	}
	if hook != nil {
		hook.invalidated(m, subscribed)
	}
	return matched
}

// Reset clears session state: unsubscribed entries are dropped, subscribed
// ones return to idle without data, and the generation moves on so pending
// fetch results are discarded. It returns the ids that were kept.
func (s *Store) Reset() []string {
	type pending struct {
		entry Entry
		subs  []*subscription
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.generation++
	now := s.now()
	var kept []string
	var dropped []string
	var notifications []pending
	for id, e := range s.entries {
		if e.SubscriberCount == 0 {
			delete(s.entries, id)
			dropped = append(dropped, id)
			continue
		}
		e.Entry = Entry{
			Key:             e.Key,
			Status:          StatusIdle,
			UpdatedAt:       now,
			SubscriberCount: e.SubscriberCount,
			Version:         e.Version + 1,
		}
		kept = append(kept, id)
		notifications = append(notifications, pending{entry: e.Entry, subs: e.subs})
	}
	gen := s.generation
	s.mu.Unlock()

	for _, id := range dropped {
		s.eviction.Active(id)
	}
	for _, n := range notifications {
		s.notify(n.entry, n.subs)
	}
	s.logger.Info("query cache reset", "generation", gen, "kept", len(kept), "dropped", len(dropped))
	sort.Strings(kept)
	return kept
}

// Dispose clears the store and makes it inert. Subsequent subscriptions and
// writes are ignored.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.generation++
	s.entries = make(map[string]*storeEntry)
	s.hook = nil
	s.mu.Unlock()

	s.eviction.Stop()
}

// Disposed reports whether Dispose has been called.
func (s *Store) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// notify delivers entry to subs. Snapshots are taken under the lock but
// delivered after it, so a snapshot older than one a listener already got
// is dropped.
func (s *Store) notify(entry Entry, subs []*subscription) {
	for _, sub := range subs {
		if !sub.claim(entry.Version) {
			continue
		}
		s.callListener(entry, sub.fn)
	}
}

func (sub *subscription) claim(version uint64) bool {
	for {
		seen := sub.delivered.Load()
		if version <= seen {
			return false
		}
		if sub.delivered.CompareAndSwap(seen, version) {
			return true
		}
	}
}

// callListener isolates a single listener so a panic cannot affect the
// store or the remaining listeners.
func (s *Store) callListener(entry Entry, fn Listener) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked", "key", entry.Key.String(), "panic", r)
		}
	}()
	fn(entry)
}
