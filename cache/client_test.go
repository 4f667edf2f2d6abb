package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = -1

	if _, err := NewClient(cfg); !goerrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClient_FetchDedupsConcurrentCallers(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("bid-results", "T1")
	fetch := newGatedFetch()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]any, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Fetch(context.Background(), key, fetch.Fetch)
		}(i)
	}

	fetch.waitStarted(t)
	eventually(t, func() bool { return client.InFlight(key) }, "fetch to be in flight")
	time.Sleep(10 * time.Millisecond)
	fetch.release()
	wg.Wait()

	if fetch.Count() != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", fetch.Count())
	}
	for i := range results {
		if errs[i] != nil || results[i] != 1 {
			t.Errorf("caller %d: got (%v, %v)", i, results[i], errs[i])
		}
	}
}

func TestClient_EnsureFreshTwiceWhileInFlight(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("tenders", "C1")
	fetch := newGatedFetch()

	client.EnsureFresh(key, fetch.Fetch)
	fetch.waitStarted(t)
	client.EnsureFresh(key, fetch.Fetch)

	entry, _ := client.Get(key)
	if entry.Status != StatusLoading {
		t.Fatalf("expected loading, got %s", entry.Status)
	}

	fetch.release()
	waitStatus(t, client, key, StatusSuccess)

	if fetch.Count() != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetch.Count())
	}
}

func TestClient_FreshEntryIsServedFromStore(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("categories", "C1")
	fetch := newCountingFetch()

	for i := 0; i < 3; i++ {
		got, err := client.Fetch(context.Background(), key, fetch.Fetch)
		if err != nil || got != 1 {
			t.Fatalf("fetch %d: got (%v, %v)", i, got, err)
		}
	}
	if fetch.Count() != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetch.Count())
	}

	got, err := client.Fetch(context.Background(), key, fetch.Fetch, Force())
	if err != nil || got != 2 {
		t.Fatalf("forced fetch: got (%v, %v)", got, err)
	}
}

func TestClient_StaleTimeAgesEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	client, _ := newTestClient(t, WithClock(clock))
	key := Key("tenders", "C1")
	fetch := newCountingFetch()

	client.Fetch(context.Background(), key, fetch.Fetch, StaleTime(time.Minute))
	client.Fetch(context.Background(), key, fetch.Fetch, StaleTime(time.Minute))
	if fetch.Count() != 1 {
		t.Fatalf("expected fresh entry to be reused, got %d fetches", fetch.Count())
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	got, _ := client.Fetch(context.Background(), key, fetch.Fetch, StaleTime(time.Minute))
	if got != 2 || fetch.Count() != 2 {
		t.Fatalf("expected aged entry to be refetched, got %v after %d fetches", got, fetch.Count())
	}
}

func TestClient_DisabledQueryNeverRuns(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("categories", nil)
	fetch := newCountingFetch()

	got, err := client.Fetch(context.Background(), key, fetch.Fetch, Enabled(false))
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
	client.EnsureFresh(key, fetch.Fetch, Enabled(false))

	if fetch.Count() != 0 {
		t.Fatalf("disabled query ran %d times", fetch.Count())
	}
}

func TestClient_FetchErrorIsRecordedAndNotified(t *testing.T) {
	client, notifier := newTestClient(t)
	key := Key("bid-results", "T1")
	fetch := newCountingFetch()
	fetch.err = goerrors.New("connection refused", goerrors.CategoryExternal)

	_, err := client.Fetch(context.Background(), key, fetch.Fetch)
	if err == nil {
		t.Fatal("expected error")
	}

	entry, _ := client.Get(key)
	if entry.Status != StatusError || !errors.Is(entry.Err, fetch.err) || entry.FailureCount != 1 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if got := notifier.Failures(); len(got) != 1 || got[0] != "connection refused" {
		t.Fatalf("unexpected failure notifications: %v", got)
	}
}

func TestClient_ErrorKeepsPreviousData(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("tenders", "C1")

	client.SetQueryData(key, "cached")
	_, err := client.Fetch(context.Background(), key, func(context.Context) (any, error) {
		return nil, errors.New("offline")
	}, Force())
	if err == nil {
		t.Fatal("expected error")
	}

	entry, _ := client.Get(key)
	if entry.Data != "cached" || entry.Status != StatusError {
		t.Fatalf("expected previous data to survive a failure, got %+v", entry)
	}
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	client, notifier := newTestClient(t)
	key := Key("tenders", "C1")

	var calls int
	got, err := client.Fetch(context.Background(), key, func(context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("temporary")
		}
		return "ok", nil
	}, Retry(2))

	if err != nil || got != "ok" || calls != 3 {
		t.Fatalf("got (%v, %v) after %d calls", got, err, calls)
	}
	if len(notifier.Failures()) != 0 {
		t.Fatalf("recovered fetch must not notify failure: %v", notifier.Failures())
	}
}

func TestClient_DoesNotRetryPermanentErrors(t *testing.T) {
	client, _ := newTestClient(t)

	tests := []struct {
		name string
		err  error
	}{
		{name: "validation", err: goerrors.New("bad filter", goerrors.CategoryValidation)},
		{name: "not found", err: goerrors.New("missing", goerrors.CategoryNotFound)},
		{name: "auth", err: goerrors.New("expired session", goerrors.CategoryAuth)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			_, err := client.Fetch(context.Background(), Key("retry", tt.name), func(context.Context) (any, error) {
				calls++
				return nil, tt.err
			}, Retry(3))
			if err == nil || calls != 1 {
				t.Fatalf("expected a single failed attempt, got %d calls and %v", calls, err)
			}
		})
	}
}

func TestClient_FetchPanicBecomesError(t *testing.T) {
	client, notifier := newTestClient(t)

	_, err := client.Fetch(context.Background(), Key("panics"), func(context.Context) (any, error) {
		panic("kaboom")
	})
	if err == nil {
		t.Fatal("expected panic to surface as an error")
	}
	if len(notifier.Failures()) != 1 {
		t.Fatalf("expected failure notification, got %v", notifier.Failures())
	}
}

func TestClient_InvalidateRefetchesSubscribedOnly(t *testing.T) {
	client, _ := newTestClient(t)
	subscribed := Key("bid-results", "T1")
	idle := Key("bid-results", "T2")
	subscribedFetch := newCountingFetch()
	idleFetch := newCountingFetch()

	b := client.Bind(subscribed, subscribedFetch.Fetch, nil)
	defer b.Close()
	waitStatus(t, client, subscribed, StatusSuccess)
	if _, err := client.Fetch(context.Background(), idle, idleFetch.Fetch); err != nil {
		t.Fatal(err)
	}

	matched := client.Invalidate(Prefix(Key("bid-results")))
	if len(matched) != 2 {
		t.Fatalf("expected 2 matched keys, got %v", matched)
	}

	eventually(t, func() bool { return subscribedFetch.Count() == 2 }, "subscribed key to refetch")
	waitStatus(t, client, subscribed, StatusSuccess)

	time.Sleep(20 * time.Millisecond)
	if idleFetch.Count() != 1 {
		t.Fatalf("unsubscribed key was refetched eagerly: %d", idleFetch.Count())
	}
	entry, _ := client.Get(idle)
	if !entry.Stale {
		t.Fatal("expected unsubscribed key to be stale")
	}

	got, err := client.Fetch(context.Background(), idle, idleFetch.Fetch)
	if err != nil || got != 2 {
		t.Fatalf("expected lazy revalidation on next read, got (%v, %v)", got, err)
	}
}

func TestClient_InvalidateAfterLastUnsubscribe(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("tenders", "C1")
	fetch := newCountingFetch()

	b := client.Bind(key, fetch.Fetch, nil)
	waitStatus(t, client, key, StatusSuccess)
	b.Close()

	entry, _ := client.Get(key)
	if entry.SubscriberCount != 0 {
		t.Fatalf("expected 0 subscribers, got %d", entry.SubscriberCount)
	}

	client.Invalidate(Exact(key))
	time.Sleep(20 * time.Millisecond)
	if fetch.Count() != 1 {
		t.Fatalf("expected no fetch without subscribers, got %d", fetch.Count())
	}
	if entry, _ := client.Get(key); !entry.Stale {
		t.Fatal("expected entry to be stale")
	}

	b = client.Bind(key, fetch.Fetch, nil)
	defer b.Close()
	eventually(t, func() bool { return fetch.Count() == 2 }, "refetch on new subscriber")
}

func TestClient_InvalidateDuringFetchRefetchesOnce(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("bid-results", "T1")
	fetch := newGatedFetch()

	b := client.Bind(key, fetch.Fetch, nil)
	defer b.Close()
	fetch.waitStarted(t)

	client.Invalidate(Exact(key))
	client.Invalidate(Exact(key))
	fetch.release()

	eventually(t, func() bool { return fetch.Count() == 2 }, "follow-up fetch")
	entry := waitStatus(t, client, key, StatusSuccess)
	if entry.Stale || entry.Data != 2 {
		t.Fatalf("expected fresh result of the follow-up fetch, got %+v", entry)
	}

	time.Sleep(20 * time.Millisecond)
	if fetch.Count() != 2 {
		t.Fatalf("expected exactly one follow-up fetch, got %d total", fetch.Count())
	}
}

func TestClient_FetchJoinsFollowUp(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("bid-results", "T1")
	fetch := newGatedFetch()

	b := client.Bind(key, fetch.Fetch, nil)
	defer b.Close()
	fetch.waitStarted(t)

	done := make(chan any, 1)
	go func() {
		v, _ := client.Fetch(context.Background(), key, fetch.Fetch)
		done <- v
	}()
	time.Sleep(5 * time.Millisecond)
	client.Invalidate(Exact(key))
	fetch.release()

	select {
	case v := <-done:
		if v != 2 {
			t.Fatalf("expected the post-write result, got %v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not return")
	}
}

func TestClient_ResetDiscardsInFlightResults(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("tenders", "C1")
	fetch := newGatedFetch()

	errc := make(chan error, 1)
	go func() {
		_, err := client.Fetch(context.Background(), key, fetch.Fetch)
		errc <- err
	}()
	fetch.waitStarted(t)

	client.Reset()
	fetch.release()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrReset) {
			t.Fatalf("expected ErrReset, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not return")
	}

	time.Sleep(10 * time.Millisecond)
	if _, ok := client.Get(key); ok {
		t.Fatal("result from before the reset leaked into the store")
	}

	got, err := client.Fetch(context.Background(), key, fetch.Fetch)
	if err != nil || got != 2 {
		t.Fatalf("expected a fresh fetch after reset, got (%v, %v)", got, err)
	}
}

func TestClient_ResetRefetchesBoundKeys(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("tenders", "C1")
	fetch := newCountingFetch()

	b := client.Bind(key, fetch.Fetch, nil)
	defer b.Close()
	waitStatus(t, client, key, StatusSuccess)

	client.Reset()
	entry, _ := client.Get(key)
	if entry.Data != nil || entry.Status != StatusIdle {
		t.Fatalf("expected idle entry without data after reset, got %+v", entry)
	}

	b.Refetch()
	entry = waitStatus(t, client, key, StatusSuccess)
	if entry.Data != 2 {
		t.Fatalf("expected a new fetch after reset, got %v", entry.Data)
	}
}

func TestClient_SetQueryData(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("compliance-report", "T1")
	fetch := newCountingFetch()

	client.SetQueryData(key, "seeded")
	got, err := client.Fetch(context.Background(), key, fetch.Fetch)
	if err != nil || got != "seeded" {
		t.Fatalf("got (%v, %v)", got, err)
	}
	if fetch.Count() != 0 {
		t.Fatalf("seeded entry should be fresh, got %d fetches", fetch.Count())
	}
}

func TestClient_Dispose(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("tenders", "C1")
	fetch := newGatedFetch()

	errc := make(chan error, 1)
	go func() {
		_, err := client.Fetch(context.Background(), key, fetch.Fetch)
		errc <- err
	}()
	fetch.waitStarted(t)

	client.Dispose()

	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("expected in-flight fetch to fail after dispose")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not return after dispose")
	}

	if _, err := client.Fetch(context.Background(), key, fetch.Fetch); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
	client.Reset()
	client.Dispose()
}

func TestClient_FetchHonoursContext(t *testing.T) {
	client, _ := newTestClient(t)
	fetch := newGatedFetch()
	defer fetch.release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := client.Fetch(ctx, Key("slow"), fetch.Fetch); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestQuery_Typed(t *testing.T) {
	client, _ := newTestClient(t)

	got, err := Query(context.Background(), client, Key("typed"), func(context.Context) ([]string, error) {
		return []string{"a"}, nil
	})
	if err != nil || len(got) != 1 || got[0] != "a" {
		t.Fatalf("got (%v, %v)", got, err)
	}

	_, err = Query(context.Background(), client, Key("typed"), func(context.Context) (int, error) {
		return 1, nil
	})
	if !errors.Is(err, ErrInvalidResultType) {
		t.Fatalf("expected ErrInvalidResultType, got %v", err)
	}
}

func TestClient_NumericKeyPartsAreDistinct(t *testing.T) {
	client, _ := newTestClient(t)

	client.SetQueryData(Key("tenders", 1), "int")
	if _, ok := client.Get(Key("tenders", int64(1))); ok {
		t.Fatal("int64 part must not resolve to the int entry")
	}
	if _, ok := client.Get(Key("tenders", 1.0)); ok {
		t.Fatal("float part must not resolve to the int entry")
	}

	fetch := newCountingFetch()
	got, err := client.Fetch(context.Background(), Key("tenders", int64(1)), fetch.Fetch)
	if err != nil || got != 1 {
		t.Fatalf("got (%v, %v)", got, err)
	}
	if entry, _ := client.Get(Key("tenders", 1)); entry.Data != "int" {
		t.Fatalf("int entry was overwritten: %v", entry.Data)
	}
}

func TestClient_EvictedEntryFetchesAgain(t *testing.T) {
	cfg := testConfig()
	cfg.GCTime = 20 * time.Millisecond
	cfg.StaleTime = time.Minute

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Dispose()

	key := Key("bid-results", "T1")
	fetch := newCountingFetch()
	b := client.Bind(key, fetch.Fetch, nil)
	waitStatus(t, client, key, StatusSuccess)
	b.Close()

	eventually(t, func() bool { return client.Store().Len() == 0 }, "idle entry eviction")
	eventually(t, func() bool {
		_, ok := client.exec.registry.Load(client.Store().ID(key))
		return !ok
	}, "fetcher to be forgotten")

	got, err := client.Fetch(context.Background(), key, fetch.Fetch)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 || fetch.Count() != 2 {
		t.Fatalf("expected a new fetch after eviction, got %v with %d calls", got, fetch.Count())
	}
}

func TestClient_InvalidateOverlappingMatchers(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key("tenders", "C1")
	fetch := newCountingFetch()

	b := client.Bind(key, fetch.Fetch, nil)
	defer b.Close()
	waitStatus(t, client, key, StatusSuccess)

	matched := client.Invalidate(Exact(key), Prefix(Key("tenders")))
	if len(matched) != 1 {
		t.Fatalf("expected the key once, got %v", matched)
	}

	eventually(t, func() bool { return fetch.Count() == 2 }, "key to refetch")
	time.Sleep(20 * time.Millisecond)
	if fetch.Count() != 2 {
		t.Fatalf("expected exactly one refetch, got %d fetches", fetch.Count())
	}
}
