package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.GCTime = 0
	cfg.Retry = 0
	cfg.RetryDelay = time.Millisecond
	cfg.FetchTimeout = time.Second
	return cfg
}

func newTestClient(t *testing.T, opts ...ClientOption) (*Client, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	client, err := NewClient(testConfig(), append([]ClientOption{WithNotifier(n)}, opts...)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(client.Dispose)
	return client, n
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (r *recordingNotifier) NotifySuccess(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, msg)
}

func (r *recordingNotifier) NotifyFailure(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, msg)
}

func (r *recordingNotifier) Successes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.successes...)
}

func (r *recordingNotifier) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

// countingFetch counts calls and returns the call number. When gated, every
// call blocks until release is called.
type countingFetch struct {
	calls   atomic.Int32
	gate    chan struct{}
	once    sync.Once
	started chan struct{}
	err     error
}

func newCountingFetch() *countingFetch {
	return &countingFetch{started: make(chan struct{}, 64)}
}

func newGatedFetch() *countingFetch {
	f := newCountingFetch()
	f.gate = make(chan struct{})
	return f
}

func (f *countingFetch) release() {
	f.once.Do(func() { close(f.gate) })
}

func (f *countingFetch) Count() int { return int(f.calls.Load()) }

func (f *countingFetch) Fetch(ctx context.Context) (any, error) {
	n := f.calls.Add(1)
	f.started <- struct{}{}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return int(n), nil
}

func (f *countingFetch) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not started")
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func waitStatus(t *testing.T, c *Client, key QueryKey, status Status) Entry {
	t.Helper()
	var entry Entry
	eventually(t, func() bool {
		e, ok := c.Get(key)
		entry = e
		return ok && e.Status == status && !c.InFlight(key)
	}, "entry "+key.String()+" to reach "+string(status))
	return entry
}
