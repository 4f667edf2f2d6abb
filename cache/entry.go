package cache

import "time"

// Status is the fetch state of an entry. Staleness is tracked separately on
// Entry.Stale so a stale entry keeps showing its last known state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is a snapshot of the cached state for one QueryKey.
type Entry struct {
	Key             QueryKey
	Data            any
	Err             error
	Status          Status
	Stale           bool
	FetchedAt       time.Time
	UpdatedAt       time.Time
	SubscriberCount int
	FailureCount    int
	// Version increases with every change to the entry.
	Version uint64
}

// IsFresh reports whether the entry can be served without refetching.
// A zero staleTime means the entry only goes stale through invalidation.
func (e Entry) IsFresh(staleTime time.Duration, now time.Time) bool {
	if e.Status != StatusSuccess || e.Stale {
		return false
	}
	if staleTime > 0 && now.Sub(e.FetchedAt) >= staleTime {
		return false
	}
	return true
}

// HasData reports whether the entry holds a previously fetched value.
func (e Entry) HasData() bool {
	return !e.FetchedAt.IsZero() || e.Data != nil
}

// Patch mutates an entry inside Store.SetEntry.
type Patch func(*Entry)

func WithData(data any) Patch {
	return func(e *Entry) { e.Data = data }
}

// WithError records err. A nil err clears the previous error.
func WithError(err error) Patch {
	return func(e *Entry) { e.Err = err }
}

func WithStatus(status Status) Patch {
	return func(e *Entry) { e.Status = status }
}

func WithFetchedAt(t time.Time) Patch {
	return func(e *Entry) { e.FetchedAt = t }
}

func MarkStale() Patch {
	return func(e *Entry) { e.Stale = true }
}

func ClearStale() Patch {
	return func(e *Entry) { e.Stale = false }
}

func incrementFailures() Patch {
	return func(e *Entry) { e.FailureCount++ }
}

func resetFailures() Patch {
	return func(e *Entry) { e.FailureCount = 0 }
}
