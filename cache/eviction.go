package cache

import (
	"sync"
	"time"
)

// EvictionPolicy decides when an entry without subscribers is dropped.
// Idle is called when the subscriber count of id reaches zero; evict removes
// the entry if it is still idle at that point. Active is called when the
// entry gains a subscriber again.
type EvictionPolicy interface {
	Idle(id string, evict func())
	Active(id string)
	Stop()
}

// NeverEvict keeps every entry for the lifetime of the store.
type NeverEvict struct{}

func (NeverEvict) Idle(string, func()) {}
func (NeverEvict) Active(string)       {}
func (NeverEvict) Stop()               {}

// IdleTimeout evicts entries that stay unsubscribed for the configured duration.
type IdleTimeout struct {
	after time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewIdleTimeout returns a policy that evicts after d of inactivity.
func NewIdleTimeout(d time.Duration) *IdleTimeout {
	return &IdleTimeout{after: d, timers: make(map[string]*time.Timer)}
}

func (p *IdleTimeout) Idle(id string, evict func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if t, ok := p.timers[id]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(p.after, func() {
		p.mu.Lock()
		current, ok := p.timers[id]
		if ok && current == timer {
			delete(p.timers, id)
		}
		p.mu.Unlock()
		if ok && current == timer {
			evict()
		}
	})
	p.timers[id] = timer
}

func (p *IdleTimeout) Active(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
}

// Stop cancels every pending eviction.
func (p *IdleTimeout) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.stopped = true
}

// Pending returns the number of scheduled evictions.
func (p *IdleTimeout) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}
