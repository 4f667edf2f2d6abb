// Package notify holds the user facing notification channels used by the
// cache client: log output, fan-out and an in-memory recorder.
package notify

import (
	"sync"

	"github.com/goliatone/go-tender-cache/cache"
	"github.com/goliatone/go-tender-cache/pkg/logging"
)

// Kind tells success and failure messages apart.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// Message is a single notification.
type Message struct {
	Kind Kind
	Text string
}

// Nop drops every message.
type Nop struct{}

func (Nop) NotifySuccess(string) {}
func (Nop) NotifyFailure(string) {}

// Log writes messages to a logger.
type Log struct {
	logger logging.Logger
}

func NewLog(logger logging.Logger) *Log {
	return &Log{logger: logging.OrNop(logger).With("component", "notify")}
}

func (l *Log) NotifySuccess(message string) {
	l.logger.Info("notification", "kind", KindSuccess, "message", message)
}

func (l *Log) NotifyFailure(message string) {
	l.logger.Warn("notification", "kind", KindFailure, "message", message)
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) NotifySuccess(message string) { r.add(KindSuccess, message) }

func (r *Recorder) NotifyFailure(message string) { r.add(KindFailure, message) }

func (r *Recorder) add(kind Kind, text string) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Kind: kind, Text: text})
	r.mu.Unlock()
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Texts returns the text of every message of kind.
func (r *Recorder) Texts(kind Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.messages {
		if m.Kind == kind {
			out = append(out, m.Text)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}

// Multi fans messages out to several notifiers. A panicking notifier does not
// stop delivery to the others.
type Multi struct {
	targets []cache.Notifier
	logger  logging.Logger
}

func NewMulti(logger logging.Logger, targets ...cache.Notifier) *Multi {
	var kept []cache.Notifier
	for _, t := range targets {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return &Multi{targets: kept, logger: logging.OrNop(logger)}
}

func (m *Multi) NotifySuccess(message string) {
	for _, t := range m.targets {
		m.deliver(func() { t.NotifySuccess(message) })
	}
}

func (m *Multi) NotifyFailure(message string) {
	for _, t := range m.targets {
		m.deliver(func() { t.NotifyFailure(message) })
	}
}

func (m *Multi) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("notifier panicked", "panic", r)
		}
	}()
	fn()
}

var (
	_ cache.Notifier = Nop{}
	_ cache.Notifier = (*Log)(nil)
	_ cache.Notifier = (*Recorder)(nil)
	_ cache.Notifier = (*Multi)(nil)
)
