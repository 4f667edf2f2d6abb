package cache

import (
	"context"
)

// Mutation describes a write and the reads it affects.
type Mutation[R any] struct {
	// Name is used in logs only.
	Name string

	// Do performs the write. It is called exactly once per Mutate call.
	Do func(ctx context.Context) (R, error)

	// Invalidates returns the matchers to invalidate once Do succeeded. It
	// receives the write's result so keys can depend on it.
	Invalidates func(result R) []Matcher

	// SuccessMessage is sent to the notifier after invalidation. Empty means
	// no notification.
	SuccessMessage string

	// FailureMessage prefixes the error's user message on failure.
	FailureMessage string
}

// Mutate runs m against c. Invalidation happens strictly after Do returns
// successfully; on failure the cache is left untouched and the original error
// is returned.
func Mutate[R any](ctx context.Context, c *Client, m Mutation[R]) (R, error) {
	var zero R
	if c.disposed.Load() {
		return zero, ErrDisposed
	}
	if m.Do == nil {
		return zero, nilMutationError(m.Name)
	}

	logger := c.logger.With("mutation", m.Name)

	result, err := runMutation(ctx, m)
	if err != nil {
		logger.Warn("mutation failed", "error", err)
		msg := UserMessage(err)
		if m.FailureMessage != "" {
			msg = m.FailureMessage + ": " + msg
		}
		c.notifier.NotifyFailure(msg)
		return zero, err
	}

	if m.Invalidates != nil {
		matchers := m.Invalidates(result)
		matched := c.Invalidate(matchers...)
		logger.Debug("mutation invalidated keys", "matchers", len(matchers), "matched", len(matched))
	}
	if m.SuccessMessage != "" {
		c.notifier.NotifySuccess(m.SuccessMessage)
	}
	return result, nil
}

func runMutation[R any](ctx context.Context, m Mutation[R]) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			result, err = zero, panicError("mutation "+m.Name, r)
		}
	}()
	return m.Do(ctx)
}
