package cache

import "context"

// FetchFn reads a query result from the data collaborator.
type FetchFn = func(ctx context.Context) (any, error)

// CacheService is the fetch gateway every query read goes through. The
// default implementation memoizes results in sturdyc; invalidation deletes
// the memo so a refetch reaches the source.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Clear(ctx context.Context) error
}

// Notifier is the user facing notification channel, e.g. toasts. Calls must
// not block the caller.
type Notifier interface {
	NotifySuccess(message string)
	NotifyFailure(message string)
}

type nopNotifier struct{}

func (nopNotifier) NotifySuccess(string) {}
func (nopNotifier) NotifyFailure(string) {}

// Erase adapts a typed fetch function to FetchFn.
func Erase[T any](fetch func(ctx context.Context) (T, error)) FetchFn {
	if fetch == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}

// As converts cached data to T. A nil value yields the zero T.
func As[T any](data any) (T, error) {
	var zero T
	if data == nil {
		return zero, nil
	}
	v, ok := data.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return v, nil
}
