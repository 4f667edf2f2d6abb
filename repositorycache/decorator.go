package repositorycache

import (
	"context"
	"fmt"
	"reflect"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tender-cache/cache"
	"github.com/goliatone/go-tender-cache/data"
	"github.com/goliatone/go-tender-cache/pkg/logging"
)

// CachedTable decorates a data.Table with the query cache: reads go through
// the client under caller supplied keys and writes run as mutations that
// invalidate the table's scope once they succeed.
type CachedTable[T any] struct {
	base      data.Table[T]
	client    *cache.Client
	namespace string
	scope     func(row T) []cache.Matcher
	logger    logging.Logger
}

// Option configures a CachedTable.
type Option[T any] func(*CachedTable[T])

// WithNamespace sets the first key element of the table's queries. It
// defaults to the kebab-case name of T.
func WithNamespace[T any](namespace string) Option[T] {
	return func(c *CachedTable[T]) {
		if namespace != "" {
			c.namespace = namespace
		}
	}
}

// WithScope sets the keys a write of row affects. Without it every write
// invalidates the whole namespace.
func WithScope[T any](scope func(row T) []cache.Matcher) Option[T] {
	return func(c *CachedTable[T]) { c.scope = scope }
}

// New wraps base.
func New[T any](client *cache.Client, base data.Table[T], opts ...Option[T]) *CachedTable[T] {
	c := &CachedTable[T]{
		base:      base,
		client:    client,
		namespace: defaultNamespace[T](),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = client.Logger().With("table", base.Name(), "namespace", c.namespace)
	return c
}

func defaultNamespace[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return kebab(t.Name())
}

func (c *CachedTable[T]) Namespace() string { return c.namespace }

// Key builds a query key inside the table's namespace.
func (c *CachedTable[T]) Key(parts ...any) cache.QueryKey {
	return cache.Key(append([]any{c.namespace}, parts...)...)
}

// Base returns the undecorated table.
func (c *CachedTable[T]) Base() data.Table[T] { return c.base }

// ListFetcher returns the fetch function for q, e.g. to rekey a binding.
func (c *CachedTable[T]) ListFetcher(q data.Query) func(ctx context.Context) ([]T, error) {
	return func(ctx context.Context) ([]T, error) {
		rows, err := c.base.Select(ctx, q)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []T{}
		}
		return rows, nil
	}
}

// FirstFetcher returns the fetch function for the first row of q. Zero rows
// yield nil, not an error.
func (c *CachedTable[T]) FirstFetcher(q data.Query) func(ctx context.Context) (*T, error) {
	return func(ctx context.Context) (*T, error) {
		return data.Optional(ctx, c.base, q)
	}
}

// List reads the rows of q under key.
func (c *CachedTable[T]) List(ctx context.Context, key cache.QueryKey, q data.Query, opts ...cache.QueryOption) ([]T, error) {
	return cache.Query(ctx, c.client, key, c.ListFetcher(q), opts...)
}

// First reads the first row of q under key, or nil when there is none.
func (c *CachedTable[T]) First(ctx context.Context, key cache.QueryKey, q data.Query, opts ...cache.QueryOption) (*T, error) {
	return cache.Query(ctx, c.client, key, c.FirstFetcher(q), opts...)
}

// WatchList binds onChange to the rows of q under key.
func (c *CachedTable[T]) WatchList(key cache.QueryKey, q data.Query, onChange func(cache.Result[[]T]), opts ...cache.QueryOption) *cache.Binding {
	return cache.Watch(c.client, key, c.ListFetcher(q), onChange, opts...)
}

func (c *CachedTable[T]) WatchFirst(key cache.QueryKey, q data.Query, onChange func(cache.Result[*T]), opts ...cache.QueryOption) *cache.Binding {
	return cache.Watch(c.client, key, c.FirstFetcher(q), onChange, opts...)
}

// RekeyList moves a binding created by WatchList to the rows of q under key.
func (c *CachedTable[T]) RekeyList(b *cache.Binding, key cache.QueryKey, q data.Query, opts ...cache.QueryOption) {
	b.Rekey(key, cache.Erase(c.ListFetcher(q)), opts...)
}

// RekeyFirst is RekeyList for bindings created by WatchFirst.
func (c *CachedTable[T]) RekeyFirst(b *cache.Binding, key cache.QueryKey, q data.Query, opts ...cache.QueryOption) {
	b.Rekey(key, cache.Erase(c.FirstFetcher(q)), opts...)
}

// Write describes the user facing side of a mutation.
type Write struct {
	SuccessMessage string
	FailureMessage string
	// Invalidate is added to the table's scope.
	Invalidate []cache.Matcher
	// Validate runs inside the mutation before the write. An error aborts
	// the write and is reported like any other failure.
	Validate func() error
}

func (w Write) check() error {
	if w.Validate == nil {
		return nil
	}
	return w.Validate()
}

// Create inserts row and invalidates the scope of the stored row.
func (c *CachedTable[T]) Create(ctx context.Context, row T, w Write) (T, error) {
	return cache.Mutate(ctx, c.client, cache.Mutation[T]{
		Name: "create_" + c.namespace,
		Do: func(ctx context.Context) (T, error) {
			if err := w.check(); err != nil {
				var zero T
				return zero, err
			}
			return c.base.Insert(ctx, row)
		},
		Invalidates: func(created T) []cache.Matcher {
			return append(c.scopeOf(created), w.Invalidate...)
		},
		SuccessMessage: w.SuccessMessage,
		FailureMessage: w.FailureMessage,
	})
}

// Delete removes row by its ID field and invalidates its scope.
func (c *CachedTable[T]) Delete(ctx context.Context, row T, w Write) error {
	id, err := extractID(row)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "cannot delete "+c.base.Name()+" row").
			WithTextCode("MISSING_ID")
	}
	_, err = cache.Mutate(ctx, c.client, cache.Mutation[T]{
		Name: "delete_" + c.namespace,
		Do: func(ctx context.Context) (T, error) {
			if err := w.check(); err != nil {
				return row, err
			}
			return row, c.base.Delete(ctx, data.Eq("id", id))
		},
		Invalidates: func(deleted T) []cache.Matcher {
			return append(c.scopeOf(deleted), w.Invalidate...)
		},
		SuccessMessage: w.SuccessMessage,
		FailureMessage: w.FailureMessage,
	})
	return err
}

// DeleteWhere removes every row matching filters. The affected rows are not
// known, so the whole namespace is invalidated.
func (c *CachedTable[T]) DeleteWhere(ctx context.Context, w Write, filters ...data.Filter) error {
	_, err := cache.Mutate(ctx, c.client, cache.Mutation[struct{}]{
		Name: "delete_where_" + c.namespace,
		Do: func(ctx context.Context) (struct{}, error) {
			if err := w.check(); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, c.base.Delete(ctx, filters...)
		},
		Invalidates: func(struct{}) []cache.Matcher {
			return append([]cache.Matcher{cache.Prefix(c.Key())}, w.Invalidate...)
		},
		SuccessMessage: w.SuccessMessage,
		FailureMessage: w.FailureMessage,
	})
	return err
}

func (c *CachedTable[T]) scopeOf(row T) []cache.Matcher {
	if c.scope == nil {
		return []cache.Matcher{cache.Prefix(c.Key())}
	}
	matchers := c.scope(row)
	c.logger.Debug("write scope", "matchers", len(matchers))
	return append([]cache.Matcher(nil), matchers...)
}

// extractID returns the ID field of record.
func extractID(record any) (string, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", fmt.Errorf("nil record")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("record of kind %s has no ID field", v.Kind())
	}

	for _, fieldName := range []string{"ID", "Id"} {
		field := v.FieldByName(fieldName)
		if field.IsValid() && field.CanInterface() {
			id := fmt.Sprintf("%v", field.Interface())
			if id == "" {
				return "", fmt.Errorf("record has an empty %s", fieldName)
			}
			return id, nil
		}
	}
	return "", fmt.Errorf("no ID field found in record")
}
