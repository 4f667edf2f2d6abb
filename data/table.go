package data

import "context"

// Table is the row level contract of the data collaborator.
type Table[T any] interface {
	// Name identifies the table in logs and cache keys.
	Name() string
	Select(ctx context.Context, q Query) ([]T, error)
	Insert(ctx context.Context, row T) (T, error)
	Delete(ctx context.Context, filters ...Filter) error
}

// Single returns the first row matched by q, or ErrNoRows.
func Single[T any](ctx context.Context, table Table[T], q Query) (T, error) {
	var zero T
	rows, err := table.Select(ctx, q.Take(1))
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, NoRows(table.Name(), q)
	}
	return rows[0], nil
}

// Optional is Single with the no-rows case mapped to nil.
func Optional[T any](ctx context.Context, table Table[T], q Query) (*T, error) {
	row, err := Single(ctx, table, q)
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
