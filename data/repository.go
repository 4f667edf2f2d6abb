package data

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryTable serves a Table from a go-repository-bun Repository.
type RepositoryTable[T any] struct {
	name string
	repo repository.Repository[T]
}

var _ Table[any] = (*RepositoryTable[any])(nil)

// FromRepository adapts repo. name is the table name used in logs and errors.
func FromRepository[T any](name string, repo repository.Repository[T]) *RepositoryTable[T] {
	return &RepositoryTable[T]{name: name, repo: repo}
}

func (t *RepositoryTable[T]) Name() string { return t.name }

func (t *RepositoryTable[T]) Select(ctx context.Context, q Query) ([]T, error) {
	rows, _, err := t.repo.List(ctx, SelectCriteria(q)...)
	if err != nil {
		return nil, Classify(err, "select "+t.name)
	}
	return rows, nil
}

func (t *RepositoryTable[T]) Insert(ctx context.Context, row T) (T, error) {
	created, err := t.repo.Create(ctx, row)
	if err != nil {
		var zero T
		return zero, Classify(err, "insert "+t.name)
	}
	return created, nil
}

func (t *RepositoryTable[T]) Delete(ctx context.Context, filters ...Filter) error {
	if err := t.repo.DeleteWhere(ctx, DeleteCriteria(filters...)...); err != nil {
		return Classify(err, "delete "+t.name)
	}
	return nil
}

// SelectCriteria translates q into bun select criteria.
func SelectCriteria(q Query) []repository.SelectCriteria {
	criteria := make([]repository.SelectCriteria, 0, len(q.Filters)+len(q.Order)+1)
	for _, f := range q.Filters {
		f := f
		criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Where("? = ?", bun.Ident(f.Column), f.Value)
		})
	}
	for _, o := range q.Order {
		o := o
		criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
			if o.Desc {
				return sq.OrderExpr("? DESC", bun.Ident(o.Column))
			}
			return sq.OrderExpr("? ASC", bun.Ident(o.Column))
		})
	}
	if q.Limit > 0 {
		limit := q.Limit
		criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Limit(limit)
		})
	}
	return criteria
}

// DeleteCriteria translates filters into bun delete criteria.
func DeleteCriteria(filters ...Filter) []repository.DeleteCriteria {
	criteria := make([]repository.DeleteCriteria, 0, len(filters))
	for _, f := range filters {
		f := f
		criteria = append(criteria, func(dq *bun.DeleteQuery) *bun.DeleteQuery {
			return dq.Where("? = ?", bun.Ident(f.Column), f.Value)
		})
	}
	return criteria
}
