package data

import (
	"fmt"
	"strings"
)

// Filter is an equality condition on a column.
type Filter struct {
	Column string
	Value  any
}

// Eq returns a Filter matching rows where column equals value.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Order sorts results by a column.
type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order { return Order{Column: column} }

func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Query selects rows from a Table. The zero Query selects everything.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
}

// Where returns a Query with the given filters.
func Where(filters ...Filter) Query {
	return Query{Filters: filters}
}

// OrderBy returns a copy of q with orders appended.
func (q Query) OrderBy(orders ...Order) Query {
	q.Order = append(append([]Order(nil), q.Order...), orders...)
	return q
}

// Take returns a copy of q limited to n rows.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

func (q Query) String() string {
	var b strings.Builder
	for i, f := range q.Filters {
		if i > 0 {
			b.WriteString(" and ")
		}
		fmt.Fprintf(&b, "%s=%v", f.Column, f.Value)
	}
	for _, o := range q.Order {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order %s %s", o.Column, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " limit %d", q.Limit)
	}
	return strings.TrimSpace(b.String())
}
