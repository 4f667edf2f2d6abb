package testsupport

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-tender-cache/data"
)

// MemoryTable is an in-memory data.Table. Filters and orders resolve columns
// through the bun struct tags of T. Calls are counted, can be made to fail
// and can be held behind a gate.
type MemoryTable[T any] struct {
	name string

	mu        sync.Mutex
	rows      []T
	selects   int
	inserts   int
	deletes   int
	selectErr error
	insertErr error
	deleteErr error
	gate      chan struct{}
}

var _ data.Table[struct{}] = (*MemoryTable[struct{}])(nil)

// NewMemoryTable returns a table named name seeded with rows.
func NewMemoryTable[T any](name string, rows ...T) *MemoryTable[T] {
	return &MemoryTable[T]{name: name, rows: append([]T(nil), rows...)}
}

func (m *MemoryTable[T]) Name() string { return m.name }

func (m *MemoryTable[T]) Select(ctx context.Context, q data.Query) ([]T, error) {
	m.mu.Lock()
	m.selects++
	gate, err := m.gate, m.selectErr
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	var out []T
	for _, row := range m.rows {
		if matches(row, q.Filters) {
			out = append(out, row)
		}
	}
	m.mu.Unlock()

	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				a, aok := column(out[i], o.Column)
				b, bok := column(out[j], o.Column)
				c := compare(a, aok, b, bok)
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryTable[T]) Insert(_ context.Context, row T) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		var zero T
		return zero, m.insertErr
	}
	m.rows = append(m.rows, row)
	return row, nil
}

func (m *MemoryTable[T]) Delete(_ context.Context, filters ...data.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.rows[:0]
	for _, row := range m.rows {
		if !matches(row, filters) {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return nil
}

// Rows returns a copy of the stored rows.
func (m *MemoryTable[T]) Rows() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.rows...)
}

// Selects returns how many times Select was called.
func (m *MemoryTable[T]) Selects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selects
}

func (m *MemoryTable[T]) Inserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

func (m *MemoryTable[T]) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

// FailSelect makes Select return err until called again with nil.
func (m *MemoryTable[T]) FailSelect(err error) {
	m.mu.Lock()
	m.selectErr = err
	m.mu.Unlock()
}

func (m *MemoryTable[T]) FailInsert(err error) {
	m.mu.Lock()
	m.insertErr = err
	m.mu.Unlock()
}

func (m *MemoryTable[T]) FailDelete(err error) {
	m.mu.Lock()
	m.deleteErr = err
	m.mu.Unlock()
}

// Block holds every Select until Release is called.
func (m *MemoryTable[T]) Block() {
	m.mu.Lock()
	m.gate = make(chan struct{})
	m.mu.Unlock()
}

func (m *MemoryTable[T]) Release() {
	m.mu.Lock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
	m.mu.Unlock()
}

func matches(row any, filters []data.Filter) bool {
	for _, f := range filters {
		v, ok := column(row, f.Column)
		if !ok || !equal(v, f.Value) {
			return false
		}
	}
	return true
}

// column returns the value of the field whose bun (or json) tag names col.
func column(row any, col string) (any, bool) {
	rv := reflect.Indirect(reflect.ValueOf(row))
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		if columnName(field) == col {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

func columnName(field reflect.StructField) string {
	for _, tag := range []string{"bun", "json"} {
		name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
		if name == "-" || strings.HasPrefix(name, "table:") {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func equal(a, b any) bool {
	a, b = deref(a), deref(b)
	if reflect.DeepEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compare orders column values; missing and nil values sort first.
func compare(a any, aok bool, b any, bok bool) int {
	if !aok || !bok {
		return boolCmp(aok, bok)
	}
	a, b = deref(a), deref(b)
	if a == nil || b == nil {
		return boolCmp(a != nil, b != nil)
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	// decimal.Decimal and friends
	if na, ok := a.(interface{ Float64() (float64, bool) }); ok {
		if nb, ok := b.(interface{ Float64() (float64, bool) }); ok {
			fa, _ := na.Float64()
			fb, _ := nb.Float64()
			return floatCmp(fa, fb)
		}
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch {
	case ra.CanInt() && rb.CanInt():
		return floatCmp(float64(ra.Int()), float64(rb.Int()))
	case ra.CanUint() && rb.CanUint():
		return floatCmp(float64(ra.Uint()), float64(rb.Uint()))
	case ra.CanFloat() && rb.CanFloat():
		return floatCmp(ra.Float(), rb.Float())
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func floatCmp(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolCmp(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
