package testsupport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-tender-cache/data"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type row struct {
	bun.BaseModel `bun:"table:rows"`

	ID        string          `bun:"id,pk"`
	CompanyID string          `bun:"company_id"`
	Amount    decimal.Decimal `bun:"amount"`
	OpenedAt  *time.Time      `bun:"opened_at"`
	Note      string          `bun:"-"`
}

func ids(rows []row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestMemoryTable_SelectFiltersAndOrders(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	table := NewMemoryTable("rows",
		row{ID: "a", CompanyID: "C1", Amount: decimal.RequireFromString("10.5"), OpenedAt: &late},
		row{ID: "b", CompanyID: "C2", Amount: decimal.RequireFromString("2")},
		row{ID: "c", CompanyID: "C1", Amount: decimal.RequireFromString("9.75"), OpenedAt: &early},
		row{ID: "d", CompanyID: "C1", Amount: decimal.RequireFromString("100")},
	)
	ctx := context.Background()

	got, err := table.Select(ctx, data.Where(data.Eq("company_id", "C1")).OrderBy(data.Asc("amount")))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c", "a", "d"}, ids(got)); diff != "" {
		t.Errorf("by amount (-want +got):\n%s", diff)
	}

	got, _ = table.Select(ctx, data.Where(data.Eq("company_id", "C1")).OrderBy(data.Desc("opened_at")).Take(2))
	if diff := cmp.Diff([]string{"a", "c"}, ids(got)); diff != "" {
		t.Errorf("by opened_at desc (-want +got):\n%s", diff)
	}

	got, _ = table.Select(ctx, data.Where(data.Eq("note", "x")))
	if len(got) != 0 {
		t.Errorf("ignored column must not match, got %v", ids(got))
	}
	if table.Selects() != 3 {
		t.Errorf("expected 3 selects, got %d", table.Selects())
	}
}

func TestMemoryTable_InsertDelete(t *testing.T) {
	table := NewMemoryTable[row]("rows")
	ctx := context.Background()

	table.Insert(ctx, row{ID: "a", CompanyID: "C1"})
	table.Insert(ctx, row{ID: "b", CompanyID: "C1"})
	if err := table.Delete(ctx, data.Eq("id", "a"), data.Eq("company_id", "C1")); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"b"}, ids(table.Rows())); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
	if table.Inserts() != 2 || table.Deletes() != 1 {
		t.Errorf("unexpected counters: inserts=%d deletes=%d", table.Inserts(), table.Deletes())
	}
}

func TestMemoryTable_Failures(t *testing.T) {
	table := NewMemoryTable[row]("rows")
	boom := errors.New("boom")

	table.FailSelect(boom)
	table.FailInsert(boom)
	table.FailDelete(boom)

	ctx := context.Background()
	if _, err := table.Select(ctx, data.Query{}); !errors.Is(err, boom) {
		t.Errorf("Select: %v", err)
	}
	if _, err := table.Insert(ctx, row{ID: "x"}); !errors.Is(err, boom) {
		t.Errorf("Insert: %v", err)
	}
	if err := table.Delete(ctx); !errors.Is(err, boom) {
		t.Errorf("Delete: %v", err)
	}
	if len(table.Rows()) != 0 {
		t.Error("failed insert stored a row")
	}
}

func TestMemoryTable_Gate(t *testing.T) {
	table := NewMemoryTable("rows", row{ID: "a"})
	table.Block()

	done := make(chan []row, 1)
	go func() {
		rows, _ := table.Select(context.Background(), data.Query{})
		done <- rows
	}()

	select {
	case <-done:
		t.Fatal("Select returned while blocked")
	case <-time.After(20 * time.Millisecond):
	}

	table.Release()
	select {
	case rows := <-done:
		if len(rows) != 1 {
			t.Fatalf("unexpected rows %v", rows)
		}
	case <-time.After(time.Second):
		t.Fatal("Select did not return after Release")
	}

	ctx, cancel := context.WithCancel(context.Background())
	table.Block()
	cancel()
	if _, err := table.Select(ctx, data.Query{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	table.Release()
}
