package di

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-tender-cache/cache"
	"github.com/goliatone/go-tender-cache/data"
	"github.com/goliatone/go-tender-cache/tenders"
)

// TestConcurrentAccess checks that concurrent readers of one key share a
// single repository call.
func TestConcurrentAccess(t *testing.T) {
	container := testContainer(t)
	repos := newTenderRepos()
	for i := 2; i <= 100; i++ {
		repos.tenders.rows = append(repos.tenders.rows, tenders.Tender{
			ID:        fmt.Sprintf("T%d", i),
			CompanyID: "C1",
			Title:     fmt.Sprintf("Tender %d", i),
		})
	}
	svc, err := container.TenderService(repos.repositories().Tables(data.NewStaticSession(nil)))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	const numGoroutines = 50
	const operationsPerGoroutine = 20

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*operationsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				rows, err := svc.Tenders(ctx, "C1")
				if err != nil {
					errs <- err
					continue
				}
				if len(rows) != 100 {
					errs <- fmt.Errorf("expected 100 tenders, got %d", len(rows))
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if got := repos.tenders.callCount("List"); got != 1 {
		t.Errorf("expected concurrent readers to share 1 List call, got %d", got)
	}
}

// TestConcurrentReadWrite mixes category reads with category writes and
// checks the cache converges on the final row set.
func TestConcurrentReadWrite(t *testing.T) {
	container := testContainer(t)
	repos := newTenderRepos()
	svc, err := container.TenderService(repos.repositories().Tables(data.NewStaticSession(nil)))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	const writers = 5
	const writesPerWriter = 4

	var wg sync.WaitGroup
	errs := make(chan error, writers*writesPerWriter*2)

	for w := 0; w < writers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < writesPerWriter; i++ {
				if _, err := svc.CreateCategory(ctx, "C1", fmt.Sprintf("Category %d-%d", w, i)); err != nil {
					errs <- err
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < writesPerWriter; i++ {
				if _, err := svc.Categories(ctx, "C1"); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	want := writers * writesPerWriter
	waitUntil(t, func() bool {
		rows, err := svc.Categories(ctx, "C1")
		return err == nil && len(rows) == want
	}, fmt.Sprintf("%d categories", want))
}

// TestStaleTimeIntegration checks that a short stale time makes reads go
// back to the repository without any write.
func TestStaleTimeIntegration(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.StaleTime = 20 * time.Millisecond
	container, err := NewContainer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer container.Close()

	repos := newTenderRepos()
	svc, err := container.TenderService(repos.repositories().Tables(data.NewStaticSession(nil)))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := svc.BidResults(ctx, "T1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.BidResults(ctx, "T1"); err != nil {
		t.Fatal(err)
	}
	if got := repos.bidResults.callCount("List"); got != 1 {
		t.Fatalf("expected a fresh hit, got %d List calls", got)
	}

	time.Sleep(40 * time.Millisecond)

	if _, err := svc.BidResults(ctx, "T1"); err != nil {
		t.Fatal(err)
	}
	if got := repos.bidResults.callCount("List"); got != 2 {
		t.Fatalf("expected a refetch after the stale time, got %d List calls", got)
	}
}

func BenchmarkKeySerializationPerformance(b *testing.B) {
	serializer := cache.NewDefaultKeySerializer()

	benchmarks := []struct {
		name string
		key  cache.QueryKey
	}{
		{name: "namespace_only", key: cache.Key("tenders")},
		{name: "company", key: tenders.TendersKey("c0a8012e-7f3d-4b5e-9c1a-2d3e4f5a6b7c")},
		{name: "tender_and_page", key: cache.Key("bid-results", "T1", 2, true)},
		{name: "filter_map", key: cache.Key("tenders", "C1", map[string]any{
			"status": tenders.StatusOpen,
			"limit":  50,
		})},
		{name: "query_struct", key: cache.Key("tenders", data.Where(data.Eq("company_id", "C1")).OrderBy(data.Asc("closing_date")))},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = serializer.SerializeKey(bm.key)
			}
		})
	}
}

func BenchmarkCachedVsBaseRepository(b *testing.B) {
	ctx := context.Background()
	rows := make([]tenders.BidResult, 50)
	for i := range rows {
		rows[i] = tenders.BidResult{ID: fmt.Sprintf("B%d", i), TenderID: "T1", Rank: i + 1}
	}
	q := data.Where(data.Eq("tender_id", "T1"))

	b.Run("base", func(b *testing.B) {
		table := data.FromRepository("bid_results", newMemRepository(rows...))
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := table.Select(ctx, q); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("cached", func(b *testing.B) {
		container, err := NewContainerWithDefaults()
		if err != nil {
			b.Fatal(err)
		}
		defer container.Close()

		table := NewCachedTable[tenders.BidResult](container, "bid_results", newMemRepository(rows...))
		key := tenders.BidResultsKey("T1")
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := table.List(ctx, key, q); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func generateComplexArgs(depth int) []any {
	if depth <= 0 {
		return []any{"leaf", 42, true}
	}
	return []any{
		fmt.Sprintf("level-%d", depth),
		map[string]any{"depth": depth, "children": generateComplexArgs(depth - 1)},
		generateComplexArgs(depth - 1),
	}
}

func BenchmarkCacheKeyGenerationComplexity(b *testing.B) {
	serializer := cache.NewDefaultKeySerializer()
	for _, depth := range []int{1, 3, 5} {
		key := cache.Key(append([]any{"tenders"}, generateComplexArgs(depth)...)...)
		b.Run(fmt.Sprintf("depth_%d", depth), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = serializer.SerializeKey(key)
			}
		})
	}
}

func BenchmarkConcurrentCacheAccess(b *testing.B) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		b.Fatal(err)
	}
	defer container.Close()

	repos := newTenderRepos()
	svc, err := container.TenderService(repos.repositories().Tables(data.NewStaticSession(nil)))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	companies := []string{"C1", "C2", "C3", "C4"}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := svc.Tenders(ctx, companies[i%len(companies)]); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
