// Package cache provides a client side query and mutation cache.
//
// # Overview
//
// A Client owns three cooperating parts:
//
//   - Store: keyed entries holding data, error, status and subscriber count
//   - query executor: runs fetches, dedups concurrent requests per key
//   - mutation runner: performs writes, then invalidates affected keys
//
// Consumers attach to keys with a Binding, which subscribes to the store,
// keeps the key fresh and forwards every change.
//
// # Basic Usage
//
//	client, err := cache.NewClient(cache.DefaultConfig(), cache.WithNotifier(n))
//	if err != nil {
//		return err
//	}
//	defer client.Dispose()
//
//	b := cache.Watch(client, cache.Key("bid-results", tenderID), loadBidResults,
//		func(r cache.Result[[]BidResult]) { render(r) })
//	defer b.Close()
//
// A write invalidates what it affects once it has been acknowledged:
//
//	_, err = cache.Mutate(ctx, client, cache.Mutation[BidResult]{
//		Name: "create-bid-result",
//		Do:   insert,
//		Invalidates: func(r BidResult) []cache.Matcher {
//			return []cache.Matcher{cache.Exact(cache.Key("bid-results", r.TenderID))}
//		},
//		SuccessMessage: "Bid opening result added successfully",
//	})
//
// # Keys
//
// A QueryKey is an ordered list of values. Keys are compared element-wise and
// indexed by the KeySerializer, which quotes strings so "1" and 1 differ.
// Build keys for the same resource identically at every call site.
//
// # Fetch gateway
//
// Every read goes through a CacheService. The default one is backed by
// sturdyc, which memoizes results and coalesces concurrent fetches. The store
// drops the memo on invalidation, forced refetch and Reset.
//
// # Staleness
//
// Stale is a flag on Entry rather than a status, so a stale entry keeps its
// last data while it revalidates. Entries go stale through Invalidate or, when
// StaleTime is set, by age.
package cache
