// Package repositorycache applies the query cache to data.Table rows.
//
// # Overview
//
// CachedTable wraps a data.Table and a cache.Client. Reads are keyed by the
// caller, so the same table can back several logical queries, e.g. bid results
// per tender. Writes run as cache mutations: the write happens first and only
// then are the affected keys invalidated.
//
// # Basic Usage
//
//	bids := repositorycache.New(client, bidTable,
//		repositorycache.WithNamespace[BidResult]("bid-results"),
//		repositorycache.WithScope(func(r BidResult) []cache.Matcher {
//			return []cache.Matcher{cache.Exact(cache.Key("bid-results", r.TenderID))}
//		}),
//	)
//
//	rows, err := bids.List(ctx, bids.Key(tenderID), data.Where(data.Eq("tender_id", tenderID)))
//
//	_, err = bids.Create(ctx, row, repositorycache.Write{
//		SuccessMessage: "Bid opening result added successfully",
//	})
//
// # Invalidation scope
//
// Without WithScope every write invalidates the whole namespace, which is
// always correct but refetches more than needed. DeleteWhere always does so
// because the deleted rows are unknown.
//
// # Single rows
//
// First and WatchFirst report a missing row as nil data rather than an error.
package repositorycache
