// Package tenders holds the dashboard's feature services: tenders, bid
// opening results, categories and compliance reports, each read through the
// query cache and written through cache mutations.
//
// Reads take the id their key is built from. An empty id disables the query:
// nothing is fetched and the result is empty. Writes invalidate exactly the
// keys that show the written rows, e.g. a new bid result refreshes
// ["bid-results", tenderID] and ["tenders", companyID].
//
//	svc, err := tenders.NewService(tenders.Deps{
//		Client:     client,
//		Session:    session,
//		Tenders:    data.FromRepository("tenders", tenderRepo),
//		BidResults: data.FromRepository("bid_results", bidRepo),
//		Categories: data.FromRepository("categories", categoryRepo),
//		Reports:    data.FromRepository("compliance_reports", reportRepo),
//	})
//
// SwitchCompany and Logout reset the cache so no data of the previous
// session is served.
package tenders
