package tenders

import "github.com/goliatone/go-tender-cache/cache"

// Key namespaces. Every key for a resource is built by the functions below
// so call sites cannot fragment the cache.
const (
	NamespaceTenders          = "tenders"
	NamespaceBidResults       = "bid-results"
	NamespaceCategories       = "categories"
	NamespaceComplianceReport = "compliance-report"
)

func TendersKey(companyID string) cache.QueryKey {
	return cache.Key(NamespaceTenders, companyID)
}

func BidResultsKey(tenderID string) cache.QueryKey {
	return cache.Key(NamespaceBidResults, tenderID)
}

func CategoriesKey(companyID string) cache.QueryKey {
	return cache.Key(NamespaceCategories, companyID)
}

func ComplianceReportKey(tenderID string) cache.QueryKey {
	return cache.Key(NamespaceComplianceReport, tenderID)
}
