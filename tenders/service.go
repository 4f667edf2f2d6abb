package tenders

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tender-cache/cache"
	"github.com/goliatone/go-tender-cache/data"
	"github.com/goliatone/go-tender-cache/pkg/logging"
	"github.com/goliatone/go-tender-cache/repositorycache"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Client     *cache.Client
	Session    data.Session
	Tenders    data.Table[Tender]
	BidResults data.Table[BidResult]
	Categories data.Table[Category]
	Reports    data.Table[ComplianceReport]

	// Optional.
	Logger logging.Logger
	Now    func() time.Time
}

// Validate reports missing collaborators.
func (d Deps) Validate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Client, validation.NotNil),
		validation.Field(&d.Session, validation.NotNil),
		validation.Field(&d.Tenders, validation.NotNil),
		validation.Field(&d.BidResults, validation.NotNil),
		validation.Field(&d.Categories, validation.NotNil),
		validation.Field(&d.Reports, validation.NotNil),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid tenders dependencies")
	}
	return nil
}

// Service exposes the dashboard's tender data through the query cache.
type Service struct {
	client  *cache.Client
	session data.Session
	logger  logging.Logger
	now     func() time.Time

	tenders    *repositorycache.CachedTable[Tender]
	bidResults *repositorycache.CachedTable[BidResult]
	categories *repositorycache.CachedTable[Category]
	reports    *repositorycache.CachedTable[ComplianceReport]
}

// NewService validates deps and builds a Service.
func NewService(deps Deps) (*Service, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = deps.Client.Logger()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		client:  deps.Client,
		session: deps.Session,
		logger:  logger.With("service", "tenders"),
		now:     now,
		tenders: repositorycache.New(deps.Client, deps.Tenders,
			repositorycache.WithNamespace[Tender](NamespaceTenders),
			repositorycache.WithScope(func(t Tender) []cache.Matcher {
				return []cache.Matcher{cache.Exact(TendersKey(t.CompanyID))}
			}),
		),
		bidResults: repositorycache.New(deps.Client, deps.BidResults,
			repositorycache.WithNamespace[BidResult](NamespaceBidResults),
			repositorycache.WithScope(func(b BidResult) []cache.Matcher {
				return []cache.Matcher{
					cache.Exact(BidResultsKey(b.TenderID)),
					cache.Exact(TendersKey(b.CompanyID)),
				}
			}),
		),
		categories: repositorycache.New(deps.Client, deps.Categories,
			repositorycache.WithNamespace[Category](NamespaceCategories),
			repositorycache.WithScope(func(c Category) []cache.Matcher {
				return []cache.Matcher{cache.Exact(CategoriesKey(c.CompanyID))}
			}),
		),
		reports: repositorycache.New(deps.Client, deps.Reports,
			repositorycache.WithNamespace[ComplianceReport](NamespaceComplianceReport),
			repositorycache.WithScope(func(r ComplianceReport) []cache.Matcher {
				return []cache.Matcher{cache.Exact(ComplianceReportKey(r.TenderID))}
			}),
		),
	}, nil
}

func tendersQuery(companyID string) data.Query {
	return data.Where(data.Eq("company_id", companyID)).OrderBy(data.Asc("closing_date"))
}

func bidResultsQuery(tenderID string) data.Query {
	return data.Where(data.Eq("tender_id", tenderID)).OrderBy(data.Desc("opening_date"), data.Asc("rank"))
}

func categoriesQuery(companyID string) data.Query {
	return data.Where(data.Eq("company_id", companyID)).OrderBy(data.Asc("name"))
}

func complianceReportQuery(tenderID string) data.Query {
	return data.Where(data.Eq("tender_id", tenderID)).OrderBy(data.Desc("created_at"))
}

// enabled guards a query on its key input being known.
func enabled(id string) cache.QueryOption {
	return cache.Enabled(id != "")
}

func orEmpty[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}

// Tenders lists the company's tenders by closing date. An empty companyID
// yields an empty list without touching the backend.
func (s *Service) Tenders(ctx context.Context, companyID string) ([]Tender, error) {
	rows, err := s.tenders.List(ctx, TendersKey(companyID), tendersQuery(companyID), enabled(companyID))
	return orEmpty(rows), err
}

func (s *Service) WatchTenders(companyID string, onChange func(cache.Result[[]Tender])) *cache.Binding {
	return s.tenders.WatchList(TendersKey(companyID), tendersQuery(companyID), onChange, enabled(companyID))
}

// RekeyTenders moves a WatchTenders binding to another company.
func (s *Service) RekeyTenders(b *cache.Binding, companyID string) {
	s.tenders.RekeyList(b, TendersKey(companyID), tendersQuery(companyID), enabled(companyID))
}

// BidResults lists a tender's bid opening results, newest opening first.
func (s *Service) BidResults(ctx context.Context, tenderID string) ([]BidResult, error) {
	rows, err := s.bidResults.List(ctx, BidResultsKey(tenderID), bidResultsQuery(tenderID), enabled(tenderID))
	return orEmpty(rows), err
}

func (s *Service) WatchBidResults(tenderID string, onChange func(cache.Result[[]BidResult])) *cache.Binding {
	return s.bidResults.WatchList(BidResultsKey(tenderID), bidResultsQuery(tenderID), onChange, enabled(tenderID))
}

// RekeyBidResults moves a WatchBidResults binding to another tender.
func (s *Service) RekeyBidResults(b *cache.Binding, tenderID string) {
	s.bidResults.RekeyList(b, BidResultsKey(tenderID), bidResultsQuery(tenderID), enabled(tenderID))
}

// Categories lists the company's categories by name.
func (s *Service) Categories(ctx context.Context, companyID string) ([]Category, error) {
	rows, err := s.categories.List(ctx, CategoriesKey(companyID), categoriesQuery(companyID), enabled(companyID))
	return orEmpty(rows), err
}

func (s *Service) WatchCategories(companyID string, onChange func(cache.Result[[]Category])) *cache.Binding {
	return s.categories.WatchList(CategoriesKey(companyID), categoriesQuery(companyID), onChange, enabled(companyID))
}

func (s *Service) RekeyCategories(b *cache.Binding, companyID string) {
	s.categories.RekeyList(b, CategoriesKey(companyID), categoriesQuery(companyID), enabled(companyID))
}

// ComplianceReport returns the tender's latest report, or nil when the
// tender has not been analysed yet.
func (s *Service) ComplianceReport(ctx context.Context, tenderID string) (*ComplianceReport, error) {
	return s.reports.First(ctx, ComplianceReportKey(tenderID), complianceReportQuery(tenderID), enabled(tenderID))
}

func (s *Service) WatchComplianceReport(tenderID string, onChange func(cache.Result[*ComplianceReport])) *cache.Binding {
	return s.reports.WatchFirst(ComplianceReportKey(tenderID), complianceReportQuery(tenderID), onChange, enabled(tenderID))
}

func (s *Service) RekeyComplianceReport(b *cache.Binding, tenderID string) {
	s.reports.RekeyFirst(b, ComplianceReportKey(tenderID), complianceReportQuery(tenderID), enabled(tenderID))
}
