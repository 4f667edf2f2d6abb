package tenders

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tender-cache/repositorycache"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the format of date inputs.
const DateLayout = "2006-01-02"

const (
	MsgBidResultAdded     = "Bid opening result added successfully"
	MsgBidResultDeleted   = "Bid opening result deleted successfully"
	MsgCategoryCreated    = "Category created successfully"
	MsgCategoryDeleted    = "Category deleted successfully"
	MsgTenderAdded        = "Tender added successfully"
	MsgComplianceSaved    = "Compliance analysis saved"
	msgBidResultAddFailed = "Failed to add bid opening result"
	msgBidResultDelFailed = "Failed to delete bid opening result"
	msgCategoryAddFailed  = "Failed to create category"
	msgCategoryDelFailed  = "Failed to delete category"
	msgTenderAddFailed    = "Failed to add tender"
	msgComplianceFailed   = "Failed to save compliance analysis"
)

var nonNegativeAmount = validation.By(func(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return validation.NewError("validation_amount_type", "must be a decimal amount")
	}
	if d.IsNegative() {
		return validation.NewError("validation_amount_negative", "must not be negative")
	}
	return nil
})

func requireCompany(companyID string) error {
	if companyID == "" {
		return ErrNoActiveCompany
	}
	return nil
}

// BidResultInput is the form data of a new bid opening result.
type BidResultInput struct {
	TenderID    string          `json:"tender_id"`
	OpeningDate string          `json:"opening_date"`
	BidderName  string          `json:"bidder_name"`
	Amount      decimal.Decimal `json:"amount"`
	Rank        int             `json:"rank"`
	Notes       string          `json:"notes,omitempty"`
}

func (in BidResultInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.TenderID, validation.Required),
		validation.Field(&in.OpeningDate, validation.Required, validation.Date(DateLayout)),
		validation.Field(&in.BidderName, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Amount, nonNegativeAmount),
		validation.Field(&in.Rank, validation.Min(0)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid bid opening result")
	}
	return nil
}

// CreateBidResult records a bid opening result for the company and refreshes
// the tender's results and the company's tender list.
func (s *Service) CreateBidResult(ctx context.Context, companyID string, in BidResultInput) (BidResult, error) {
	opened, _ := time.Parse(DateLayout, in.OpeningDate)
	row := BidResult{
		ID:          uuid.NewString(),
		TenderID:    in.TenderID,
		CompanyID:   companyID,
		OpeningDate: opened,
		BidderName:  in.BidderName,
		Amount:      in.Amount,
		Rank:        in.Rank,
		Notes:       in.Notes,
		CreatedAt:   s.now(),
	}
	return s.bidResults.Create(ctx, row, repositorycache.Write{
		SuccessMessage: MsgBidResultAdded,
		FailureMessage: msgBidResultAddFailed,
		Validate: func() error {
			if err := requireCompany(companyID); err != nil {
				return err
			}
			return in.Validate()
		},
	})
}

func (s *Service) DeleteBidResult(ctx context.Context, companyID, tenderID, id string) error {
	return s.bidResults.Delete(ctx, BidResult{ID: id, TenderID: tenderID, CompanyID: companyID}, repositorycache.Write{
		SuccessMessage: MsgBidResultDeleted,
		FailureMessage: msgBidResultDelFailed,
		Validate:       func() error { return requireCompany(companyID) },
	})
}

// CreateCategory adds a category named name to the company.
func (s *Service) CreateCategory(ctx context.Context, companyID, name string) (Category, error) {
	row := Category{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Name:      name,
		CreatedAt: s.now(),
	}
	return s.categories.Create(ctx, row, repositorycache.Write{
		SuccessMessage: MsgCategoryCreated,
		FailureMessage: msgCategoryAddFailed,
		Validate: func() error {
			if err := requireCompany(companyID); err != nil {
				return err
			}
			err := validation.Validate(name, validation.Required, validation.Length(1, 100))
			if err != nil {
				return goerrors.NewValidation("invalid category", goerrors.FieldError{Field: "name", Message: err.Error()})
			}
			return nil
		},
	})
}

func (s *Service) DeleteCategory(ctx context.Context, companyID, id string) error {
	return s.categories.Delete(ctx, Category{ID: id, CompanyID: companyID}, repositorycache.Write{
		SuccessMessage: MsgCategoryDeleted,
		FailureMessage: msgCategoryDelFailed,
		Validate:       func() error { return requireCompany(companyID) },
	})
}

// TenderInput is the form data of a new tender.
type TenderInput struct {
	CompanyID   string          `json:"company_id"`
	Title       string          `json:"title"`
	Reference   string          `json:"reference"`
	Authority   string          `json:"authority"`
	CategoryID  string          `json:"category_id,omitempty"`
	ClosingDate string          `json:"closing_date"`
	Budget      decimal.Decimal `json:"budget"`
}

func (in TenderInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 300)),
		validation.Field(&in.ClosingDate, validation.Required, validation.Date(DateLayout)),
		validation.Field(&in.Budget, nonNegativeAmount),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid tender")
	}
	return nil
}

// CreateTender adds an open tender to the input's company.
func (s *Service) CreateTender(ctx context.Context, in TenderInput) (Tender, error) {
	closing, _ := time.Parse(DateLayout, in.ClosingDate)
	row := Tender{
		ID:          uuid.NewString(),
		CompanyID:   in.CompanyID,
		Title:       in.Title,
		Reference:   in.Reference,
		Authority:   in.Authority,
		CategoryID:  in.CategoryID,
		Status:      StatusOpen,
		ClosingDate: closing,
		Budget:      in.Budget,
		CreatedAt:   s.now(),
	}
	return s.tenders.Create(ctx, row, repositorycache.Write{
		SuccessMessage: MsgTenderAdded,
		FailureMessage: msgTenderAddFailed,
		Validate: func() error {
			if err := requireCompany(in.CompanyID); err != nil {
				return err
			}
			return in.Validate()
		},
	})
}

// ComplianceInput is the outcome of a document analysis run.
type ComplianceInput struct {
	Score    int      `json:"score"`
	Summary  string   `json:"summary"`
	Findings []string `json:"findings"`
}

// SaveComplianceReport stores a new report for tenderID. It becomes the
// tender's latest report.
func (s *Service) SaveComplianceReport(ctx context.Context, tenderID string, in ComplianceInput) (ComplianceReport, error) {
	row := ComplianceReport{
		ID:        uuid.NewString(),
		TenderID:  tenderID,
		Score:     in.Score,
		Summary:   in.Summary,
		Findings:  append([]string(nil), in.Findings...),
		CreatedAt: s.now(),
	}
	return s.reports.Create(ctx, row, repositorycache.Write{
		SuccessMessage: MsgComplianceSaved,
		FailureMessage: msgComplianceFailed,
		Validate: func() error {
			err := validation.Errors{
				"tender_id": validation.Validate(tenderID, validation.Required),
				"score":     validation.Validate(in.Score, validation.Min(0), validation.Max(100)),
			}.Filter()
			if err != nil {
				return goerrors.FromOzzoValidation(err, "invalid compliance report")
			}
			return nil
		},
	})
}
