package tenders

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Tender statuses.
const (
	StatusOpen      = "open"
	StatusSubmitted = "submitted"
	StatusAwarded   = "awarded"
	StatusLost      = "lost"
)

// Tender is a procurement notice tracked by a company.
type Tender struct {
	bun.BaseModel `bun:"table:tenders" json:"-"`

	ID          string          `bun:"id,pk" json:"id"`
	CompanyID   string          `bun:"company_id,notnull" json:"company_id"`
	Title       string          `bun:"title,notnull" json:"title"`
	Reference   string          `bun:"reference" json:"reference"`
	Authority   string          `bun:"authority" json:"authority"`
	CategoryID  string          `bun:"category_id,nullzero" json:"category_id,omitempty"`
	Status      string          `bun:"status" json:"status"`
	ClosingDate time.Time       `bun:"closing_date" json:"closing_date"`
	Budget      decimal.Decimal `bun:"budget,type:numeric" json:"budget"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

// BidResult is one bidder's line in a tender's bid opening.
type BidResult struct {
	bun.BaseModel `bun:"table:bid_results" json:"-"`

	ID          string          `bun:"id,pk" json:"id"`
	TenderID    string          `bun:"tender_id,notnull" json:"tender_id"`
	CompanyID   string          `bun:"company_id,notnull" json:"company_id"`
	OpeningDate time.Time       `bun:"opening_date" json:"opening_date"`
	BidderName  string          `bun:"bidder_name" json:"bidder_name"`
	Amount      decimal.Decimal `bun:"amount,type:numeric" json:"amount"`
	Rank        int             `bun:"rank" json:"rank"`
	Notes       string          `bun:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

// Category groups a company's tenders.
type Category struct {
	bun.BaseModel `bun:"table:categories" json:"-"`

	ID        string    `bun:"id,pk" json:"id"`
	CompanyID string    `bun:"company_id,notnull" json:"company_id"`
	Name      string    `bun:"name,notnull" json:"name"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

// ComplianceReport is the outcome of analysing a tender's documents.
type ComplianceReport struct {
	bun.BaseModel `bun:"table:compliance_reports" json:"-"`

	ID        string    `bun:"id,pk" json:"id"`
	TenderID  string    `bun:"tender_id,notnull" json:"tender_id"`
	Score     int       `bun:"score" json:"score"`
	Summary   string    `bun:"summary" json:"summary"`
	Findings  []string  `bun:"findings,array" json:"findings"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}
