package billing

import (
	"context"
	"net/http"
	"net/url"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tender-cache/cache"
	"github.com/goliatone/go-tender-cache/pkg/logging"
	"github.com/shopspring/decimal"
)

const (
	PathCheckout    = "/api/credits/checkout"
	PathTestMessage = "/api/messages/test"
	PathBalance     = "/api/credits/balance"

	NamespaceCredits = "credits"

	MsgRedirecting     = "Redirecting to checkout"
	MsgTestMessageSent = "Test message sent successfully"
	msgCheckoutFailed  = "Failed to start checkout"
	msgTestMsgFailed   = "Failed to send test message"
)

var phoneNumber = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

func CreditsKey(companyID string) cache.QueryKey {
	return cache.Key(NamespaceCredits, companyID)
}

// Deps configures a Service.
type Deps struct {
	Client  *cache.Client
	BaseURL string

	// Optional.
	HTTPClient *http.Client
	Header     http.Header
	Logger     logging.Logger
}

// Service runs the billing and messaging calls of the dashboard API as
// cache mutations.
type Service struct {
	client *cache.Client
	api    *apiClient
	logger logging.Logger
}

func NewService(deps Deps) (*Service, error) {
	if deps.Client == nil {
		return nil, goerrors.New("billing needs a query cache client", goerrors.CategoryValidation)
	}
	api, err := newAPIClient(deps.BaseURL, deps.HTTPClient, deps.Header)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = deps.Client.Logger()
	}
	return &Service{
		client: deps.Client,
		api:    api,
		logger: logger.With("service", "billing"),
	}, nil
}

// TopUpRequest buys Credits for Amount.
type TopUpRequest struct {
	CompanyID string          `json:"company_id"`
	Credits   int             `json:"credits"`
	Amount    decimal.Decimal `json:"amount"`
}

func (r TopUpRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.CompanyID, validation.Required),
		validation.Field(&r.Credits, validation.Required, validation.Min(1)),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid top-up request")
	}
	return nil
}

func positiveAmount(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok || !d.IsPositive() {
		return validation.NewError("validation_amount_positive", "must be a positive amount")
	}
	return nil
}

// CheckoutSession is where the user completes a payment.
type CheckoutSession struct {
	URL string `json:"url"`
}

// CreateTopUpCheckout opens a payment session for req. The company's credit
// balance is invalidated once the session exists.
func (s *Service) CreateTopUpCheckout(ctx context.Context, req TopUpRequest) (CheckoutSession, error) {
	return cache.Mutate(ctx, s.client, cache.Mutation[CheckoutSession]{
		Name: "top_up_checkout",
		Do: func(ctx context.Context) (CheckoutSession, error) {
			if err := req.Validate(); err != nil {
				return CheckoutSession{}, err
			}
			var session CheckoutSession
			if err := s.api.postJSON(ctx, PathCheckout, req, &session); err != nil {
				return CheckoutSession{}, err
			}
			if session.URL == "" {
				return CheckoutSession{}, goerrors.New("checkout session has no url", goerrors.CategoryExternal).
					WithTextCode(TextCodeTransport)
			}
			s.logger.Info("checkout session created", "company_id", req.CompanyID, "credits", req.Credits)
			return session, nil
		},
		Invalidates: func(CheckoutSession) []cache.Matcher {
			return []cache.Matcher{cache.Exact(CreditsKey(req.CompanyID))}
		},
		SuccessMessage: MsgRedirecting,
		FailureMessage: msgCheckoutFailed,
	})
}

// TestMessageRequest sends Body to the phone number To.
type TestMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (r TestMessageRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.To, validation.Required, validation.Match(phoneNumber)),
		validation.Field(&r.Body, validation.Required, validation.Length(1, 1600)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid test message")
	}
	return nil
}

// TestMessageResult is the provider's receipt.
type TestMessageResult struct {
	Success bool   `json:"success"`
	SID     string `json:"sid"`
}

// SendTestMessage sends a test message through the messaging provider. It
// affects no cached reads.
func (s *Service) SendTestMessage(ctx context.Context, req TestMessageRequest) (TestMessageResult, error) {
	return cache.Mutate(ctx, s.client, cache.Mutation[TestMessageResult]{
		Name: "send_test_message",
		Do: func(ctx context.Context) (TestMessageResult, error) {
			if err := req.Validate(); err != nil {
				return TestMessageResult{}, err
			}
			var result TestMessageResult
			if err := s.api.postJSON(ctx, PathTestMessage, req, &result); err != nil {
				return TestMessageResult{}, err
			}
			if !result.Success {
				return result, goerrors.New("message provider rejected the test message", goerrors.CategoryExternal)
			}
			return result, nil
		},
		SuccessMessage: MsgTestMessageSent,
		FailureMessage: msgTestMsgFailed,
	})
}

// CreditBalance is a company's remaining credits.
type CreditBalance struct {
	CompanyID string `json:"company_id"`
	Credits   int    `json:"credits"`
}

func (s *Service) balanceFetcher(companyID string) func(ctx context.Context) (CreditBalance, error) {
	return func(ctx context.Context) (CreditBalance, error) {
		var balance CreditBalance
		err := s.api.getJSON(ctx, PathBalance, url.Values{"company_id": {companyID}}, &balance)
		return balance, err
	}
}

// Balance reads the company's credit balance through the cache. An empty
// companyID returns a zero balance without calling the API.
func (s *Service) Balance(ctx context.Context, companyID string) (CreditBalance, error) {
	return cache.Query(ctx, s.client, CreditsKey(companyID), s.balanceFetcher(companyID), cache.Enabled(companyID != ""))
}

func (s *Service) WatchBalance(companyID string, onChange func(cache.Result[CreditBalance])) *cache.Binding {
	return cache.Watch(s.client, CreditsKey(companyID), s.balanceFetcher(companyID), onChange, cache.Enabled(companyID != ""))
}
