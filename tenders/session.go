package tenders

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// TextCodeNoActiveCompany marks writes attempted without a company.
const TextCodeNoActiveCompany = "NO_ACTIVE_COMPANY"

// ErrNoActiveCompany is returned by writes that need a company when the
// session has none.
var ErrNoActiveCompany = goerrors.New("no active company", goerrors.CategoryBadInput).
	WithTextCode(TextCodeNoActiveCompany)

// CompanySwitcher is implemented by sessions that can change the active
// company in place.
type CompanySwitcher interface {
	SetCompany(companyID string)
}

// SignOuter is implemented by sessions that can end themselves.
type SignOuter interface {
	SignOut()
}

// ActiveCompany returns the signed-in user's company. It is empty, without
// an error, when nobody is signed in.
func (s *Service) ActiveCompany(ctx context.Context) (string, error) {
	user, err := s.session.CurrentUser(ctx)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryAuth, "cannot resolve current user")
	}
	if user == nil {
		return "", nil
	}
	return user.CompanyID, nil
}

// RequireCompany is ActiveCompany for writes: an empty company is
// ErrNoActiveCompany.
func (s *Service) RequireCompany(ctx context.Context) (string, error) {
	companyID, err := s.ActiveCompany(ctx)
	if err != nil {
		return "", err
	}
	if companyID == "" {
		return "", ErrNoActiveCompany
	}
	return companyID, nil
}

// SwitchCompany moves the session to companyID and drops all session
// scoped cache state.
func (s *Service) SwitchCompany(companyID string) {
	if sw, ok := s.session.(CompanySwitcher); ok {
		sw.SetCompany(companyID)
	}
	s.logger.Info("company switched", "company_id", companyID)
	s.client.Reset()
}

// Logout ends the session and drops all session scoped cache state.
func (s *Service) Logout() {
	if so, ok := s.session.(SignOuter); ok {
		so.SignOut()
	}
	s.logger.Info("logged out")
	s.client.Reset()
}
