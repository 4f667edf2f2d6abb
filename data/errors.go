package data

import (
	"context"
	"database/sql"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeNoRows              = "NO_ROWS"
	TextCodeConstraintViolation = "CONSTRAINT_VIOLATION"
	TextCodeTransport           = "TRANSPORT"
	TextCodePermissionDenied    = "PERMISSION_DENIED"

	// postgrestNoRows is what PostgREST style backends report for a single
	// row request that matched nothing.
	postgrestNoRows = "PGRST116"
)

// ErrNoRows reports that a single-row lookup matched nothing.
var ErrNoRows = goerrors.New("no rows in result set", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoRows)

// NoRows returns an ErrNoRows for table and q.
func NoRows(table string, q Query) error {
	err := goerrors.New("no "+table+" row matches "+q.String(), goerrors.CategoryNotFound).
		WithTextCode(TextCodeNoRows).
		WithMetadata(map[string]any{"table": table})
	err.Source = ErrNoRows
	return err
}

// IsNoRows reports whether err means "zero rows", as opposed to a failure.
// Other not-found errors, such as a 404 from an HTTP backend, are failures.
func IsNoRows(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrNoRows) || goerrors.Is(err, sql.ErrNoRows) {
		return true
	}
	var e *goerrors.Error
	if goerrors.As(err, &e) && (e.TextCode == TextCodeNoRows || e.TextCode == postgrestNoRows) {
		return true
	}
	return backendCode(err) == postgrestNoRows
}

type sqlStateError interface {
	SQLState() string
}

type codedError interface {
	Code() string
}

func backendCode(err error) string {
	var s sqlStateError
	if goerrors.As(err, &s) {
		return s.SQLState()
	}
	var c codedError
	if goerrors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// Classify maps a backend error onto the go-errors taxonomy. Errors that are
// already categorized and context errors are returned unchanged.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *goerrors.Error
	if goerrors.As(err, &e) {
		return err
	}
	if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if goerrors.Is(err, sql.ErrNoRows) {
		wrapped := goerrors.Wrap(err, goerrors.CategoryNotFound, op+": no rows").
			WithTextCode(TextCodeNoRows)
		return wrapped
	}

	code := backendCode(err)
	switch {
	case code == postgrestNoRows:
		return goerrors.Wrap(err, goerrors.CategoryNotFound, op+": no rows").
			WithTextCode(TextCodeNoRows)
	case strings.HasPrefix(code, "23"):
		return goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()).
			WithTextCode(TextCodeConstraintViolation)
	case code == "42501":
		return goerrors.Wrap(err, goerrors.CategoryAuthz, err.Error()).
			WithTextCode(TextCodePermissionDenied)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "violates") && strings.Contains(msg, "constraint") {
		return goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()).
			WithTextCode(TextCodeConstraintViolation)
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, op+" failed").
		WithTextCode(TextCodeTransport)
}
