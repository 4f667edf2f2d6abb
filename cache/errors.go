package cache

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

var (
	// ErrDisposed is returned once a Client has been disposed.
	ErrDisposed = goerrors.New("query cache has been disposed", goerrors.CategoryOperation).
			WithTextCode("STORE_DISPOSED")

	// ErrReset is returned by Fetch when the session was reset while the
	// request it waited on was still in flight.
	ErrReset = goerrors.New("query cache was reset before the request settled", goerrors.CategoryOperation).
			WithTextCode("QUERY_RESET")

	// ErrInvalidResultType is returned when cached data does not match the
	// type requested by a typed helper.
	ErrInvalidResultType = goerrors.New("cached value has an unexpected type", goerrors.CategoryInternal).
				WithTextCode("INVALID_RESULT_TYPE")
)

// UserMessage returns the message suitable for a user facing notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var re *goerrors.RetryableError
	if goerrors.As(err, &re) && re.BaseError != nil && re.BaseError.Message != "" {
		return re.BaseError.Message
	}
	var e *goerrors.Error
	if goerrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// isRetryable reports whether a failed read may be attempted again.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *goerrors.RetryableError
	if goerrors.As(err, &re) {
		return re.IsRetryable()
	}
	for _, category := range []goerrors.Category{
		goerrors.CategoryValidation,
		goerrors.CategoryBadInput,
		goerrors.CategoryAuth,
		goerrors.CategoryAuthz,
		goerrors.CategoryNotFound,
		goerrors.CategoryConflict,
	} {
		if goerrors.IsCategory(err, category) {
			return false
		}
	}
	return true
}

func panicError(op string, recovered any) error {
	return goerrors.New(fmt.Sprintf("%s panicked: %v", op, recovered), goerrors.CategoryInternal).
		WithTextCode("PANIC")
}

func nilMutationError(name string) error {
	return goerrors.New("mutation "+name+" has no Do function", goerrors.CategoryBadInput).
		WithTextCode("NIL_MUTATION")
}
