// Package data defines the contract the cache layer expects from the backend:
// row tables queried with simple filters, the current session user and the
// error conventions around them.
//
// Any go-repository-bun Repository[T] can serve as a Table through
// FromRepository. A single-row lookup that finds nothing reports ErrNoRows,
// which callers may treat as an empty result rather than a failure.
package data
