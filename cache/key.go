package cache

import (
	"reflect"
)

// QueryKey identifies a cacheable read result, e.g. Key("bid-results", tenderID).
// Keys must be treated as immutable once handed to the cache.
type QueryKey []any

// Key builds a QueryKey from its parts.
func Key(parts ...any) QueryKey {
	return QueryKey(append([]any(nil), parts...))
}

// Equal reports element-wise deep equality.
func (k QueryKey) Equal(other QueryKey) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if !reflect.DeepEqual(k[i], other[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix matches the leading elements of k.
func (k QueryKey) HasPrefix(prefix QueryKey) bool {
	if len(prefix) > len(k) {
		return false
	}
	return k[:len(prefix)].Equal(prefix)
}

func (k QueryKey) String() string {
	return defaultSerializer.SerializeKey(k)
}

func (k QueryKey) clone() QueryKey {
	if k == nil {
		return QueryKey{}
	}
	return append(QueryKey(nil), k...)
}

// Matcher selects entries for invalidation.
type Matcher interface {
	Match(key QueryKey) bool
}

// MatchFunc adapts a predicate to Matcher.
type MatchFunc func(key QueryKey) bool

func (f MatchFunc) Match(key QueryKey) bool { return f(key) }

type exactMatcher struct{ key QueryKey }

func (m exactMatcher) Match(key QueryKey) bool { return key.Equal(m.key) }

type prefixMatcher struct{ prefix QueryKey }

func (m prefixMatcher) Match(key QueryKey) bool { return key.HasPrefix(m.prefix) }

// Exact matches only key itself.
func Exact(key QueryKey) Matcher { return exactMatcher{key: key.clone()} }

// Prefix matches every key starting with prefix, so Prefix(Key("bid-results"))
// matches Key("bid-results", "T1").
func Prefix(prefix QueryKey) Matcher { return prefixMatcher{prefix: prefix.clone()} }

type anyMatcher []Matcher

func (m anyMatcher) Match(key QueryKey) bool {
	for _, one := range m {
		if one.Match(key) {
			return true
		}
	}
	return false
}

// AnyOf matches keys matched by at least one of matchers. Nil matchers are
// skipped; with none left it returns nil.
func AnyOf(matchers ...Matcher) Matcher {
	out := make(anyMatcher, 0, len(matchers))
	for _, m := range matchers {
		if m != nil {
			out = append(out, m)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
