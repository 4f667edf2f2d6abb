package cacheinfra

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc fetch gateway.
type Config struct {
	// Capacity defines the maximum number of memoized fetch results.
	Capacity int

	// NumShards determines the number of sturdyc shards.
	NumShards int

	// TTL bounds how long a fetch result is reused by the gateway after it
	// was produced. Invalidation deletes the memo regardless of TTL.
	TTL time.Duration

	// EvictionPercentage is the share of entries dropped when Capacity is hit.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc scans for expired entries.
	// Zero keeps the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns the gateway defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions maps the optional settings to sturdyc options. Capacity,
// NumShards, TTL and EvictionPercentage go straight to sturdyc.New.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate reports invalid settings as a go-errors validation error.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid gateway configuration")
	}
	return nil
}

// FetchFn loads a value from the source of truth.
type FetchFn = func(ctx context.Context) (any, error)

// SturdycService memoizes fetch results in a sturdyc client. Concurrent
// fetches of the same key are coalesced by sturdyc.
type SturdycService struct {
	client *sturdyc.Client[any]
}

// NewSturdycService validates cfg and builds the sturdyc client.
func NewSturdycService(cfg Config) (*SturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycService{client: client}, nil
}

// GetOrFetch returns the memoized value for key or runs fetchFn. Errors are
// returned to the caller and never memoized.
func (s *SturdycService) GetOrFetch(ctx context.Context, key string, fetchFn FetchFn) (any, error) {
	if fetchFn == nil {
		return nil, goerrors.New("fetch function cannot be nil", goerrors.CategoryBadInput).
			WithTextCode("NIL_FETCH_FN")
	}
	return s.client.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetchFn(ctx)
	})
}

// Delete drops the memo for key so the next GetOrFetch reaches the source.
func (s *SturdycService) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix drops every memo whose key starts with prefix.
func (s *SturdycService) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Clear drops every memo. Used on session reset.
func (s *SturdycService) Clear(_ context.Context) error {
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
	return nil
}

// Keys lists the currently memoized keys.
func (s *SturdycService) Keys() []string {
	return s.client.ScanKeys()
}
