package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tender-cache/internal/cacheinfra"
)

// Config exposes the query cache settings.
type Config struct {
	// Gateway settings, see internal/cacheinfra.
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration

	// StaleTime ages successful entries out. Zero means entries go stale
	// only through invalidation.
	StaleTime time.Duration

	// GCTime is how long an entry without subscribers is kept. Zero keeps
	// entries until Reset or Dispose.
	GCTime time.Duration

	// Retry is the number of extra attempts for a failed read.
	Retry      int
	RetryDelay time.Duration

	// FetchTimeout bounds a single fetch attempt. Zero disables it.
	FetchTimeout time.Duration
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.GCTime = 5 * time.Minute
	cfg.Retry = 2
	cfg.RetryDelay = 250 * time.Millisecond
	cfg.FetchTimeout = 30 * time.Second
	return cfg
}

// Validate checks the executor settings and the gateway settings.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.StaleTime, validation.Min(time.Duration(0))),
		validation.Field(&c.GCTime, validation.Min(time.Duration(0))),
		validation.Field(&c.Retry, validation.Min(0), validation.Max(10)),
		validation.Field(&c.RetryDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.FetchTimeout, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid query cache configuration")
	}
	return c.toInternal().Validate()
}

// NewCacheService builds the default sturdyc backed gateway for cfg.
func NewCacheService(cfg Config) (CacheService, error) {
	return cacheinfra.NewSturdycService(cfg.toInternal())
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
