package di

import (
	"net/http"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tender-cache/billing"
	"github.com/goliatone/go-tender-cache/cache"
	"github.com/goliatone/go-tender-cache/data"
	"github.com/goliatone/go-tender-cache/notify"
	"github.com/goliatone/go-tender-cache/pkg/logging"
	"github.com/goliatone/go-tender-cache/repositorycache"
	"github.com/goliatone/go-tender-cache/tenders"
)

// Container owns the session wide cache components: the fetch gateway, the
// key serializer, the notifier fan-out and the query cache client. Feature
// services built from it share one client.
type Container struct {
	config        cache.Config
	logger        logging.Logger
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	notifier      *notify.Multi
	client        *cache.Client
}

// Option configures a Container.
type Option func(*options)

type options struct {
	logger    logging.Logger
	notifiers []cache.Notifier
	eviction  cache.EvictionPolicy
}

// WithLogger sets the logger shared by every component.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNotifiers adds notification targets next to the log notifier, e.g. a
// UI toast adapter.
func WithNotifiers(targets ...cache.Notifier) Option {
	return func(o *options) { o.notifiers = append(o.notifiers, targets...) }
}

func WithEvictionPolicy(p cache.EvictionPolicy) Option {
	return func(o *options) { o.eviction = p }
}

// NewContainer validates config and wires the cache components.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	logger := logging.OrNop(o.logger)

	cacheService, err := cache.NewCacheService(config)
	if err != nil {
		return nil, err
	}
	keySerializer := cache.NewDefaultKeySerializer()

	targets := append([]cache.Notifier{notify.NewLog(logger)}, o.notifiers...)
	notifier := notify.NewMulti(logger, targets...)

	client, err := cache.NewClient(config,
		cache.WithLogger(logger),
		cache.WithGateway(cacheService),
		cache.WithKeySerializer(keySerializer),
		cache.WithNotifier(notifier),
		cache.WithEvictionPolicy(o.eviction),
	)
	if err != nil {
		return nil, err
	}

	return &Container{
		config:        config,
		logger:        logger,
		cacheService:  cacheService,
		keySerializer: keySerializer,
		notifier:      notifier,
		client:        client,
	}, nil
}

// NewContainerWithDefaults uses cache.DefaultConfig.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

func (c *Container) Client() *cache.Client { return c.client }

// CacheService returns the fetch gateway shared by the client.
func (c *Container) CacheService() cache.CacheService { return c.cacheService }

func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

func (c *Container) Notifier() cache.Notifier { return c.notifier }

func (c *Container) Logger() logging.Logger { return c.logger }

// Config returns a copy of the configuration.
func (c *Container) Config() cache.Config { return c.config }

// Close disposes the client. Services built from the container stop working.
func (c *Container) Close() {
	c.client.Dispose()
}

// NewCachedTable wraps a go-repository-bun repository as a cached table.
// Go methods cannot have type parameters, so this is a package function:
//
//	notes := di.NewCachedTable[Note](container, "notes", noteRepo)
func NewCachedTable[T any](container *Container, name string, repo repository.Repository[T], opts ...repositorycache.Option[T]) *repositorycache.CachedTable[T] {
	return repositorycache.New(container.client, data.FromRepository(name, repo), opts...)
}

// TenderRepositories are the bun repositories behind the tenders service.
type TenderRepositories struct {
	Tenders    repository.Repository[tenders.Tender]
	BidResults repository.Repository[tenders.BidResult]
	Categories repository.Repository[tenders.Category]
	Reports    repository.Repository[tenders.ComplianceReport]
}

// Tables adapts the repositories to the data collaborator contract.
func (r TenderRepositories) Tables(session data.Session) tenders.Deps {
	deps := tenders.Deps{Session: session}
	if r.Tenders != nil {
		deps.Tenders = data.FromRepository("tenders", r.Tenders)
	}
	if r.BidResults != nil {
		deps.BidResults = data.FromRepository("bid_results", r.BidResults)
	}
	if r.Categories != nil {
		deps.Categories = data.FromRepository("categories", r.Categories)
	}
	if r.Reports != nil {
		deps.Reports = data.FromRepository("compliance_reports", r.Reports)
	}
	return deps
}

// TenderService builds the tenders service on the container's client. The
// client, logger and clock of deps are filled in when empty.
func (c *Container) TenderService(deps tenders.Deps) (*tenders.Service, error) {
	if deps.Client == nil {
		deps.Client = c.client
	}
	if deps.Logger == nil {
		deps.Logger = c.logger
	}
	return tenders.NewService(deps)
}

// BillingService builds the billing service against the dashboard API at
// baseURL.
func (c *Container) BillingService(baseURL string, httpClient *http.Client, header http.Header) (*billing.Service, error) {
	return billing.NewService(billing.Deps{
		Client:     c.client,
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		Header:     header,
		Logger:     c.logger,
	})
}
