// Package di wires the data layer together: cache service, partition
// store, coordinator, optimistic registry, warmer and mutators, all sharing
// singleton instances behind one container.
package di

import (
	"go.uber.org/zap"

	"github.com/letterdesk/go-newsletter-cache/cache"
	"github.com/letterdesk/go-newsletter-cache/coordinator"
	"github.com/letterdesk/go-newsletter-cache/mutations"
	"github.com/letterdesk/go-newsletter-cache/optimistic"
	"github.com/letterdesk/go-newsletter-cache/querycache"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

// Options configures a container. Repos is required; everything else has a
// working default.
type Options struct {
	// Repos supplies the backend implementations.
	Repos repository.Set
	// Users resolves the current authenticated user.
	Users repository.UserSupplier
	// Cache overrides the default cache configuration.
	Cache *cache.Config
	// Toaster receives outcome messages when Mutations.ShowToasts is set.
	Toaster mutations.Toaster
	// Confirmer gates destructive actions. Defaults to always-confirm.
	Confirmer mutations.Confirmer
	// Mutations holds handler-level switches.
	Mutations mutations.Config
	// Logger is shared by every component. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Container manages singleton instances of every data-layer component.
type Container struct {
	cacheService cache.CacheService
	keys         *cache.KeyBuilder
	store        *querycache.Store
	coordinator  *coordinator.Coordinator
	registry     *optimistic.Registry
	warmer       *coordinator.Warmer
	newsletters  *mutations.Newsletters
	queue        *mutations.Queue
	tags         *mutations.Tags
	sources      *mutations.Sources
	config       cache.Config
}

// NewContainer builds the full dependency graph from opts.
func NewContainer(opts Options) (*Container, error) {
	cfg := cache.DefaultConfig()
	if opts.Cache != nil {
		cfg = *opts.Cache
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cacheService, err := cache.NewCacheService(cfg)
	if err != nil {
		return nil, err
	}

	keys := cache.NewKeyBuilder(cache.NewDefaultKeySerializer())
	store := querycache.New(cacheService, opts.Logger)
	coord := coordinator.New(store, keys, opts.Logger)
	registry := optimistic.NewRegistry()
	warmer := coordinator.NewWarmer(coord, opts.Repos.Newsletters, opts.Repos.ReadingQueue, opts.Logger)

	deps := mutations.Deps{
		Repos:       opts.Repos,
		Coordinator: coord,
		Registry:    registry,
		Users:       opts.Users,
		Toaster:     opts.Toaster,
		Confirmer:   opts.Confirmer,
		Logger:      opts.Logger,
		Config:      opts.Mutations,
	}

	return &Container{
		cacheService: cacheService,
		keys:         keys,
		store:        store,
		coordinator:  coord,
		registry:     registry,
		warmer:       warmer,
		newsletters:  mutations.NewNewsletters(deps),
		queue:        mutations.NewQueue(deps),
		tags:         mutations.NewTags(deps),
		sources:      mutations.NewSources(deps),
		config:       cfg,
	}, nil
}

// NewContainerWithDefaults builds a container with the default cache
// configuration. Convenience constructor for the common case.
func NewContainerWithDefaults(repos repository.Set, users repository.UserSupplier) (*Container, error) {
	return NewContainer(Options{Repos: repos, Users: users})
}

// CacheService returns the singleton cache service instance.
func (c *Container) CacheService() cache.CacheService { return c.cacheService }

// Keys returns the singleton partition key builder.
func (c *Container) Keys() *cache.KeyBuilder { return c.keys }

// Store returns the singleton partition store.
func (c *Container) Store() *querycache.Store { return c.store }

// Coordinator returns the singleton cache coordinator.
func (c *Container) Coordinator() *coordinator.Coordinator { return c.coordinator }

// Registry returns the singleton mutation slot registry.
func (c *Container) Registry() *optimistic.Registry { return c.registry }

// Warmer returns the singleton cache warmer.
func (c *Container) Warmer() *coordinator.Warmer { return c.warmer }

// Newsletters returns the newsletter mutator.
func (c *Container) Newsletters() *mutations.Newsletters { return c.newsletters }

// Queue returns the reading-queue mutator.
func (c *Container) Queue() *mutations.Queue { return c.queue }

// Tags returns the tag mutator.
func (c *Container) Tags() *mutations.Tags { return c.tags }

// Sources returns the source mutator.
func (c *Container) Sources() *mutations.Sources { return c.sources }

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cache.Config { return c.config }
