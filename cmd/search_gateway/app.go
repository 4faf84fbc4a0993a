package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gcbaptista/go-search-gateway/config"
	"github.com/gcbaptista/go-search-gateway/internal/backends"
	"github.com/gcbaptista/go-search-gateway/internal/cache"
	"github.com/gcbaptista/go-search-gateway/internal/catalog"
	"github.com/gcbaptista/go-search-gateway/internal/content"
	"github.com/gcbaptista/go-search-gateway/internal/dispatch"
	"github.com/gcbaptista/go-search-gateway/internal/promotions"
	"github.com/gcbaptista/go-search-gateway/internal/rules"
	"github.com/gcbaptista/go-search-gateway/internal/search"
	"github.com/gcbaptista/go-search-gateway/services"
)

// app is the wired query pipeline shared by every command.
type app struct {
	settings   *config.Settings
	logger     *slog.Logger
	registry   *backends.Registry
	catalog    *catalog.Manager
	rules      *rules.Store
	promotions *promotions.Store
	matcher    *rules.Matcher
	search     *search.Service

	closers []func() error
}

func newApp(settings *config.Settings, logger *slog.Logger) (*app, error) {
	a := &app{settings: settings, logger: logger}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// wire builds the pipeline, registering a closer for every resource opened.
func (a *app) wire() (err error) {
	settings, logger := a.settings, a.logger

	dataDir := settings.Data.Dir
	if a.rules, err = openRuleStore(dataDir); err != nil {
		return err
	}
	if a.promotions, err = openPromotionStore(dataDir); err != nil {
		return err
	}
	catalogStore, err := openCatalogStore(dataDir)
	if err != nil {
		return err
	}

	a.registry = backends.NewRegistry(backends.Env{DataDir: dataDir, Logger: logger})
	a.closers = append(a.closers, a.registry.Close)

	a.catalog = catalog.NewManager(settings.Layer(), catalogStore,
		catalog.WithAdapterResetter(a.registry), catalog.WithLogger(logger))

	dispatcher, err := dispatch.New(a.catalog.Snapshots(), a.registry,
		dispatch.WithPoolSize(settings.Search.Workers),
		dispatch.WithTimeout(settings.Search.BackendTimeout),
		dispatch.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	a.closers = append(a.closers, func() error { dispatcher.Release(); return nil })

	opts := []search.Option{
		search.WithPromotionSource(a.promotions),
		search.WithAdapters(a.registry),
		search.WithMaxQueryLength(settings.Search.MaxQueryLength),
		search.WithDefaultSiteID(settings.Search.DefaultSiteID),
		search.WithLogger(logger),
	}

	var resolver services.ContentResolver
	if settings.Content.Driver != "" {
		sqlResolver, err := content.Open(settings.Content.Driver, settings.Content.DSN, settings.Content.Table)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, sqlResolver.Close)
		resolver = sqlResolver
		opts = append(opts, search.WithContentResolver(resolver))
	} else {
		logger.Warn("No content store configured; promotions and element redirects are disabled")
	}

	if settings.Cache.Enabled {
		resultCache, err := openCache(settings.Cache, logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, resultCache.Close)
		opts = append(opts, search.WithCache(resultCache))
	}

	a.matcher = rules.NewMatcher(a.rules, rules.WithLogger(logger))
	injector := promotions.NewInjector(a.promotions, resolver, promotions.WithLogger(logger))
	a.search, err = search.NewService(a.catalog.Snapshots(), a.matcher, dispatcher, injector, opts...)
	if err != nil {
		return err
	}

	a.catalog.OnChange(func(change catalog.Change) {
		if err := a.search.InvalidateAll(); err != nil {
			logger.Warn("Failed to invalidate cache after catalog change", "kind", string(change.Kind), "error", err)
		}
	})
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Errors while shutting down", "error", err)
	}
}

func openRuleStore(dataDir string) (*rules.Store, error) {
	if dataDir == "" {
		return rules.NewMemoryStore(), nil
	}
	return rules.NewFileStore(dataDir)
}

func openPromotionStore(dataDir string) (*promotions.Store, error) {
	if dataDir == "" {
		return promotions.NewMemoryStore(), nil
	}
	return promotions.NewFileStore(dataDir)
}

func openCatalogStore(dataDir string) (*catalog.Store, error) {
	if dataDir == "" {
		return catalog.NewMemoryStore(), nil
	}
	return catalog.NewFileStore(dataDir)
}

func openCache(settings config.CacheSettings, logger *slog.Logger) (*cache.Cache, error) {
	var store cache.Store
	switch settings.Store {
	case "badger":
		badgerStore, err := cache.OpenBadgerStore(settings.Path, logger)
		if err != nil {
			return nil, err
		}
		store = badgerStore
	default:
		store = cache.NewMemoryStore(settings.Size, settings.TTL)
	}

	opts := []cache.Option{
		cache.WithTTL(settings.TTL),
		cache.WithCounterSize(settings.Size),
		cache.WithLogger(logger),
	}
	if settings.PopularOnly {
		opts = append(opts, cache.WithPopularOnly(settings.PopularThreshold))
	}
	c, err := cache.New(store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return c, nil
}
