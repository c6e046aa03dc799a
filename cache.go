// Package imgcache is a tiered image cache with a network aware preload scheduler
// and a prefetch orchestrator that warms sections ahead of navigation.
package imgcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/internal/evictor"
	"github.com/Borislavv/go-ash-imgcache/internal/imagecache"
	"github.com/Borislavv/go-ash-imgcache/internal/index"
	"github.com/Borislavv/go-ash-imgcache/internal/lifetimer"
	"github.com/Borislavv/go-ash-imgcache/internal/metrics"
	"github.com/Borislavv/go-ash-imgcache/internal/netquality"
	"github.com/Borislavv/go-ash-imgcache/internal/prefetch"
	"github.com/Borislavv/go-ash-imgcache/internal/scheduler"
	"github.com/Borislavv/go-ash-imgcache/internal/store"
	"github.com/Borislavv/go-ash-imgcache/internal/telemetry"
	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/benbjohnson/clock"
)

type ImageCache interface {
	Get(key string) string
	Preload(ctx context.Context, key string, priority model.Priority) bool
	PreloadBatch(ctx context.Context, keys []string, priority model.Priority) []<-chan bool
	IsCached(key string) bool
	Clear(key string)
	ClearAll() error
	Stats() model.Stats
	OnSectionViewed(sectionID string, all []model.Section) int
	OnUserContextUpdated(uc model.UserContext, all []model.Section) int
	BackgroundRefresh(all []model.Section) int
	UpdateNetwork(q model.Quality)
	io.Closer
}

type Cache struct {
	cancel    context.CancelFunc
	logger    *slog.Logger
	store     *store.Store
	monitor   *netquality.Monitor
	facade    *imagecache.Facade
	prefetch  *prefetch.Orchestrator
	evictor   evictor.Evictor
	lifetimer lifetimer.Lifetimer
	telemetry telemetry.Logger
	metrics   *metrics.Metrics
	closeOnce sync.Once
	closeErr  error
}

// New opens the persistent tier and starts every worker. Close releases them.
func New(ctx context.Context, cfg *config.Cache, logger *slog.Logger, opts ...Option) (*Cache, error) {
	o := options{clock: clock.New(), client: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)

	idx := o.index
	if idx == nil {
		var err error
		if idx, err = index.New(ctx, cfg); err != nil {
			cancel()
			return nil, fmt.Errorf("open index: %w", err)
		}
	}
	st, err := store.Open(ctx, cfg, idx, o.clock, logger)
	if err != nil {
		_ = idx.Close()
		cancel()
		return nil, err
	}

	monitor := netquality.New(&cfg.Network, logger)
	signal := o.signal
	if signal == nil && cfg.Network.Probe.Enabled() {
		signal = netquality.NewHTTPProbe(cfg.Network.Probe, o.client, logger)
	}
	if signal != nil {
		go func() { _ = monitor.Run(ctx, signal) }()
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = scheduler.NewHTTPFetcher(&cfg.Scheduler, o.client, logger)
	}

	c := &Cache{
		cancel:    cancel,
		logger:    logger,
		store:     st,
		monitor:   monitor,
		lifetimer: lifetimer.New(ctx, cfg.Lifetime, logger, st),
		evictor:   evictor.New(ctx, cfg.Eviction, logger, st),
	}

	sampler := telemetry.NewSampler(telemetry.Sources{
		Store:     st.Stats,
		Scheduler: func() scheduler.Stats { return c.facade.Scheduler().Stats() },
		Prefetch:  func() prefetch.Stats { return c.prefetch.Stats() },
		Quality:   monitor.Current,
		Evictor:   c.evictor,
		Lifetimer: c.lifetimer,
	})

	var facadeOpts []imagecache.Option
	if cfg.Telemetry.Enabled() && cfg.Telemetry.MetricsEnabled {
		c.metrics = metrics.New(cfg.Telemetry, sampler)
		facadeOpts = append(facadeOpts, imagecache.WithFetchObserver(c.metrics.ObserveFetch))
	}

	c.facade = imagecache.New(ctx, cfg, logger, st, fetcher, monitor, facadeOpts...)
	c.prefetch = prefetch.New(ctx, &cfg.Prefetch, logger, c.facade, monitor, o.clock)
	c.telemetry = telemetry.New(ctx, cfg, logger, sampler)

	return c, nil
}

// Get returns the local path of a cached image, or key itself when it is not cached. It never fetches.
func (c *Cache) Get(key string) string { return c.facade.Get(key) }

// Preload fetches key unless it is cached and reports whether it is cached afterwards.
func (c *Cache) Preload(ctx context.Context, key string, priority model.Priority) bool {
	return c.facade.Preload(ctx, key, priority)
}

func (c *Cache) PreloadBatch(ctx context.Context, keys []string, priority model.Priority) []<-chan bool {
	return c.facade.PreloadBatch(ctx, keys, priority)
}

// PreloadAll waits for every key and returns how many are cached.
func (c *Cache) PreloadAll(ctx context.Context, keys []string, priority model.Priority) int {
	return c.facade.PreloadAll(ctx, keys, priority)
}

func (c *Cache) IsCached(key string) bool      { return c.facade.IsCached(key) }
func (c *Cache) Clear(key string)              { c.facade.Clear(key) }
func (c *Cache) ClearAll() error               { return c.facade.ClearAll() }
func (c *Cache) Stats() model.Stats            { return c.facade.Stats() }
func (c *Cache) Cancel(requesterID string) int { return c.facade.Cancel(requesterID) }

func (c *Cache) OnSectionViewed(sectionID string, all []model.Section) int {
	return c.prefetch.OnSectionViewed(sectionID, all)
}

func (c *Cache) OnUserContextUpdated(uc model.UserContext, all []model.Section) int {
	return c.prefetch.OnUserContextUpdated(uc, all)
}

func (c *Cache) BackgroundRefresh(all []model.Section) int {
	return c.prefetch.BackgroundRefresh(all)
}

func (c *Cache) CancelSection(sectionID string) { c.prefetch.CancelSection(sectionID) }

// UpdateNetwork pushes a connectivity level reported by the platform.
func (c *Cache) UpdateNetwork(q model.Quality) { c.monitor.Update(q) }

func (c *Cache) Quality() model.Quality          { return c.monitor.Current() }
func (c *Cache) SchedulerStats() scheduler.Stats { return c.facade.Scheduler().Stats() }
func (c *Cache) PrefetchStats() prefetch.Stats   { return c.prefetch.Stats() }
func (c *Cache) Evictor() evictor.Evictor        { return c.evictor }
func (c *Cache) Lifetimer() lifetimer.Lifetimer  { return c.lifetimer }
func (c *Cache) Dir() string                     { return c.store.Dir() }

// MetricsHandler serves prometheus metrics. It is nil when metrics are disabled.
func (c *Cache) MetricsHandler() http.Handler {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Handler()
}

// Close stops the workers, waits for running fetches and flushes the index. It is idempotent.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.Join(
			c.prefetch.Close(),
			c.telemetry.Close(),
			c.lifetimer.Close(),
			c.evictor.Close(),
			c.facade.Close(),
		)
		c.cancel()
		c.closeErr = errors.Join(c.closeErr, c.store.Close())
		c.logger.Info("image cache is closed")
	})
	return c.closeErr
}
