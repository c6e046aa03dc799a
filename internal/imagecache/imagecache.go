// Package imagecache is the call surface of the image cache: reads never fetch,
// preloads are the only path doing network I/O.
package imagecache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/internal/netquality"
	"github.com/Borislavv/go-ash-imgcache/internal/scheduler"
	"github.com/Borislavv/go-ash-imgcache/internal/store"
	"github.com/Borislavv/go-ash-imgcache/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type Cacher interface {
	Get(key string) string
	Preload(ctx context.Context, key string, priority model.Priority) bool
	PreloadBatch(ctx context.Context, keys []string, priority model.Priority) []<-chan bool
	PreloadAll(ctx context.Context, keys []string, priority model.Priority) int
	IsCached(key string) bool
	Clear(key string)
	ClearAll() error
	Stats() model.Stats
	Cancel(requesterID string) int
}

type Facade struct {
	cfg    *config.Cache
	logger *slog.Logger
	store  store.Storer
	sched  *scheduler.Scheduler

	// collapses concurrent persistent tier checks of one key on the preload path
	peeks singleflight.Group
}

type Option func(*scheduler.Hooks)

// WithFetchObserver reports the latency and outcome of every network fetch.
func WithFetchObserver(fn func(elapsed time.Duration, err error)) Option {
	return func(h *scheduler.Hooks) { h.Fetched = fn }
}

// New wires the store and a scheduler whose results are written into the store.
func New(
	ctx context.Context,
	cfg *config.Cache,
	logger *slog.Logger,
	st store.Storer,
	fetcher scheduler.Fetcher,
	quality netquality.Quality,
	opts ...Option,
) *Facade {
	f := &Facade{cfg: cfg, logger: logger, store: st}
	hooks := scheduler.Hooks{
		Completed: f.cached,
		OnResult:  f.onResult,
	}
	for _, opt := range opts {
		opt(&hooks)
	}
	f.sched = scheduler.New(ctx, &cfg.Scheduler, logger, fetcher, quality, hooks)
	return f
}

// Get returns the local path of a cached key, or the key itself on a miss. It never fetches.
func (f *Facade) Get(key string) string {
	if e, ok := f.store.Lookup(key); ok {
		return e.Path()
	}
	return key
}

// Preload makes key cached and reports whether it is. It blocks until the fetch resolves
// or ctx is done.
func (f *Facade) Preload(ctx context.Context, key string, priority model.Priority) bool {
	return <-f.preload(ctx, key, priority)
}

// PreloadBatch schedules every key and returns as soon as all of them are queued.
// The i-th channel delivers the outcome of keys[i].
func (f *Facade) PreloadBatch(ctx context.Context, keys []string, priority model.Priority) []<-chan bool {
	out := make([]<-chan bool, len(keys))
	for i, key := range keys {
		out[i] = f.preload(ctx, key, priority)
	}
	return out
}

// PreloadAll preloads keys concurrently and returns how many of them ended up cached.
func (f *Facade) PreloadAll(ctx context.Context, keys []string, priority model.Priority) int {
	var ok atomic.Int64
	var g errgroup.Group
	for _, ch := range f.PreloadBatch(ctx, keys, priority) {
		g.Go(func() error {
			if <-ch {
				ok.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load())
}

// IsCached reports whether Get would return a local path, without counting a hit or a miss.
func (f *Facade) IsCached(key string) bool {
	_, ok := f.store.Peek(key)
	return ok
}

func (f *Facade) Clear(key string)              { f.store.Evict(key) }
func (f *Facade) ClearAll() error               { return f.store.ClearAll() }
func (f *Facade) Stats() model.Stats            { return f.store.Stats() }
func (f *Facade) Cancel(requesterID string) int { return f.sched.Cancel(requesterID) }

func (f *Facade) Scheduler() *scheduler.Scheduler { return f.sched }

func (f *Facade) Close() error { return f.sched.Close() }

/**
 * Private API.
 */

func (f *Facade) preload(ctx context.Context, key string, priority model.Priority) <-chan bool {
	out := make(chan bool, 1)
	if f.cached(key) {
		out <- true
		return out
	}

	res := f.sched.Enqueue(ctx, key, priority, RequesterFrom(ctx))
	go func() { out <- (<-res).OK() }()
	return out
}

// cached collapses concurrent cache checks of one key. A single fetch and store per key
// comes from scheduler dedup, not from here.
func (f *Facade) cached(key string) bool {
	v, _, _ := f.peeks.Do(key, func() (any, error) {
		_, ok := f.store.Peek(key)
		return ok, nil
	})
	return v.(bool)
}

func (f *Facade) onResult(key string, priority model.Priority, data []byte) error {
	hint := model.TierDisk
	if priority == model.PriorityCritical {
		hint = model.TierMemory
	}
	// a negative ttl selects the configured default
	_, err := f.store.Store(key, data, -1, hint)
	return err
}
