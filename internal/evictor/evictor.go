package evictor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
)

var ErrEvictorNotResponded = errors.New("evictor not responded")

// Trimmer is the part of the store the evictor works on.
type Trimmer interface {
	DiskBytes() int64
	EvictDiskUntil(limit int64) (freedBytes, evicted int64)
}

type Evictor interface {
	ForceCall(timeout time.Duration) error
	EvictorMetrics() (scans, hits, evictedItems, evictedBytes int64)
	Close() error
}

// EvictionWorker keeps the persistent tier below the soft limit. The hard limit
// is enforced by the store itself on every insertion.
type EvictionWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.EvictionCfg
	logger   *slog.Logger
	store    Trimmer
	counters *evictorCounters
	invokeCh chan struct{}
}

func New(
	ctx context.Context,
	cfg *config.EvictionCfg,
	logger *slog.Logger,
	store Trimmer,
) Evictor {
	if !cfg.Enabled() {
		return &NoOpEvictor{}
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&EvictionWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		store:    store,
		counters: newEvictorCounters(),
		invokeCh: make(chan struct{}),
	}).run()
}

func (w *EvictionWorker) ForceCall(timeout time.Duration) error {
	after := time.NewTimer(timeout)
	defer after.Stop()

	select {
	case <-w.ctx.Done():
	case w.invokeCh <- struct{}{}:
	case <-after.C:
		return ErrEvictorNotResponded
	}
	return nil
}

func (w *EvictionWorker) EvictorMetrics() (scans, hits, evictedItems, evictedBytes int64) {
	return w.counters.snapshot()
}

func (w *EvictionWorker) Close() error {
	w.cancel()
	return nil
}

func (w *EvictionWorker) run() *EvictionWorker {
	w.logger.Info("evictor is running", "calls_per_sec", w.cfg.CallsPerSec, "soft_limit_bytes", w.cfg.SoftLimitBytes)

	go func() {
		defer w.logger.Info("evictor is stopped")
		w.loop()
	}()

	return w
}

// loop checks the soft limit CallsPerSec times a second and trims the tier when it is overcome.
func (w *EvictionWorker) loop() {
	var evictionCallsPerSec = w.cfg.CallsPerSec
	if w.cfg.CallsPerSec <= 0 {
		evictionCallsPerSec = 1
	}

	each := time.Second / time.Duration(evictionCallsPerSec)
	tick := time.NewTicker(each)
	defer tick.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-tick.C:
			w.counters.scans.Add(1)
			if w.store.DiskBytes() > w.cfg.SoftLimitBytes {
				w.counters.scanHits.Add(1)
				w.evict()
			}
		case <-w.invokeCh:
			w.evict()
		}
	}
}

func (w *EvictionWorker) evict() {
	freedBytes, items := w.store.EvictDiskUntil(w.cfg.SoftLimitBytes)
	if items > 0 || freedBytes > 0 {
		w.counters.evictedItems.Add(items)
		w.counters.evictedBytes.Add(freedBytes)
		w.logger.Debug("disk tier trimmed to soft limit", "items", items, "freed_bytes", freedBytes)
	}
}
