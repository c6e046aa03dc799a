package lifetimer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
)

var ErrLifetimerNotResponded = errors.New("lifetimer not responded")

// Sweeper is the part of the store the lifetimer works on.
type Sweeper interface {
	SweepExpired() int
	Flush() error
}

type Lifetimer interface {
	ForceCall(timeout time.Duration) error
	LifetimerMetrics() (removed, errors, scans, hits, misses int64)
	Close() error
}

// LifetimeWorker reclaims expired entries every SweepInterval and flushes buffered
// index updates on the same beat.
type LifetimeWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.LifetimeCfg
	store    Sweeper
	logger   *slog.Logger
	counters *lifetimerCounters
	invokeCh chan struct{}
}

func New(
	ctx context.Context,
	cfg *config.LifetimeCfg,
	logger *slog.Logger,
	store Sweeper,
) Lifetimer {
	if !cfg.Enabled() {
		return &NoOpLifetimer{}
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&LifetimeWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		store:    store,
		logger:   logger,
		counters: newLifetimerCounters(),
		invokeCh: make(chan struct{}),
	}).run()
}

// ForceCall runs a sweep right away.
func (w *LifetimeWorker) ForceCall(timeout time.Duration) error {
	after := time.NewTimer(timeout)
	defer after.Stop()

	select {
	case <-w.ctx.Done():
	case w.invokeCh <- struct{}{}:
	case <-after.C:
		return ErrLifetimerNotResponded
	}
	return nil
}

func (w *LifetimeWorker) LifetimerMetrics() (removed, errors, scans, hits, misses int64) {
	return w.counters.snapshot()
}

func (w *LifetimeWorker) Close() error {
	w.cancel()
	return nil
}

func (w *LifetimeWorker) run() *LifetimeWorker {
	w.logger.Info("lifetimer is running", "sweep_interval", w.cfg.SweepInterval.String(), "default_ttl", w.cfg.DefaultTTL.String())

	go func() {
		defer w.logger.Info("lifetimer is stopped")
		tick := time.NewTicker(w.cfg.SweepInterval)
		defer tick.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-tick.C:
				w.sweep()
			case <-w.invokeCh:
				w.sweep()
			}
		}
	}()

	return w
}

func (w *LifetimeWorker) sweep() {
	w.counters.scans.Add(1)
	if n := w.store.SweepExpired(); n > 0 {
		w.counters.scanHits.Add(1)
		w.counters.removed.Add(int64(n))
	} else {
		w.counters.scanMisses.Add(1)
	}

	if err := w.store.Flush(); err != nil {
		w.counters.errors.Add(1)
		w.logger.Warn("index flush failed", "err", err)
	}
}
