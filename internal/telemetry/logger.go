package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/internal/shared/bytes"
)

type Logger interface {
	Interval() time.Duration
	Close() error
}

type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.Cache
	logger   *slog.Logger
	sampler  *Sampler
	interval time.Duration
}

func New(
	ctx context.Context,
	cfg *config.Cache,
	logger *slog.Logger,
	sampler *Sampler,
) *Logs {
	var interval time.Duration
	if cfg.Telemetry.Enabled() {
		interval = cfg.Telemetry.Interval
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&Logs{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		sampler:  sampler,
		interval: interval,
	}).run()
}

func (l *Logs) Interval() time.Duration {
	return l.interval
}

func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) run() *Logs {
	if l.cfg.Telemetry.Enabled() && l.cfg.Telemetry.LogsEnabled && l.interval > 0 {
		go l.loop()
	}
	return l
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	var softLimit = "INF"
	if l.cfg.Eviction.Enabled() {
		softLimit = bytes.FmtSigned(l.cfg.Eviction.SoftLimitBytes)
	}
	hardLimit := bytes.FmtSigned(l.cfg.Disk.MaxBytes)
	memLimit := bytes.FmtSigned(l.cfg.Memory.MaxBytes)

	prev := l.sampler.Snapshot()
	for {
		select {
		case <-l.ctx.Done():
			return

		case <-ticker.C:
			cur := l.sampler.Snapshot()
			d := deltaSnapshot(prev, cur)
			l.write(prev, d, memLimit, softLimit, hardLimit)
			prev = cur
		}
	}
}

func (l *Logs) write(prev, d Snapshot, memLimit, softLimit, hardLimit string) {
	common := []any{"interval", l.interval.String()}

	if l.cfg.Lifetime.Enabled() {
		l.logger.Info("lifetime_manager",
			append(common,
				"removed", d.SweepRemoved,
				"errors", d.SweepErrors,
				"scans", d.SweepScans,
				"hits", d.SweepHits,
				"misses", d.SweepMisses,
			)...,
		)
	}

	if l.cfg.Eviction.Enabled() {
		l.logger.Info("soft_evictor",
			append(common,
				"scans", d.SoftScans,
				"hits", d.SoftHits,
				"freed_items", d.SoftEvictedItems,
				"freed_bytes", bytes.FmtSigned(d.SoftEvictedBytes),
			)...,
		)
	}

	if d.Store.Memory.Evictions > 0 || d.Store.Disk.Evictions > 0 {
		l.logger.Info("lru_evictor",
			append(common,
				"memory_evictions", d.Store.Memory.Evictions,
				"disk_evictions", d.Store.Disk.Evictions,
			)...,
		)
	}

	l.logger.Info("scheduler",
		append(common,
			"quality", d.Quality.String(),
			"limit", d.Scheduler.Limit,
			"queued", d.Scheduler.Queued,
			"fetching", d.Scheduler.Fetching,
			"enqueued", d.Scheduler.Enqueued,
			"deduped", d.Scheduler.Deduped,
			"completed", d.Scheduler.Completed,
			"failed", d.Scheduler.Failed,
			"canceled", d.Scheduler.Canceled,
		)...,
	)

	l.logger.Info("prefetch",
		append(common,
			"online", d.Prefetch.Online,
			"queued", d.Prefetch.Queued,
			"active", d.Prefetch.Active,
			"enqueued", d.Prefetch.Enqueued,
			"suppressed", d.Prefetch.Suppressed,
			"completed", d.Prefetch.Completed,
			"failed_keys", d.Prefetch.FailedKeys,
		)...,
	)

	var hitRate float64
	if total := d.Store.Hits + d.Store.Misses; total > 0 {
		hitRate = float64(d.Store.Hits) / float64(total)
	}
	l.logger.Info("storage",
		append(common,
			"memory_size", bytes.FmtSigned(d.Store.Memory.Bytes),
			"memory_entries", d.Store.Memory.Entries,
			"memory_limit", memLimit,
			"disk_size", bytes.FmtSigned(d.Store.Disk.Bytes),
			"disk_growth", bytes.FmtSigned(d.Store.Disk.Bytes-prev.Store.Disk.Bytes),
			"disk_entries", d.Store.Disk.Entries,
			"soft_limit", softLimit,
			"hard_limit", hardLimit,
			"hits", d.Store.Hits,
			"misses", d.Store.Misses,
			"hit_rate", hitRate,
			"expired", d.Store.Expirations,
		)...,
	)
}
