// Package prefetch warms the images of sections the user is likely to open next.
// Look-ahead, predictive and refresh intents share one section queue and reach the
// network only through the image cache.
package prefetch

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/internal/imagecache"
	"github.com/Borislavv/go-ash-imgcache/internal/netquality"
	"github.com/Borislavv/go-ash-imgcache/internal/shared/rate"
	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Preloader is the part of the image cache the orchestrator drives.
type Preloader interface {
	PreloadBatch(ctx context.Context, keys []string, priority model.Priority) []<-chan bool
	Cancel(requesterID string) int
}

type Stats struct {
	Queued     int
	Active     int
	Online     bool
	Enqueued   int64
	Promoted   int64
	Suppressed int64
	Completed  int64
	FailedKeys int64
}

type Prefetcher interface {
	OnSectionViewed(sectionID string, all []model.Section) int
	OnUserContextUpdated(uc model.UserContext, all []model.Section) int
	BackgroundRefresh(all []model.Section) int
	CancelSection(sectionID string)
	Stats() Stats
	Close() error
}

type Orchestrator struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.PrefetchCfg
	logger   *slog.Logger
	cache    Preloader
	clock    clock.Clock
	jitter   *rate.Jitter
	counters *counters
	wakeCh   chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	queue    taskQueue
	queued   map[string]*task
	active   map[string]*task
	last     map[string]time.Time // section id -> last completed prefetch
	sections []model.Section      // last section list seen, used by periodic refresh
	online   bool
	seq      uint64
}

// New starts the orchestrator. A nil quality means the device is always considered online.
func New(
	ctx context.Context,
	cfg *config.PrefetchCfg,
	logger *slog.Logger,
	cache Preloader,
	quality netquality.Quality,
	clk clock.Clock,
) *Orchestrator {
	ctx, cancel := context.WithCancel(ctx)
	return (&Orchestrator{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		clock:    clk,
		jitter:   rate.NewJitter(ctx, cfg.RefreshRate),
		counters: newCounters(),
		wakeCh:   make(chan struct{}, 1),
		queued:   make(map[string]*task),
		active:   make(map[string]*task),
		last:     make(map[string]time.Time),
		online:   true,
	}).run(quality)
}

// OnSectionViewed queues the sections following sectionID at medium priority.
// It returns the number of sections queued.
func (o *Orchestrator) OnSectionViewed(sectionID string, all []model.Section) int {
	o.mu.Lock()
	o.sections = all

	pos := -1
	for i := range all {
		if all[i].ID == sectionID {
			pos = i
			break
		}
	}
	if pos < 0 {
		o.mu.Unlock()
		o.logger.Debug("viewed section is unknown", "section", sectionID)
		return 0
	}

	var n int
	now := o.clock.Now()
	for i := pos + 1; i < len(all) && i <= pos+o.cfg.LookAhead; i++ {
		if o.enqueueLocked(all[i], model.PriorityMedium, now) {
			n++
		}
	}
	o.mu.Unlock()

	o.wake()
	return n
}

// OnUserContextUpdated queues predicted sections at low priority and returns how many were queued.
func (o *Orchestrator) OnUserContextUpdated(uc model.UserContext, all []model.Section) int {
	candidates := predict(uc, all, o.cfg.MaxPredicted)

	o.mu.Lock()
	o.sections = all
	var n int
	now := o.clock.Now()
	for _, s := range candidates {
		if o.enqueueLocked(s, model.PriorityLow, now) {
			n++
		}
	}
	o.mu.Unlock()

	if n > 0 {
		o.logger.Debug("predicted sections queued", "queued", n, "candidates", len(candidates))
	}
	o.wake()
	return n
}

// BackgroundRefresh re-queues at low priority every section whose last prefetch is older than
// the staleness window. Sections never prefetched are left alone. Enqueues are paced by RefreshRate.
func (o *Orchestrator) BackgroundRefresh(all []model.Section) int {
	o.mu.Lock()
	o.sections = all
	now := o.clock.Now()
	var stale []model.Section
	for _, s := range all {
		if last, ok := o.last[s.ID]; ok && now.Sub(last) >= o.cfg.StaleAfter {
			stale = append(stale, s)
		}
	}
	o.mu.Unlock()

	var n int
	for _, s := range stale {
		if !o.jitter.Take() || o.ctx.Err() != nil {
			break
		}

		o.mu.Lock()
		queued := o.enqueueLocked(s, model.PriorityLow, o.clock.Now())
		o.mu.Unlock()

		if queued {
			n++
			o.wake()
		}
	}
	return n
}

// CancelSection drops a queued section and cancels preloads already issued for it.
func (o *Orchestrator) CancelSection(sectionID string) {
	o.mu.Lock()
	if t, ok := o.queued[sectionID]; ok {
		heap.Remove(&o.queue, t.index)
		delete(o.queued, sectionID)
	}
	if t, ok := o.active[sectionID]; ok {
		t.canceled = true
	}
	o.mu.Unlock()

	o.cache.Cancel(sectionID)
}

func (o *Orchestrator) Stats() Stats {
	enqueued, promoted, suppressed, completed, failedKeys := o.counters.snapshot()

	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		Queued:     o.queue.Len(),
		Active:     len(o.active),
		Online:     o.online,
		Enqueued:   enqueued,
		Promoted:   promoted,
		Suppressed: suppressed,
		Completed:  completed,
		FailedKeys: failedKeys,
	}
}

// Close stops processing. Preloads issued by active tasks are detached from the cache.
func (o *Orchestrator) Close() error {
	o.cancel()
	o.wg.Wait()
	return nil
}

/**
 * Private API.
 */

func (o *Orchestrator) run(quality netquality.Quality) *Orchestrator {
	if quality != nil {
		updates, unsubscribe := quality.Subscribe()
		o.online = quality.Current().IsOnline()
		o.wg.Go(func() {
			defer unsubscribe()
			for {
				select {
				case <-o.ctx.Done():
					return
				case q, ok := <-updates:
					if !ok {
						return
					}
					o.setOnline(q.IsOnline())
				}
			}
		})
	}

	o.wg.Go(o.loop)
	if o.cfg.RefreshInterval > 0 {
		o.wg.Go(o.refresher)
	}

	o.logger.Info("prefetch is running",
		"look_ahead", o.cfg.LookAhead,
		"stale_after", o.cfg.StaleAfter.String(),
		"max_active_tasks", o.cfg.MaxActiveTasks,
		"online", o.online,
	)
	go func() {
		<-o.ctx.Done()
		o.logger.Info("prefetch is stopped")
	}()
	return o
}

// enqueueLocked returns true when a new task was queued.
func (o *Orchestrator) enqueueLocked(s model.Section, priority model.Priority, now time.Time) bool {
	if len(s.ImageKeys) == 0 {
		return false
	}

	if t, ok := o.queued[s.ID]; ok {
		t.keys = s.ImageKeys
		if priority > t.priority {
			t.priority = priority
			heap.Fix(&o.queue, t.index)
			o.counters.promoted.Add(1)
		} else {
			o.counters.suppressed.Add(1)
		}
		return false
	}
	if _, ok := o.active[s.ID]; ok {
		o.counters.suppressed.Add(1)
		return false
	}
	if last, ok := o.last[s.ID]; ok && now.Sub(last) < o.cfg.StaleAfter {
		o.counters.suppressed.Add(1)
		return false
	}

	o.seq++
	t := &task{
		id:         uuid.NewString(),
		sectionID:  s.ID,
		keys:       s.ImageKeys,
		priority:   priority,
		enqueuedAt: now,
		seq:        o.seq,
	}
	o.queued[s.ID] = t
	heap.Push(&o.queue, t)
	o.counters.enqueued.Add(1)
	return true
}

func (o *Orchestrator) wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) setOnline(online bool) {
	o.mu.Lock()
	prev := o.online
	o.online = online
	queued := o.queue.Len()
	o.mu.Unlock()

	if prev == online {
		return
	}
	if online {
		o.logger.Info("prefetch resumed", "queued", queued)
		o.wake()
	} else {
		o.logger.Info("prefetch halted: offline", "queued", queued)
	}
}

func (o *Orchestrator) loop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.wakeCh:
			o.dispatch()
		}
	}
}

// dispatch is called only from loop.
func (o *Orchestrator) dispatch() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.ctx.Err() == nil && o.online && len(o.active) < o.cfg.MaxActiveTasks && o.queue.Len() > 0 {
		t := heap.Pop(&o.queue).(*task)
		delete(o.queued, t.sectionID)
		o.active[t.sectionID] = t
		o.wg.Go(func() { o.process(t) })
	}
}

func (o *Orchestrator) process(t *task) {
	ctx := imagecache.WithRequester(o.ctx, t.sectionID)

	var ok, failed int
	for _, ch := range o.cache.PreloadBatch(ctx, t.keys, t.priority) {
		if <-ch {
			ok++
		} else {
			failed++
		}
	}

	o.mu.Lock()
	delete(o.active, t.sectionID)
	canceled := t.canceled || o.ctx.Err() != nil
	if !canceled {
		o.last[t.sectionID] = o.clock.Now()
	}
	o.mu.Unlock()

	if !canceled {
		o.counters.completed.Add(1)
		o.counters.failedKeys.Add(int64(failed))
	}
	o.logger.Debug("section prefetched",
		"task", t.id,
		"section", t.sectionID,
		"priority", t.priority.String(),
		"ok", ok,
		"failed", failed,
		"canceled", canceled,
		"waited", o.clock.Since(t.enqueuedAt).String(),
	)
	o.wake()
}

func (o *Orchestrator) refresher() {
	tick := o.clock.Ticker(o.cfg.RefreshInterval)
	defer tick.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-tick.C:
			o.mu.Lock()
			all, online := o.sections, o.online
			o.mu.Unlock()

			if online && len(all) > 0 {
				if n := o.BackgroundRefresh(all); n > 0 {
					o.logger.Debug("stale sections re-queued", "queued", n)
				}
			}
		}
	}
}
