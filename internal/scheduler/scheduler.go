// Package scheduler turns prioritized fetch intents into fetches bounded by a concurrency
// limit that follows network quality. At most one fetch per key is live at a time.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/internal/netquality"
	"github.com/Borislavv/go-ash-imgcache/model"
)

var (
	ErrCanceled = errors.New("preload canceled")
	ErrClosed   = errors.New("scheduler is closed")
	ErrEmptyKey = errors.New("empty preload key")
)

// Result resolves one Enqueue call. A nil Err means the bytes were fetched and handed to OnResult.
type Result struct {
	Key string
	Err error
}

func (r Result) OK() bool { return r.Err == nil }

type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Hooks connect the scheduler to the cache without depending on it.
type Hooks struct {
	// Completed reports whether key is already cached and not expired.
	Completed func(key string) bool
	// OnResult receives fetched bytes before waiters are released. An error fails the request.
	OnResult func(key string, priority model.Priority, data []byte) error
	// Fetched observes every network fetch, successful or not.
	Fetched func(elapsed time.Duration, err error)
}

type Stats struct {
	Queued    int
	Fetching  int
	Limit     int
	Enqueued  int64
	Deduped   int64
	Skipped   int64
	Completed int64
	Failed    int64
	Canceled  int64
}

type Preloader interface {
	Enqueue(ctx context.Context, key string, priority model.Priority, requesterID string) <-chan Result
	Cancel(requesterID string) int
	Limit() int
	Stats() Stats
	Close() error
}

type Scheduler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.SchedulerCfg
	logger   *slog.Logger
	fetcher  Fetcher
	hooks    Hooks
	counters *counters
	wg       sync.WaitGroup

	mu       sync.Mutex
	queue    requestQueue
	live     map[string]*request
	fetching int
	limit    int
	seq      uint64
	closed   bool
}

// New builds a scheduler. When quality is not nil the limit follows its level,
// otherwise it starts at the conservative level and changes only through SetLimit.
func New(
	ctx context.Context,
	cfg *config.SchedulerCfg,
	logger *slog.Logger,
	fetcher Fetcher,
	quality netquality.Quality,
	hooks Hooks,
) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		fetcher:  fetcher,
		hooks:    hooks,
		counters: newCounters(),
		live:     make(map[string]*request),
		limit:    cfg.MaxConcurrency.For(model.QualityConservative),
	}
	return s.run(quality)
}

// Enqueue registers a fetch intent and returns a channel receiving exactly one Result.
// Intents for a key that is queued or fetching attach to it; a higher priority promotes
// a queued intent. A done ctx detaches this caller only.
func (s *Scheduler) Enqueue(ctx context.Context, key string, priority model.Priority, requesterID string) <-chan Result {
	ch := make(chan Result, 1)
	if key == "" {
		ch <- Result{Key: key, Err: ErrEmptyKey}
		return ch
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ch <- Result{Key: key, Err: ErrClosed}
		return ch
	}
	if r, ok := s.live[key]; ok {
		s.joinLocked(ctx, r, priority, requesterID, ch)
		s.mu.Unlock()
		return ch
	}
	s.mu.Unlock()

	if s.hooks.Completed != nil && s.hooks.Completed(key) {
		s.counters.skipped.Add(1)
		ch <- Result{Key: key}
		return ch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		ch <- Result{Key: key, Err: ErrClosed}
		return ch
	}
	// another caller may have won the race while the cache was checked
	if r, ok := s.live[key]; ok {
		s.joinLocked(ctx, r, priority, requesterID, ch)
		return ch
	}

	s.seq++
	r := &request{
		key:        key,
		priority:   priority,
		enqueuedAt: time.Now(),
		seq:        s.seq,
		state:      stateQueued,
	}
	s.attachLocked(ctx, r, requesterID, ch)
	s.live[key] = r
	heap.Push(&s.queue, r)
	s.counters.enqueued.Add(1)
	s.drainLocked()

	return ch
}

// Cancel resolves every waiter of requesterID with ErrCanceled and drops queued requests
// nobody else waits for. Fetches already running finish and still reach OnResult.
// It returns the number of dropped requests.
func (s *Scheduler) Cancel(requesterID string) int {
	var resolved []pending

	s.mu.Lock()
	var dropped int
	for key, r := range s.live {
		kept := r.waiters[:0]
		for _, w := range r.waiters {
			if w.requesterID == requesterID {
				resolved = append(resolved, pending{w: w, res: Result{Key: key, Err: ErrCanceled}})
			} else {
				kept = append(kept, w)
			}
		}
		clear(r.waiters[len(kept):])
		r.waiters = kept

		if r.state == stateQueued && len(r.waiters) == 0 {
			heap.Remove(&s.queue, r.index)
			delete(s.live, key)
			dropped++
		}
	}
	s.mu.Unlock()

	s.counters.canceled.Add(int64(dropped))
	for _, p := range resolved {
		p.w.resolve(p.res)
	}
	if dropped > 0 || len(resolved) > 0 {
		s.logger.Debug("preloads canceled", "requester", requesterID, "dropped", dropped, "detached", len(resolved))
	}
	return dropped
}

// SetLimit changes the number of parallel fetches. Zero freezes the queue;
// fetches already running are not affected.
func (s *Scheduler) SetLimit(n int) {
	n = max(n, 0)

	s.mu.Lock()
	prev := s.limit
	s.limit = n
	s.drainLocked()
	s.mu.Unlock()

	if prev != n {
		s.logger.Info("scheduler limit changed", "from", prev, "to", n)
	}
}

func (s *Scheduler) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

func (s *Scheduler) Stats() Stats {
	enqueued, deduped, skipped, completed, failed, canceled := s.counters.snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Queued:    s.queue.Len(),
		Fetching:  s.fetching,
		Limit:     s.limit,
		Enqueued:  enqueued,
		Deduped:   deduped,
		Skipped:   skipped,
		Completed: completed,
		Failed:    failed,
		Canceled:  canceled,
	}
}

// Close resolves queued requests with ErrClosed and waits for running fetches.
func (s *Scheduler) Close() error {
	s.cancel()

	var resolved []pending
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for s.queue.Len() > 0 {
		r := heap.Pop(&s.queue).(*request)
		delete(s.live, r.key)
		for _, w := range r.waiters {
			resolved = append(resolved, pending{w: w, res: Result{Key: r.key, Err: ErrClosed}})
		}
		r.waiters = nil
	}
	s.mu.Unlock()

	for _, p := range resolved {
		p.w.resolve(p.res)
	}
	s.wg.Wait()
	s.logger.Info("scheduler is stopped")
	return nil
}

/**
 * Private API.
 */

func (s *Scheduler) run(quality netquality.Quality) *Scheduler {
	if quality == nil {
		s.logger.Info("scheduler is running", "limit", s.limit)
		return s
	}

	updates, unsubscribe := quality.Subscribe()
	s.SetLimit(s.cfg.MaxConcurrency.For(quality.Current()))
	s.logger.Info("scheduler is running", "limit", s.Limit(), "quality", quality.Current().String())

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-s.ctx.Done():
				return
			case q, ok := <-updates:
				if !ok {
					return
				}
				s.SetLimit(s.cfg.MaxConcurrency.For(q))
			}
		}
	}()
	return s
}

// joinLocked attaches a duplicate intent to a live request, promoting it while queued.
func (s *Scheduler) joinLocked(ctx context.Context, r *request, priority model.Priority, requesterID string, ch chan Result) {
	s.attachLocked(ctx, r, requesterID, ch)
	if r.state == stateQueued && priority > r.priority {
		r.priority = priority
		heap.Fix(&s.queue, r.index)
	}
	s.counters.deduped.Add(1)
}

func (s *Scheduler) attachLocked(ctx context.Context, r *request, requesterID string, ch chan Result) {
	w := waiter{requesterID: requesterID, ch: ch}
	if ctx != nil && ctx.Done() != nil {
		w.stop = context.AfterFunc(ctx, func() { s.detach(r, ch, ctx.Err()) })
	}
	r.waiters = append(r.waiters, w)
}

// detach resolves a single waiter whose context is done.
func (s *Scheduler) detach(r *request, ch chan Result, cause error) {
	s.mu.Lock()
	if s.live[r.key] != r {
		s.mu.Unlock()
		return
	}
	idx := -1
	for i := range r.waiters {
		if r.waiters[i].ch == ch {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	r.waiters = append(r.waiters[:idx], r.waiters[idx+1:]...)
	if r.state == stateQueued && len(r.waiters) == 0 {
		heap.Remove(&s.queue, r.index)
		delete(s.live, r.key)
		s.counters.canceled.Add(1)
	}
	s.mu.Unlock()

	ch <- Result{Key: r.key, Err: fmt.Errorf("%w: %w", ErrCanceled, cause)}
}

func (s *Scheduler) drainLocked() {
	for !s.closed && s.fetching < s.limit && s.queue.Len() > 0 {
		r := heap.Pop(&s.queue).(*request)
		r.state = stateFetching
		s.fetching++
		s.wg.Add(1)
		go s.fetch(r, r.priority)
	}
}

func (s *Scheduler) fetch(r *request, priority model.Priority) {
	defer s.wg.Done()

	// running fetches survive Close and Cancel, only the fixed timeout stops them
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.FetchTimeout)
	start := time.Now()
	data, err := s.fetcher.Fetch(ctx, r.key)
	cancel()
	if s.hooks.Fetched != nil {
		s.hooks.Fetched(time.Since(start), err)
	}

	if err == nil && s.hooks.OnResult != nil {
		err = s.hooks.OnResult(r.key, priority, data)
	}

	s.mu.Lock()
	delete(s.live, r.key)
	s.fetching--
	waiters := r.waiters
	r.waiters = nil
	s.drainLocked()
	s.mu.Unlock()

	if err != nil {
		s.counters.failed.Add(1)
		s.logger.Warn("preload failed", "key", r.key, "priority", priority.String(), "elapsed", time.Since(start).String(), "err", err)
	} else {
		s.counters.completed.Add(1)
	}
	for _, w := range waiters {
		w.resolve(Result{Key: r.key, Err: err})
	}
}

// resolve is called only by the side that removed w from its request under the lock.
func (w waiter) resolve(res Result) {
	if w.stop != nil {
		w.stop()
	}
	w.ch <- res
}
