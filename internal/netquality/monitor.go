// Package netquality classifies connectivity into ordered levels and fans changes out to subscribers.
package netquality

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/model"
)

// Report is one observation of a connectivity signal. A report with Err means the
// signal could not tell the level.
type Report struct {
	Quality model.Quality
	Err     error
}

// Signal is a platform connectivity source. The returned channel is closed when the
// source stops reporting.
type Signal interface {
	Watch(ctx context.Context) (<-chan Report, error)
}

// ChanSignal adapts a channel fed by a platform callback into a Signal.
type ChanSignal <-chan Report

func (s ChanSignal) Watch(context.Context) (<-chan Report, error) { return s, nil }

type Quality interface {
	Current() model.Quality
	Subscribe() (<-chan model.Quality, func())
}

// Monitor is read-only for the rest of the pipeline: it never touches cache or queue state.
type Monitor struct {
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	current model.Quality
	subs    map[uint64]chan model.Quality
	nextID  uint64
}

// New starts at the conservative level until a signal says otherwise.
func New(cfg *config.NetworkCfg, logger *slog.Logger) *Monitor {
	return &Monitor{
		logger:  logger,
		timeout: cfg.SignalTimeout,
		current: model.QualityConservative,
		subs:    make(map[uint64]chan model.Quality),
	}
}

func (m *Monitor) Current() model.Quality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe returns a channel receiving every change. A slow reader observes only the
// latest level. The returned func unsubscribes and closes the channel.
func (m *Monitor) Subscribe() (<-chan model.Quality, func()) {
	ch := make(chan model.Quality, 1)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}
}

// Update sets the current level and notifies subscribers when it changed.
// Unknown levels are replaced by the conservative one.
func (m *Monitor) Update(q model.Quality) {
	if q < model.QualityOffline || q > model.QualityWifi {
		q = model.QualityConservative
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q == m.current {
		return
	}
	prev := m.current
	m.current = q
	for _, ch := range m.subs {
		notify(ch, q)
	}
	m.logger.Info("network quality changed", "from", prev.String(), "to", q.String())
}

// Run consumes sig until ctx is done or the signal ends. Whenever the signal is missing,
// silent past the configured timeout, or failing, the level falls back to the conservative one.
func (m *Monitor) Run(ctx context.Context, sig Signal) error {
	reports, err := sig.Watch(ctx)
	if err != nil {
		m.logger.Warn("network signal unavailable, assuming conservative quality", "err", err)
		m.Update(model.QualityConservative)
		return err
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			m.logger.Warn("no network signal received in time, assuming conservative quality", "timeout", m.timeout.String())
			m.Update(model.QualityConservative)
		case r, ok := <-reports:
			if !ok {
				m.logger.Warn("network signal closed, assuming conservative quality")
				m.Update(model.QualityConservative)
				return nil
			}
			timer.Stop()
			if r.Err != nil {
				m.logger.Warn("network signal failed", "err", r.Err)
				m.Update(model.QualityConservative)
				continue
			}
			m.Update(r.Quality)
		}
	}
}

func notify(ch chan model.Quality, q model.Quality) {
	select {
	case ch <- q:
		return
	default:
	}
	// replace the stale value nobody read yet
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- q:
	default:
	}
}
