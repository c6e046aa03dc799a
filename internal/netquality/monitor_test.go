package netquality

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/internal/shared/testhelp"
	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(timeout time.Duration) *Monitor {
	return New(&config.NetworkCfg{SignalTimeout: timeout}, testhelp.Logger())
}

// TestMonitor_StartsConservative reports the slowest online level before any signal.
func TestMonitor_StartsConservative(t *testing.T) {
	m := newTestMonitor(time.Second)
	require.Equal(t, model.QualitySlowCellular, m.Current())
}

// TestMonitor_Subscribe_NotifiesOnChangeOnly skips updates that keep the level.
func TestMonitor_Subscribe_NotifiesOnChangeOnly(t *testing.T) {
	m := newTestMonitor(time.Second)
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	m.Update(model.QualitySlowCellular)
	select {
	case q := <-ch:
		t.Fatalf("unexpected notification %s", q)
	default:
	}

	m.Update(model.QualityWifi)
	require.Equal(t, model.QualityWifi, <-ch)
	require.Equal(t, model.QualityWifi, m.Current())
}

// TestMonitor_Subscribe_CoalescesForSlowReaders delivers only the latest level.
func TestMonitor_Subscribe_CoalescesForSlowReaders(t *testing.T) {
	m := newTestMonitor(time.Second)
	ch, unsubscribe := m.Subscribe()

	m.Update(model.QualityWifi)
	m.Update(model.QualityOffline)
	m.Update(model.QualityFastCellular)

	require.Equal(t, model.QualityFastCellular, <-ch)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	require.False(t, open)

	// no panic on updates after unsubscribe
	m.Update(model.QualityWifi)
}

// TestMonitor_Update_UnknownIsConservative replaces out of range levels.
func TestMonitor_Update_UnknownIsConservative(t *testing.T) {
	m := newTestMonitor(time.Second)
	m.Update(model.QualityWifi)
	m.Update(model.Quality(42))
	require.Equal(t, model.QualitySlowCellular, m.Current())
}

// TestMonitor_Run_FollowsSignal applies reports and falls back on failing ones.
func TestMonitor_Run_FollowsSignal(t *testing.T) {
	m := newTestMonitor(time.Second)
	reports := make(chan Report)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, ChanSignal(reports)) }()

	reports <- Report{Quality: model.QualityWifi}
	require.Eventually(t, func() bool { return m.Current() == model.QualityWifi }, time.Second, time.Millisecond)

	reports <- Report{Err: errors.New("radio is off")}
	require.Eventually(t, func() bool { return m.Current() == model.QualitySlowCellular }, time.Second, time.Millisecond)

	reports <- Report{Quality: model.QualityOffline}
	require.Eventually(t, func() bool { return m.Current() == model.QualityOffline }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// TestMonitor_Run_SilentSignalDefaultsToSlowCellular never blocks on a signal that never reports.
func TestMonitor_Run_SilentSignalDefaultsToSlowCellular(t *testing.T) {
	m := newTestMonitor(20 * time.Millisecond)
	m.Update(model.QualityOffline)

	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = m.Run(ctx, ChanSignal(make(chan Report))) }()

	select {
	case q := <-ch:
		require.Equal(t, model.QualitySlowCellular, q)
	case <-time.After(time.Second):
		t.Fatal("monitor did not fall back")
	}
}

// TestMonitor_Run_ClosedSignal falls back and returns.
func TestMonitor_Run_ClosedSignal(t *testing.T) {
	m := newTestMonitor(time.Second)
	m.Update(model.QualityWifi)

	reports := make(chan Report)
	close(reports)
	require.NoError(t, m.Run(t.Context(), ChanSignal(reports)))
	require.Equal(t, model.QualitySlowCellular, m.Current())
}
