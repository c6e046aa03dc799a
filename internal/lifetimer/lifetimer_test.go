package lifetimer

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/internal/index"
	"github.com/Borislavv/go-ash-imgcache/internal/shared/testhelp"
	"github.com/Borislavv/go-ash-imgcache/internal/store"
	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	expired  atomic.Int64
	sweeps   atomic.Int64
	flushErr error
}

func (f *fakeSweeper) SweepExpired() int {
	f.sweeps.Add(1)
	return int(f.expired.Swap(0))
}

func (f *fakeSweeper) Flush() error { return f.flushErr }

// TestLifetimer_ReclaimsExpiredEntries removes entries past their TTL without any lookup.
func TestLifetimer_ReclaimsExpiredEntries(t *testing.T) {
	cfg := testhelp.LifetimeCfg(t.TempDir(), 30*time.Millisecond)
	idx, err := index.New(t.Context(), cfg)
	require.NoError(t, err)
	st, err := store.Open(t.Context(), cfg, idx, clock.New(), testhelp.Logger())
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	lt := New(t.Context(), cfg.Lifetime, testhelp.Logger(), st)
	defer func() { _ = lt.Close() }()

	_, err = st.Store("https://cdn.example.com/a.png", []byte("a"), -1, model.TierMemory)
	require.NoError(t, err)
	_, err = st.Store("https://cdn.example.com/b.png", []byte("b"), -1, model.TierDisk)
	require.NoError(t, err)
	_, err = st.Store("https://cdn.example.com/pinned.png", []byte("c"), time.Hour, model.TierDisk)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		removed, _, _, _, _ := lt.LifetimerMetrics()
		return removed == 2
	}, time.Second, 10*time.Millisecond)

	stats := st.Stats()
	require.Equal(t, int64(1), stats.Disk.Entries)
	require.Zero(t, stats.Memory.Entries)
	require.Equal(t, int64(2), stats.Expirations)
}

// TestLifetimer_ForceCall sweeps on demand and counts hits, misses and flush errors.
func TestLifetimer_ForceCall(t *testing.T) {
	sw := &fakeSweeper{flushErr: errors.New("index is down")}
	lt := New(t.Context(), &config.LifetimeCfg{SweepInterval: time.Hour}, testhelp.Logger(), sw)
	defer func() { _ = lt.Close() }()

	sw.expired.Store(3)
	require.NoError(t, lt.ForceCall(time.Second))
	require.NoError(t, lt.ForceCall(time.Second))

	require.Eventually(t, func() bool {
		_, _, scans, _, _ := lt.LifetimerMetrics()
		return scans == 2
	}, time.Second, 5*time.Millisecond)

	removed, errs, scans, hits, misses := lt.LifetimerMetrics()
	require.Equal(t, int64(3), removed)
	require.Equal(t, int64(2), errs)
	require.Equal(t, int64(2), scans)
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
}

// TestLifetimer_ForceCallAfterClose does not block once the worker is stopped.
func TestLifetimer_ForceCallAfterClose(t *testing.T) {
	lt := New(t.Context(), &config.LifetimeCfg{SweepInterval: time.Hour}, testhelp.Logger(), &fakeSweeper{})
	require.NoError(t, lt.Close())
	require.NoError(t, lt.ForceCall(50*time.Millisecond))
}
