package imagecache

import (
	"context"
	"errors"
	"sync"
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

type stubFetcher struct {
	calls atomic.Int64
	gate  chan struct{}

	mu   sync.Mutex
	fail map[string]error
}

func (f *stubFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.fail[key]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []byte("image:" + key), nil
}

func newTestFacade(t *testing.T, cfg *config.Cache, fetcher *stubFetcher) *Facade {
	t.Helper()
	idx, err := index.New(t.Context(), cfg)
	require.NoError(t, err)
	st, err := store.Open(t.Context(), cfg, idx, clock.New(), testhelp.Logger())
	require.NoError(t, err)

	f := New(t.Context(), cfg, testhelp.Logger(), st, fetcher, nil)
	t.Cleanup(func() {
		_ = f.Close()
		_ = st.Close()
	})
	return f
}

// TestFacade_GetNeverFetches returns the key itself on a miss without any network activity.
func TestFacade_GetNeverFetches(t *testing.T) {
	fetcher := &stubFetcher{}
	f := newTestFacade(t, testhelp.Cfg(t.TempDir()), fetcher)

	const key = "https://cdn.example.com/a.jpg"
	require.Equal(t, key, f.Get(key))
	require.False(t, f.IsCached(key))
	require.Zero(t, fetcher.calls.Load())

	st := f.Stats()
	require.Equal(t, int64(1), st.Misses, "IsCached does not count")
	require.Zero(t, st.Hits)
}

// TestFacade_PreloadThenGet serves the local path once the preload resolved.
func TestFacade_PreloadThenGet(t *testing.T) {
	fetcher := &stubFetcher{}
	f := newTestFacade(t, testhelp.Cfg(t.TempDir()), fetcher)

	const key = "https://cdn.example.com/a.jpg"
	require.True(t, f.Preload(t.Context(), key, model.PriorityHigh))
	require.True(t, f.IsCached(key))

	path := f.Get(key)
	require.NotEqual(t, key, path)
	require.Equal(t, int64(1), f.Stats().Hits)

	// already cached: no second fetch
	require.True(t, f.Preload(t.Context(), key, model.PriorityHigh))
	require.Equal(t, int64(1), fetcher.calls.Load())
}

// TestFacade_ConcurrentPreloadsFetchOnce collapses two concurrent preloads of one key into a single fetch.
func TestFacade_ConcurrentPreloadsFetchOnce(t *testing.T) {
	fetcher := &stubFetcher{gate: make(chan struct{})}
	f := newTestFacade(t, testhelp.Cfg(t.TempDir()), fetcher)

	const key = "https://cdn.example.com/dedup.webp"
	first := f.PreloadBatch(t.Context(), []string{key}, model.PriorityMedium)[0]
	second := f.PreloadBatch(t.Context(), []string{key}, model.PriorityHigh)[0]

	close(fetcher.gate)
	require.True(t, <-first)
	require.True(t, <-second)
	require.Equal(t, int64(1), fetcher.calls.Load())
	require.Equal(t, int64(1), f.Stats().Disk.Entries)
	require.Equal(t, int64(1), f.Scheduler().Stats().Deduped, "the second preload joins the queued request")
}

// TestFacade_CriticalGoesToMemory places critical preloads in the memory tier right away.
func TestFacade_CriticalGoesToMemory(t *testing.T) {
	f := newTestFacade(t, testhelp.Cfg(t.TempDir()), &stubFetcher{})

	require.True(t, f.Preload(t.Context(), "https://cdn.example.com/low.png", model.PriorityLow))
	require.Zero(t, f.Stats().Memory.Entries)

	require.True(t, f.Preload(t.Context(), "https://cdn.example.com/hero.png", model.PriorityCritical))
	st := f.Stats()
	require.Equal(t, int64(1), st.Memory.Entries)
	require.Equal(t, int64(2), st.Disk.Entries)
}

// TestFacade_FailedPreload reports false and leaves the key uncached.
func TestFacade_FailedPreload(t *testing.T) {
	const key = "https://cdn.example.com/broken.png"
	fetcher := &stubFetcher{fail: map[string]error{key: errors.New("connection reset")}}
	f := newTestFacade(t, testhelp.Cfg(t.TempDir()), fetcher)

	require.False(t, f.Preload(t.Context(), key, model.PriorityHigh))
	require.Equal(t, key, f.Get(key))
}

// TestFacade_PreloadAll counts keys that ended up cached.
func TestFacade_PreloadAll(t *testing.T) {
	fetcher := &stubFetcher{fail: map[string]error{"https://cdn.example.com/2.png": errors.New("404")}}
	f := newTestFacade(t, testhelp.Cfg(t.TempDir()), fetcher)

	keys := []string{
		"https://cdn.example.com/1.png",
		"https://cdn.example.com/2.png",
		"https://cdn.example.com/3.png",
	}
	require.Equal(t, 2, f.PreloadAll(t.Context(), keys, model.PriorityMedium))
	require.True(t, f.IsCached(keys[0]))
	require.False(t, f.IsCached(keys[1]))
	require.True(t, f.IsCached(keys[2]))
}

// TestFacade_CancelByRequester drops queued preloads tagged with the requester.
func TestFacade_CancelByRequester(t *testing.T) {
	fetcher := &stubFetcher{gate: make(chan struct{})}
	cfg := testhelp.Cfg(t.TempDir())
	f := newTestFacade(t, cfg, fetcher)
	f.Scheduler().SetLimit(1)

	busy := f.PreloadBatch(t.Context(), []string{"https://cdn.example.com/busy.png"}, model.PriorityHigh)[0]
	ctx := WithRequester(t.Context(), "section-7")
	queued := f.PreloadBatch(ctx, []string{"https://cdn.example.com/s7-1.png", "https://cdn.example.com/s7-2.png"}, model.PriorityLow)

	require.Equal(t, 2, f.Cancel("section-7"))
	for _, ch := range queued {
		require.False(t, <-ch)
	}

	close(fetcher.gate)
	require.True(t, <-busy)
	require.Equal(t, int64(1), fetcher.calls.Load())
}

// TestFacade_ClearAll empties both tiers and can be called repeatedly.
func TestFacade_ClearAll(t *testing.T) {
	f := newTestFacade(t, testhelp.Cfg(t.TempDir()), &stubFetcher{})

	const key = "https://cdn.example.com/a.png"
	require.True(t, f.Preload(t.Context(), key, model.PriorityCritical))
	require.NoError(t, f.ClearAll())
	require.NoError(t, f.ClearAll())

	require.False(t, f.IsCached(key))
	st := f.Stats()
	require.Zero(t, st.Memory.Entries)
	require.Zero(t, st.Disk.Entries)

	f.Clear(key)
	require.Equal(t, key, f.Get(key))
}

// TestFacade_FetchObserver reports every network fetch.
func TestFacade_FetchObserver(t *testing.T) {
	cfg := testhelp.Cfg(t.TempDir())
	idx, err := index.New(t.Context(), cfg)
	require.NoError(t, err)
	st, err := store.Open(t.Context(), cfg, idx, clock.New(), testhelp.Logger())
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	var observed atomic.Int64
	f := New(t.Context(), cfg, testhelp.Logger(), st, &stubFetcher{}, nil,
		WithFetchObserver(func(_ time.Duration, err error) {
			if err == nil {
				observed.Add(1)
			}
		}),
	)
	defer func() { _ = f.Close() }()

	require.True(t, f.Preload(t.Context(), "https://cdn.example.com/a.png", model.PriorityMedium))
	require.True(t, f.Preload(t.Context(), "https://cdn.example.com/a.png", model.PriorityMedium))
	require.Equal(t, int64(1), observed.Load())
}
