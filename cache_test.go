package imgcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/internal/shared/testhelp"
	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/stretchr/testify/require"
)

type cdn struct {
	*httptest.Server
	hits atomic.Int64
}

func newCDN(t *testing.T) *cdn {
	t.Helper()
	c := &cdn{}
	c.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.hits.Add(1)
		if strings.HasSuffix(r.URL.Path, "/missing.png") {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "image at "+r.URL.Path)
	}))
	t.Cleanup(c.Close)
	return c
}

func (c *cdn) url(path string) string { return c.URL + path }

func newTestCache(t *testing.T, cfg *config.Cache) *Cache {
	t.Helper()
	c, err := New(t.Context(), cfg, testhelp.Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestCache_PreloadThenGet downloads an image once and serves it from disk afterwards.
func TestCache_PreloadThenGet(t *testing.T) {
	srv := newCDN(t)
	c := newTestCache(t, testhelp.Cfg(t.TempDir()))

	key := srv.url("/img/a.png")
	require.Equal(t, key, c.Get(key))
	require.Zero(t, srv.hits.Load(), "get never fetches")

	require.True(t, c.Preload(t.Context(), key, model.PriorityHigh))
	path := c.Get(key)
	require.NotEqual(t, key, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "image at /img/a.png", string(data))

	require.False(t, c.Preload(t.Context(), srv.url("/img/missing.png"), model.PriorityHigh))
	require.Equal(t, int64(2), srv.hits.Load())

	st := c.Stats()
	require.Equal(t, int64(1), st.Hits)
	require.Equal(t, int64(1), st.Misses)
	require.Equal(t, int64(1), st.Disk.Entries)
}

// TestCache_ReopenKeepsPersistentTier serves images stored by a previous instance.
func TestCache_ReopenKeepsPersistentTier(t *testing.T) {
	srv := newCDN(t)
	cfg := testhelp.FileIndexCfg(t.TempDir())
	key := srv.url("/img/persisted.jpg")

	first, err := New(t.Context(), cfg, testhelp.Logger())
	require.NoError(t, err)
	require.True(t, first.Preload(t.Context(), key, model.PriorityMedium))
	require.NoError(t, first.Close())

	second := newTestCache(t, cfg)
	require.True(t, second.IsCached(key))
	require.True(t, second.Preload(t.Context(), key, model.PriorityMedium))
	require.Equal(t, int64(1), srv.hits.Load())
}

// TestCache_OfflinePausesPreloads holds preloads while offline and runs them after reconnect.
func TestCache_OfflinePausesPreloads(t *testing.T) {
	srv := newCDN(t)
	c := newTestCache(t, testhelp.Cfg(t.TempDir()))

	c.UpdateNetwork(model.QualityOffline)
	require.Eventually(t, func() bool { return c.SchedulerStats().Limit == 0 }, time.Second, 5*time.Millisecond)

	key := srv.url("/img/offline.png")
	done := c.PreloadBatch(t.Context(), []string{key}, model.PriorityCritical)[0]

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, srv.hits.Load())
	require.Equal(t, 1, c.SchedulerStats().Queued)

	c.UpdateNetwork(model.QualityWifi)
	select {
	case ok := <-done:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("preload was not resumed after reconnect")
	}
	require.Equal(t, int64(1), c.Stats().Memory.Entries, "critical images go to memory")
}

// TestCache_SectionLookAhead warms the sections following the viewed one.
func TestCache_SectionLookAhead(t *testing.T) {
	srv := newCDN(t)
	c := newTestCache(t, testhelp.Cfg(t.TempDir()))

	all := make([]model.Section, 0, 4)
	for i := range 4 {
		all = append(all, model.Section{
			ID:        fmt.Sprintf("s%d", i),
			ImageKeys: []string{srv.url(fmt.Sprintf("/s%d/1.webp", i)), srv.url(fmt.Sprintf("/s%d/2.webp", i))},
		})
	}

	require.Equal(t, 2, c.OnSectionViewed("s0", all))
	require.Eventually(t, func() bool {
		return c.IsCached(all[1].ImageKeys[1]) && c.IsCached(all[2].ImageKeys[1]) && c.PrefetchStats().Completed == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.False(t, c.IsCached(all[3].ImageKeys[0]))
	require.Equal(t, int64(4), srv.hits.Load())
}

// TestCache_ClearAll empties the cache and Close is idempotent.
func TestCache_ClearAll(t *testing.T) {
	srv := newCDN(t)
	c, err := New(t.Context(), testhelp.Cfg(t.TempDir()), testhelp.Logger())
	require.NoError(t, err)

	key := srv.url("/img/a.png")
	require.True(t, c.Preload(t.Context(), key, model.PriorityLow))
	require.NoError(t, c.ClearAll())
	require.NoError(t, c.ClearAll())
	require.False(t, c.IsCached(key))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

// TestCache_MetricsHandler exposes prometheus metrics when enabled.
func TestCache_MetricsHandler(t *testing.T) {
	cfg := testhelp.Cfg(t.TempDir())
	cfg.Telemetry = &config.TelemetryCfg{MetricsEnabled: true, Namespace: "imgcache"}
	cfg.AdjustConfig()
	c := newTestCache(t, cfg)

	srv := newCDN(t)
	require.True(t, c.Preload(context.Background(), srv.url("/a.png"), model.PriorityHigh))

	rec := httptest.NewRecorder()
	c.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `imgcache_cache_entries{tier="disk"} 1`)
	require.Contains(t, rec.Body.String(), `imgcache_fetch_duration_seconds_count{result="ok"} 1`)

	require.Nil(t, newTestCache(t, testhelp.Cfg(t.TempDir())).MetricsHandler())
}
