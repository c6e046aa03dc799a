// Package metrics exposes cache, scheduler and prefetch state as prometheus metrics.
// Counters and gauges are read from a telemetry sampler at scrape time; fetch latency
// is observed as it happens.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/internal/scheduler"
	"github.com/Borislavv/go-ash-imgcache/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// fetch latency buckets in seconds
var fetchBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

type Metrics struct {
	registry *prometheus.Registry
	sampler  *telemetry.Sampler

	fetchDuration *prometheus.HistogramVec

	cacheBytes     *prometheus.Desc
	cacheEntries   *prometheus.Desc
	evictions      *prometheus.Desc
	lookups        *prometheus.Desc
	expirations    *prometheus.Desc
	queueDepth     *prometheus.Desc
	fetching       *prometheus.Desc
	fetchLimit     *prometheus.Desc
	preloads       *prometheus.Desc
	networkQuality *prometheus.Desc
	sections       *prometheus.Desc
	sectionsQueued *prometheus.Desc
	sweepRemoved   *prometheus.Desc
	softEvicted    *prometheus.Desc
}

// New builds a registry holding the cache collector and the go runtime collectors.
func New(cfg *config.TelemetryCfg, sampler *telemetry.Sampler) *Metrics {
	ns := "imgcache"
	if cfg != nil && cfg.Namespace != "" {
		ns = cfg.Namespace
	}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(ns, "", name), help, labels, nil)
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sampler:  sampler,

		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of image fetches",
				Buckets:   fetchBuckets,
			},
			[]string{"result"},
		),

		cacheBytes:     desc("cache_bytes", "Bytes held by a cache tier", "tier"),
		cacheEntries:   desc("cache_entries", "Entries held by a cache tier", "tier"),
		evictions:      desc("evictions_total", "LRU evictions per cache tier", "tier"),
		lookups:        desc("lookups_total", "Cache lookups by result", "result"),
		expirations:    desc("expirations_total", "Entries removed because their TTL elapsed"),
		queueDepth:     desc("preload_queue_depth", "Preload requests waiting for a fetch slot"),
		fetching:       desc("preload_fetching", "Fetches in flight"),
		fetchLimit:     desc("preload_concurrency_limit", "Current fetch concurrency limit"),
		preloads:       desc("preloads_total", "Preload requests by outcome", "outcome"),
		networkQuality: desc("network_quality", "Current network quality level, 0 is offline"),
		sections:       desc("prefetch_sections_total", "Section prefetch requests by outcome", "outcome"),
		sectionsQueued: desc("prefetch_sections", "Sections waiting or being warmed", "state"),
		sweepRemoved:   desc("sweep_removed_total", "Expired entries reclaimed by the background sweep"),
		softEvicted:    desc("soft_evicted_bytes_total", "Bytes reclaimed by the soft limit evictor"),
	}

	m.registry.MustRegister(m, m.fetchDuration)
	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

// ObserveFetch records the latency of one fetch.
func (m *Metrics) ObserveFetch(elapsed time.Duration, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrTimeout):
		result = "timeout"
	default:
		result = "error"
	}
	m.fetchDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.cacheBytes
	ch <- m.cacheEntries
	ch <- m.evictions
	ch <- m.lookups
	ch <- m.expirations
	ch <- m.queueDepth
	ch <- m.fetching
	ch <- m.fetchLimit
	ch <- m.preloads
	ch <- m.networkQuality
	ch <- m.sections
	ch <- m.sectionsQueued
	ch <- m.sweepRemoved
	ch <- m.softEvicted
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	s := m.sampler.Snapshot()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(m.cacheBytes, float64(s.Store.Memory.Bytes), "memory")
	gauge(m.cacheBytes, float64(s.Store.Disk.Bytes), "disk")
	gauge(m.cacheEntries, float64(s.Store.Memory.Entries), "memory")
	gauge(m.cacheEntries, float64(s.Store.Disk.Entries), "disk")
	counter(m.evictions, s.Store.Memory.Evictions, "memory")
	counter(m.evictions, s.Store.Disk.Evictions, "disk")
	counter(m.lookups, s.Store.Hits, "hit")
	counter(m.lookups, s.Store.Misses, "miss")
	counter(m.expirations, s.Store.Expirations)

	gauge(m.queueDepth, float64(s.Scheduler.Queued))
	gauge(m.fetching, float64(s.Scheduler.Fetching))
	gauge(m.fetchLimit, float64(s.Scheduler.Limit))
	counter(m.preloads, s.Scheduler.Enqueued, "enqueued")
	counter(m.preloads, s.Scheduler.Deduped, "deduped")
	counter(m.preloads, s.Scheduler.Skipped, "skipped")
	counter(m.preloads, s.Scheduler.Completed, "completed")
	counter(m.preloads, s.Scheduler.Failed, "failed")
	counter(m.preloads, s.Scheduler.Canceled, "canceled")
	gauge(m.networkQuality, float64(s.Quality))

	counter(m.sections, s.Prefetch.Enqueued, "enqueued")
	counter(m.sections, s.Prefetch.Promoted, "promoted")
	counter(m.sections, s.Prefetch.Suppressed, "suppressed")
	counter(m.sections, s.Prefetch.Completed, "completed")
	gauge(m.sectionsQueued, float64(s.Prefetch.Queued), "queued")
	gauge(m.sectionsQueued, float64(s.Prefetch.Active), "active")

	counter(m.sweepRemoved, s.SweepRemoved)
	counter(m.softEvicted, s.SoftEvictedBytes)
}
