package imgcache

import (
	"net/http"

	"github.com/Borislavv/go-ash-imgcache/internal/index"
	"github.com/Borislavv/go-ash-imgcache/internal/netquality"
	"github.com/Borislavv/go-ash-imgcache/internal/scheduler"
	"github.com/benbjohnson/clock"
)

type Option func(*options)

type options struct {
	fetcher scheduler.Fetcher
	signal  netquality.Signal
	index   index.Index
	clock   clock.Clock
	client  *http.Client
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f scheduler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithSignal feeds network quality from a platform connectivity signal.
// Without it the HTTP probe is used when configured, otherwise the level changes only through UpdateNetwork.
func WithSignal(s netquality.Signal) Option {
	return func(o *options) { o.signal = s }
}

// WithIndex replaces the index selected by the configuration.
func WithIndex(idx index.Index) Option {
	return func(o *options) { o.index = idx }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithHTTPClient sets the client used by the default fetcher and the probe.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}
