package netquality

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/model"
)

const maxProbeBytes = 4 << 20

var ErrProbeStatus = errors.New("unexpected probe status")

// HTTPProbe is a Signal measuring download throughput of a small resource.
type HTTPProbe struct {
	cfg    *config.ProbeCfg
	client *http.Client
	logger *slog.Logger
}

func NewHTTPProbe(cfg *config.ProbeCfg, client *http.Client, logger *slog.Logger) *HTTPProbe {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProbe{cfg: cfg, client: client, logger: logger}
}

// Watch probes immediately and then every Interval until ctx is done.
func (p *HTTPProbe) Watch(ctx context.Context) (<-chan Report, error) {
	if !p.cfg.Enabled() {
		return nil, errors.New("probe url is not configured")
	}

	out := make(chan Report, 1)
	go func() {
		defer close(out)

		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out <- p.Probe(ctx):
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

// Probe performs one measurement. Transport errors mean offline, a timed out
// download means the slowest online level, a bad status is reported as an error.
func (p *HTTPProbe) Probe(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return Report{Err: fmt.Errorf("build probe request: %w", err)}
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Report{Quality: model.QualitySlowCellular}
		}
		p.logger.Debug("probe request failed", "url", p.cfg.URL, "err", err)
		return Report{Quality: model.QualityOffline}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Report{Err: fmt.Errorf("%w: %d", ErrProbeStatus, resp.StatusCode)}
	}

	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxProbeBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Report{Quality: model.QualitySlowCellular}
		}
		return Report{Err: fmt.Errorf("read probe body: %w", err)}
	}

	return Report{Quality: Classify(n, time.Since(start), p.cfg)}
}

// Classify maps measured throughput onto a quality level.
func Classify(n int64, elapsed time.Duration, cfg *config.ProbeCfg) model.Quality {
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	bps := int64(float64(n) / elapsed.Seconds())
	switch {
	case bps >= cfg.FastBytesPerSec:
		return model.QualityWifi
	case bps >= cfg.SlowBytesPerSec:
		return model.QualityFastCellular
	default:
		return model.QualitySlowCellular
	}
}
