package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Borislavv/go-ash-imgcache/config"
)

// maxResumes bounds how many times an interrupted body is continued with a Range request.
const maxResumes = 3

var (
	ErrFetchStatus  = errors.New("unexpected fetch status")
	ErrBodyTooLarge = errors.New("fetched body exceeds limit")
	ErrTimeout      = errors.New("fetch timed out")
)

// HTTPFetcher downloads a key treated as an absolute URL.
type HTTPFetcher struct {
	client  *http.Client
	maxBody int64
	logger  *slog.Logger
}

func NewHTTPFetcher(cfg *config.SchedulerCfg, client *http.Client, logger *slog.Logger) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, maxBody: cfg.MaxBodyBytes, logger: logger}
}

// Fetch reads the whole body. Non-2xx statuses fail; a body cut short is resumed
// from the received offset when the server supports byte ranges.
func (f *HTTPFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	var buf bytes.Buffer
	for attempt := 0; ; attempt++ {
		offset := int64(buf.Len())

		resumable, err := f.get(ctx, key, &buf)
		if err == nil {
			return buf.Bytes(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, key, ctxErr)
		}
		if !resumable || attempt >= maxResumes || int64(buf.Len()) == offset {
			return nil, err
		}
		f.logger.Debug("resuming interrupted download", "key", key, "offset", buf.Len(), "err", err)
	}
}

// get appends the body, or the rest of it when buf is not empty, to buf.
func (f *HTTPFetcher) get(ctx context.Context, key string, buf *bytes.Buffer) (resumable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return false, fmt.Errorf("build request %s: %w", key, err)
	}
	offset := int64(buf.Len())
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		if !strings.HasPrefix(resp.Header.Get("Content-Range"), "bytes "+strconv.FormatInt(offset, 10)+"-") {
			return false, fmt.Errorf("fetch %s: unexpected content range %q", key, resp.Header.Get("Content-Range"))
		}
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		// the server ignored the range: start over
		buf.Reset()
	default:
		return false, fmt.Errorf("%w: %s: %d", ErrFetchStatus, key, resp.StatusCode)
	}

	limit := f.maxBody - int64(buf.Len())
	n, err := io.Copy(buf, io.LimitReader(resp.Body, limit+1))
	if n > limit {
		return false, fmt.Errorf("%w: %s", ErrBodyTooLarge, key)
	}
	if err != nil {
		return resp.Header.Get("Accept-Ranges") == "bytes", fmt.Errorf("read body %s: %w", key, err)
	}
	return false, nil
}
