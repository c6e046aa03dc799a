// Package rate paces background work with a token channel fed by a leaky bucket.
package rate

import (
	"context"

	"go.uber.org/ratelimit"
)

// Jitter hands out at most limit tokens per second. Up to a tenth of a second worth of
// tokens is buffered so a consumer that was busy can catch up in a short burst.
type Jitter struct {
	ch    chan struct{}
	l     ratelimit.Limiter
	limit int
}

// NewJitter starts the token provider. It stops and closes Chan when ctx is done.
// A non-positive limit is treated as one token per second.
func NewJitter(ctx context.Context, limit int) *Jitter {
	limit = max(limit, 1)
	jitter := &Jitter{
		limit: limit,
		ch:    make(chan struct{}, max(limit/10, 1)),
		l:     ratelimit.New(limit, ratelimit.WithoutSlack),
	}
	go jitter.provider(ctx)
	return jitter
}

func (j *Jitter) provider(ctx context.Context) {
	defer close(j.ch)
	for {
		j.l.Take()
		select {
		case <-ctx.Done():
			return
		case j.ch <- struct{}{}:
		}
	}
}

// Take blocks for the next token. It returns false once the provider is stopped.
func (j *Jitter) Take() bool {
	_, ok := <-j.ch
	return ok
}

func (j *Jitter) Chan() <-chan struct{} {
	return j.ch
}

func (j *Jitter) Limit() int { return j.limit }
