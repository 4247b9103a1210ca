// Package throttle spaces out calls to rate-limited APIs.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer makes every Wait block for the configured delay since the previous slot,
// including the first call. A zero delay never blocks.
type Pacer struct {
	limiter *rate.Limiter
}

// New returns a pacer with one slot per delay.
func New(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{}
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)
	limiter.Allow()
	return &Pacer{limiter: limiter}
}

// Wait blocks until the next slot or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}
