// Package refresh collapses concurrent token refresh requests into a single
// call to the auth service.
package refresh

import (
	"context"

	"github.com/jrsteele09/go-inventory-session/internal/metrics"
	"github.com/jrsteele09/go-inventory-session/token"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const flightKey = "refresh"

// PerformFunc does the actual refresh. It runs at most once at a time.
type PerformFunc func(ctx context.Context) (token.Pair, error)

// Coordinator guarantees a single in-flight refresh. Callers that arrive while
// one is running wait for it and receive the same outcome. It never retries.
type Coordinator struct {
	group singleflight.Group
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// RequestRefresh runs perform unless a refresh is already in flight, in which
// case it waits for that one. perform is detached from ctx cancellation; ctx
// only bounds how long this caller waits.
func (c *Coordinator) RequestRefresh(ctx context.Context, perform PerformFunc) (bool, error) {
	led := false
	flightCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		led = true
		return perform(flightCtx)
	})

	select {
	case res := <-ch:
		metrics.Refresh(!led, res.Err)
		if res.Err != nil {
			return false, res.Err
		}
		if !led {
			log.Debug().Msg("refresh joined in-flight request")
		}
		pair, _ := res.Val.(token.Pair)
		return pair.Valid(), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Forget drops the in-flight marker so the next request starts a new refresh
// even if the current one has not returned yet.
func (c *Coordinator) Forget() {
	c.group.Forget(flightKey)
}
