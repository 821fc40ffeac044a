package provider

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/neexbeast/trailwx/internal/forecast"
)

// RateLimitedAdapter wraps an Adapter and waits on a token bucket before every fetch.
// met.no and NWS both ask clients to keep request rates modest.
type RateLimitedAdapter struct {
	inner   Adapter
	limiter *rate.Limiter
}

var _ Adapter = (*RateLimitedAdapter)(nil)

// RateLimited wraps a with a limiter allowing perSecond requests and the given burst.
// A non-positive rate returns a unchanged.
func RateLimited(a Adapter, perSecond float64, burst int) Adapter {
	if perSecond <= 0 {
		return a
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedAdapter{
		inner:   a,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// ID returns the wrapped adapter's ID so cache keys and registry lookups are unaffected.
func (r *RateLimitedAdapter) ID() string { return r.inner.ID() }

func (r *RateLimitedAdapter) Capabilities() forecast.Capability { return r.inner.Capabilities() }

// Fetch blocks until the limiter allows the call or ctx is done.
func (r *RateLimitedAdapter) Fetch(ctx context.Context, lat, lon float64, hours int) (*forecast.NormalizedForecast, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, forecast.Transport(r.inner.ID(), err)
	}
	return r.inner.Fetch(ctx, lat, lon, hours)
}
