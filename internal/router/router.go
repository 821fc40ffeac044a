package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/trailwx/internal/cache"
	"github.com/neexbeast/trailwx/internal/forecast"
	"github.com/neexbeast/trailwx/internal/metrics"
	"github.com/neexbeast/trailwx/internal/provider"
)

const (
	defaultTimeout = 10 * time.Second

	hourlyTolerance = 90 * time.Minute
)

// DefaultSupplementCountries lists countries whose national provider gets Open-Meteo supplements.
var DefaultSupplementCountries = []string{"US", "NO", "SE", "DK", "FI", "IS"}

// forecastCache is the subset of cache.Cache used by the router.
type forecastCache interface {
	Get(ctx context.Context, k cache.Key) (*forecast.NormalizedForecast, error)
	Set(ctx context.Context, k cache.Key, f *forecast.NormalizedForecast) error
}

// locator resolves the local time zone used for daily buckets.
type locator interface {
	Location(lat, lon float64) *time.Location
}

// Options configures a Router. Global is required; everything else is optional.
type Options struct {
	// Registry maps upper-case ISO 3166 alpha-2 codes to their national provider.
	Registry map[string]provider.Adapter
	// Global is the fallback provider and the primary for unregistered countries.
	Global     provider.Adapter
	Supplement provider.Supplementer
	Cache      forecastCache
	Timezones  locator

	// Timeout bounds each individual provider call.
	Timeout             time.Duration
	SupplementCountries []string

	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Router picks the authoritative provider for a location, falls back to the global
// provider on failure and supplements missing metrics.
type Router struct {
	registry      map[string]provider.Adapter
	global        provider.Adapter
	supplement    provider.Supplementer
	cache         forecastCache
	tz            locator
	timeout       time.Duration
	supplementFor map[string]bool
	metrics       *metrics.Collector
	log           *slog.Logger
}

// New constructs a Router.
func New(o Options) *Router {
	if o.Global == nil {
		panic("router: global provider is required")
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.SupplementCountries == nil {
		o.SupplementCountries = DefaultSupplementCountries
	}

	registry := make(map[string]provider.Adapter, len(o.Registry))
	for cc, a := range o.Registry {
		registry[normalizeCountry(cc)] = a
	}
	supplementFor := make(map[string]bool, len(o.SupplementCountries))
	for _, cc := range o.SupplementCountries {
		supplementFor[normalizeCountry(cc)] = true
	}

	return &Router{
		registry:      registry,
		global:        o.Global,
		supplement:    o.Supplement,
		cache:         o.Cache,
		tz:            o.Timezones,
		timeout:       o.Timeout,
		supplementFor: supplementFor,
		metrics:       o.Metrics,
		log:           o.Logger.With("component", "router"),
	}
}

// DefaultRegistry maps the United States to NWS and the Nordic countries to MET Norway.
func DefaultRegistry(nws, metno provider.Adapter) map[string]provider.Adapter {
	return map[string]provider.Adapter{
		"US": nws,
		"NO": metno,
		"SE": metno,
		"DK": metno,
		"FI": metno,
		"IS": metno,
	}
}

func normalizeCountry(cc string) string {
	return strings.ToUpper(strings.TrimSpace(cc))
}

// Primary returns the adapter that is authoritative for the country.
func (r *Router) Primary(country string) provider.Adapter {
	if a, ok := r.registry[normalizeCountry(country)]; ok && a != nil {
		return a
	}
	return r.global
}

// GetForecast returns the normalized forecast for the coordinate.
// Daily horizons are produced by upscaling hourly data in the location's time zone.
// When both the primary and the global provider fail, the error matches forecast.ErrProviderUnavailable.
func (r *Router) GetForecast(ctx context.Context, lat, lon float64, country string, h forecast.Horizon) (*forecast.NormalizedForecast, error) {
	primary := r.Primary(country)
	supplemented := r.supplement != nil &&
		primary.ID() != r.global.ID() &&
		r.supplementFor[normalizeCountry(country)]

	metricSet := h.Key() + "-raw"
	if supplemented {
		metricSet = h.Key() + "-supp"
	}
	primaryKey := cache.NewKey(primary.ID(), lat, lon, metricSet)

	if f := r.cached(ctx, primaryKey); f != nil {
		f.IsFallback = false
		return f, nil
	}

	// Provider calls outlive an abandoned caller so their result still lands in the cache.
	callCtx := context.WithoutCancel(ctx)
	log := r.log.With("provider", primary.ID(), "lat", lat, "lon", lon, "horizon", h.Key())

	f, primaryErr := r.call(callCtx, primary, lat, lon, h.FetchHours())
	if primaryErr == nil {
		if supplemented {
			f = r.supplementForecast(callCtx, f, primary.Capabilities(), lat, lon, h.FetchHours())
		}
		f = r.shape(f, h, lat, lon)
		r.store(ctx, primaryKey, f)
		return f, nil
	}

	var noData *forecast.ProviderNoDataError
	if primary.ID() == r.global.ID() && errors.As(primaryErr, &noData) {
		log.Warn("global provider has no data", "err", primaryErr)
		return nil, &forecast.ProviderUnavailableError{Primary: primaryErr}
	}

	log.Warn("primary provider failed, falling back", "fallback", r.global.ID(), "err", primaryErr)
	r.metrics.RecordFallback(primary.ID())

	fallbackKey := cache.NewKey(r.global.ID(), lat, lon, h.Key()+"-raw")
	if primary.ID() != r.global.ID() {
		if cached := r.cached(ctx, fallbackKey); cached != nil {
			cached.IsFallback = true
			return cached, nil
		}
	}

	fb, fallbackErr := r.call(callCtx, r.global, lat, lon, h.FetchHours())
	if fallbackErr != nil {
		log.Error("fallback provider failed", "fallback", r.global.ID(), "err", fallbackErr)
		return nil, &forecast.ProviderUnavailableError{Primary: primaryErr, Fallback: fallbackErr}
	}

	fb = r.shape(fb, h, lat, lon)
	r.store(ctx, fallbackKey, fb)

	fb = fb.Clone()
	fb.IsFallback = true
	return fb, nil
}

// call runs one adapter fetch under the per-call timeout. Output that breaks the
// period invariants is treated as a transport failure.
func (r *Router) call(ctx context.Context, a provider.Adapter, lat, lon float64, hours int) (*forecast.NormalizedForecast, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	f, err := a.Fetch(ctx, lat, lon, hours)
	if err != nil {
		r.metrics.RecordProviderRequest(a.ID(), outcome(err), time.Since(start))
		return nil, forecast.Transport(a.ID(), err)
	}
	if f == nil || len(f.Periods) == 0 {
		r.metrics.RecordProviderRequest(a.ID(), "no_data", time.Since(start))
		return nil, forecast.NoData(a.ID(), "adapter returned no periods")
	}
	if err := f.Validate(); err != nil {
		r.metrics.RecordProviderRequest(a.ID(), "malformed", time.Since(start))
		return nil, forecast.Transport(a.ID(), fmt.Errorf("malformed forecast: %w", err))
	}
	r.metrics.RecordProviderRequest(a.ID(), "ok", time.Since(start))
	return f, nil
}

func outcome(err error) string {
	var noData *forecast.ProviderNoDataError
	switch {
	case errors.As(err, &noData):
		return "no_data"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// supplementForecast fetches supplement metrics and recent precipitation in parallel.
// Metrics are only fetched when a period lacks something the primary does not supply
// natively. Both are optional: a failure is logged and the forecast keeps its gaps.
func (r *Router) supplementForecast(ctx context.Context, f *forecast.NormalizedForecast, native forecast.Capability, lat, lon float64, hours int) *forecast.NormalizedForecast {
	needMetrics := forecast.NeedsSupplement(f, native)
	needRecent := f.RecentPrecip == nil
	if !needMetrics && !needRecent {
		return f
	}

	g, gCtx := errgroup.WithContext(ctx)

	var supp *forecast.NormalizedForecast
	var recent *forecast.RecentPrecipitation

	if needMetrics {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("supplement fetch panicked", "recover", rec)
					err = fmt.Errorf("supplement fetch panicked: %v", rec)
				}
			}()
			callCtx, cancel := context.WithTimeout(gCtx, r.timeout)
			defer cancel()
			s, fetchErr := r.supplement.FetchSupplement(callCtx, lat, lon, hours)
			if fetchErr != nil {
				r.log.Warn("supplement fetch failed", "lat", lat, "lon", lon, "err", fetchErr)
				r.metrics.RecordSupplementFailure("metrics")
				return nil
			}
			supp = s
			return nil
		})
	}

	if needRecent {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("recent precipitation fetch panicked", "recover", rec)
					err = fmt.Errorf("recent precipitation fetch panicked: %v", rec)
				}
			}()
			callCtx, cancel := context.WithTimeout(gCtx, r.timeout)
			defer cancel()
			rp, fetchErr := r.supplement.FetchRecentPrecipitation(callCtx, lat, lon)
			if fetchErr != nil {
				r.log.Warn("recent precipitation fetch failed", "lat", lat, "lon", lon, "err", fetchErr)
				r.metrics.RecordSupplementFailure("recent_precip")
				return nil
			}
			recent = rp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.log.Error("supplements skipped", "err", err)
		return f
	}

	return forecast.MergeSupplement(f, supp, recent, native, hourlyTolerance)
}

// shape converts the hourly forecast to the requested horizon.
func (r *Router) shape(f *forecast.NormalizedForecast, h forecast.Horizon, lat, lon float64) *forecast.NormalizedForecast {
	if h.Granularity != forecast.Daily {
		return f
	}

	loc := time.UTC
	if r.tz != nil {
		loc = r.tz.Location(lat, lon)
	}

	out := f.Clone()
	days := forecast.Upscale(f.Periods, loc)
	if h.Days > 0 && len(days) > h.Days {
		days = days[:h.Days]
	}
	out.Periods = days
	out.Granularity = forecast.Daily
	return out
}

// cached reads the cache, treating errors as misses.
func (r *Router) cached(ctx context.Context, k cache.Key) *forecast.NormalizedForecast {
	if r.cache == nil {
		return nil
	}
	f, err := r.cache.Get(ctx, k)
	switch {
	case err != nil:
		r.log.Warn("cache get failed", "key", k.String(), "err", err)
		r.metrics.RecordCacheLookup("error")
		return nil
	case f == nil:
		r.metrics.RecordCacheLookup("miss")
		return nil
	}
	r.metrics.RecordCacheLookup("hit")
	return f
}

func (r *Router) store(ctx context.Context, k cache.Key, f *forecast.NormalizedForecast) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(context.WithoutCancel(ctx), k, f); err != nil {
		r.log.Warn("cache set failed", "key", k.String(), "err", err)
	}
}
