package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/trailwx/internal/correction"
	"github.com/neexbeast/trailwx/internal/danger"
	"github.com/neexbeast/trailwx/internal/forecast"
	"github.com/neexbeast/trailwx/internal/format"
	"github.com/neexbeast/trailwx/internal/storage"
)

const (
	defaultLookupTimeout = 5 * time.Second
	defaultConcurrency   = 4
)

var (
	// ErrRouteNotFound is returned when a route has no stored waypoints.
	ErrRouteNotFound = errors.New("route not found")
	// ErrWaypointNotFound is returned when a route has no waypoint at the position.
	ErrWaypointNotFound = errors.New("waypoint not found")
)

// Forecaster fetches a normalized forecast for a coordinate.
type Forecaster interface {
	GetForecast(ctx context.Context, lat, lon float64, country string, h forecast.Horizon) (*forecast.NormalizedForecast, error)
}

// ElevationLookup resolves terrain elevation for ad-hoc coordinates.
type ElevationLookup interface {
	Lookup(ctx context.Context, lat, lon float64) (float64, error)
}

// WaypointStore reads stored route waypoints.
type WaypointStore interface {
	WaypointsForRoute(ctx context.Context, routeID string) ([]storage.Waypoint, error)
	GetWaypoint(ctx context.Context, routeID string, position int) (*storage.Waypoint, error)
}

// Query is one forecast request as resolved by the command parser.
// A nil Elevation means an ad-hoc GPS query; the terrain elevation is looked up.
type Query struct {
	Lat       float64
	Lon       float64
	Country   string
	Elevation *float64
	Kind      format.QueryKind
}

// Response is a formatted forecast plus the data it was rendered from.
type Response struct {
	Forecast *forecast.CorrectedForecast
	Result   *format.Result
}

// RouteResponse is a grouped outlook over a route's waypoints.
// Omitted lists waypoints whose forecast could not be fetched.
type RouteResponse struct {
	RouteID   string
	Waypoints int
	Omitted   []string
	Result    *format.Result
}

// Options configures an Engine. Router is required.
type Options struct {
	Router    Forecaster
	Elevation ElevationLookup
	Waypoints WaypointStore
	Rater     *danger.Rater
	Formatter *format.Formatter

	// LookupTimeout bounds the terrain elevation lookup.
	LookupTimeout time.Duration
	// Concurrency caps parallel waypoint fetches in a route outlook.
	Concurrency int

	Logger *slog.Logger
}

// Engine turns coordinates into corrected, rated and formatted forecasts.
type Engine struct {
	router        Forecaster
	elevation     ElevationLookup
	waypoints     WaypointStore
	rater         *danger.Rater
	formatter     *format.Formatter
	lookupTimeout time.Duration
	concurrency   int
	log           *slog.Logger
}

// New constructs an Engine.
func New(o Options) *Engine {
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = defaultLookupTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Rater == nil {
		o.Rater = danger.NewRater(danger.DefaultThresholds())
	}
	if o.Formatter == nil {
		o.Formatter = format.NewFormatter(format.Options{Logger: o.Logger})
	}
	return &Engine{
		router:        o.Router,
		elevation:     o.Elevation,
		waypoints:     o.Waypoints,
		rater:         o.Rater,
		formatter:     o.Formatter,
		lookupTimeout: o.LookupTimeout,
		concurrency:   o.Concurrency,
		log:           o.Logger.With("component", "engine"),
	}
}

// Corrected fetches the forecast for q and returns it corrected to the target
// elevation with derived metrics and danger ratings filled in.
// Provider failure surfaces as an error matching forecast.ErrProviderUnavailable.
func (e *Engine) Corrected(ctx context.Context, q Query) (*forecast.CorrectedForecast, error) {
	if !q.Kind.Valid() {
		return nil, fmt.Errorf("unknown query kind %q", q.Kind)
	}

	var nf *forecast.NormalizedForecast
	var terrain *float64

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		f, err := e.router.GetForecast(gCtx, q.Lat, q.Lon, q.Country, q.Kind.Horizon())
		if err != nil {
			return err
		}
		nf = f
		return nil
	})

	if q.Elevation == nil && e.elevation != nil {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("elevation lookup panicked", "recover", r)
				}
			}()
			lookupCtx, cancel := context.WithTimeout(gCtx, e.lookupTimeout)
			defer cancel()
			elev, lookupErr := e.elevation.Lookup(lookupCtx, q.Lat, q.Lon)
			if lookupErr != nil {
				e.log.Warn("terrain elevation lookup failed", "lat", q.Lat, "lon", q.Lon, "err", lookupErr)
				return nil
			}
			terrain = &elev
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	target := targetElevation(q.Elevation, terrain, nf.ModelElevation)
	cf := correction.Correct(nf, nf.ModelElevation, target)
	cf = correction.Derive(cf)
	return e.rater.RateForecast(cf), nil
}

// targetElevation prefers the requested elevation, then the terrain lookup,
// then the model elevation. With none known the forecast is left at sea level.
func targetElevation(requested, terrain, model *float64) float64 {
	switch {
	case requested != nil:
		return *requested
	case terrain != nil:
		return *terrain
	case model != nil:
		return *model
	}
	return 0
}

// Forecast fetches, corrects, rates and formats a single-point forecast.
func (e *Engine) Forecast(ctx context.Context, q Query) (*Response, error) {
	cf, err := e.Corrected(ctx, q)
	if err != nil {
		return nil, err
	}

	res, err := e.formatter.Format(cf, q.Kind)
	if err != nil {
		return nil, fmt.Errorf("formatting forecast: %w", err)
	}
	return &Response{Forecast: cf, Result: res}, nil
}

// WaypointForecast formats a forecast for one stored waypoint.
func (e *Engine) WaypointForecast(ctx context.Context, routeID string, position int, kind format.QueryKind) (*Response, error) {
	if e.waypoints == nil {
		return nil, errors.New("waypoint store not configured")
	}
	wp, err := e.waypoints.GetWaypoint(ctx, routeID, position)
	if err != nil {
		return nil, fmt.Errorf("loading waypoint: %w", err)
	}
	if wp == nil {
		return nil, ErrWaypointNotFound
	}

	return e.Forecast(ctx, Query{
		Lat:       wp.Lat,
		Lon:       wp.Lon,
		Country:   wp.Country,
		Elevation: wp.Elevation,
		Kind:      kind,
	})
}

// RouteOutlook fetches every waypoint of a route concurrently and formats a grouped outlook.
// A waypoint whose forecast fails is omitted; the call fails only when all of them do.
func (e *Engine) RouteOutlook(ctx context.Context, routeID string) (*RouteResponse, error) {
	if e.waypoints == nil {
		return nil, errors.New("waypoint store not configured")
	}
	wps, err := e.waypoints.WaypointsForRoute(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("loading waypoints: %w", err)
	}
	if len(wps) == 0 {
		return nil, ErrRouteNotFound
	}

	blocks := make([]format.Waypoint, len(wps))
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, wp := range wps {
		blocks[i] = format.Waypoint{Name: wp.Name}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("waypoint forecast panicked", "route", routeID, "waypoint", wp.Name, "recover", r)
				}
			}()
			cf, err := e.Corrected(ctx, Query{
				Lat:       wp.Lat,
				Lon:       wp.Lon,
				Country:   wp.Country,
				Elevation: wp.Elevation,
				Kind:      format.KindGrouped,
			})
			if err != nil {
				e.log.Warn("waypoint forecast failed", "route", routeID, "waypoint", wp.Name, "err", err)
				return nil
			}
			blocks[i].Elevation = cf.TargetElevation
			blocks[i].Forecast = cf
			return nil
		})
	}
	_ = g.Wait()

	resp := &RouteResponse{RouteID: routeID, Waypoints: len(wps)}
	for _, b := range blocks {
		if b.Forecast == nil {
			resp.Omitted = append(resp.Omitted, b.Name)
		}
	}
	if len(resp.Omitted) == len(wps) {
		return nil, fmt.Errorf("route %s: %w", routeID, forecast.ErrProviderUnavailable)
	}

	res, err := e.formatter.FormatGrouped(blocks, format.KindGrouped)
	if err != nil {
		return nil, fmt.Errorf("formatting route outlook: %w", err)
	}
	resp.Result = res
	return resp, nil
}

// Legend documents the abbreviations used in every reply.
func (e *Engine) Legend() string {
	return format.Legend()
}
