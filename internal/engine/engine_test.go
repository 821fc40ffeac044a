package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/trailwx/internal/engine"
	"github.com/neexbeast/trailwx/internal/forecast"
	"github.com/neexbeast/trailwx/internal/format"
	"github.com/neexbeast/trailwx/internal/storage"
)

// ---- mocks ----

type mockRouter struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, lat, lon float64, country string, h forecast.Horizon) (*forecast.NormalizedForecast, error)
}

func (m *mockRouter) GetForecast(ctx context.Context, lat, lon float64, country string, h forecast.Horizon) (*forecast.NormalizedForecast, error) {
	m.mu.Lock()
	m.calls = append(m.calls, country+":"+h.Key())
	m.mu.Unlock()
	return m.fn(ctx, lat, lon, country, h)
}

type mockLookup struct {
	fn func(ctx context.Context, lat, lon float64) (float64, error)
}

func (m *mockLookup) Lookup(ctx context.Context, lat, lon float64) (float64, error) {
	return m.fn(ctx, lat, lon)
}

type mockStore struct {
	waypoints []storage.Waypoint
	err       error
}

func (m *mockStore) WaypointsForRoute(_ context.Context, routeID string) ([]storage.Waypoint, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []storage.Waypoint
	for _, w := range m.waypoints {
		if w.RouteID == routeID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockStore) GetWaypoint(_ context.Context, routeID string, position int) (*storage.Waypoint, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, w := range m.waypoints {
		if w.RouteID == routeID && w.Position == position {
			return &w, nil
		}
	}
	return nil, nil
}

// ---- helpers ----

var start = time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scenario is the documented mountain case: model at 900 m, 10 °C max, dewpoint 2 °C,
// freezing level 1100 m.
func scenario(h forecast.Horizon) *forecast.NormalizedForecast {
	n := h.Hours
	g := forecast.Hourly
	step := time.Hour
	if h.Granularity == forecast.Daily {
		n, g, step = h.Days, forecast.Daily, 24*time.Hour
	}
	f := &forecast.NormalizedForecast{
		Provider:       "metno",
		Lat:            61.64,
		Lon:            8.31,
		Granularity:    g,
		ModelElevation: forecast.Float(900),
		FetchedAt:      start,
	}
	for i := range n {
		f.Periods = append(f.Periods, forecast.ForecastPeriod{
			Time:              start.Add(time.Duration(i) * step),
			TempMin:           4,
			TempMax:           10,
			PrecipProbability: 20,
			WindAvg:           10,
			WindGust:          20,
			Dewpoint:          forecast.Float(2),
			FreezingLevel:     forecast.Float(1100),
		})
	}
	return f
}

func scenarioRouter() *mockRouter {
	return &mockRouter{fn: func(_ context.Context, _, _ float64, _ string, h forecast.Horizon) (*forecast.NormalizedForecast, error) {
		return scenario(h), nil
	}}
}

func newEngine(r engine.Forecaster, lookup engine.ElevationLookup, store engine.WaypointStore) *engine.Engine {
	return engine.New(engine.Options{
		Router:    r,
		Elevation: lookup,
		Waypoints: store,
		Formatter: format.NewFormatter(format.Options{Logger: discardLogger()}),
		Logger:    discardLogger(),
	})
}

// ---- Forecast ----

func TestForecast_EndToEnd(t *testing.T) {
	e := newEngine(scenarioRouter(), nil, nil)

	resp, err := e.Forecast(context.Background(), engine.Query{
		Lat: 61.64, Lon: 8.31, Country: "NO", Elevation: forecast.Float(1200), Kind: format.KindShort,
	})
	require.NoError(t, err)

	cf := resp.Forecast
	require.NotEmpty(t, cf.Periods)
	assert.True(t, cf.ElevationCorrected)
	assert.Equal(t, 1200.0, cf.TargetElevation)

	p := cf.Periods[0]
	assert.InDelta(t, 8.05, p.TempMax, 1e-9)
	require.NotNil(t, p.CloudBase)
	assert.InDelta(t, 756.25, *p.CloudBase, 1e-9)
	assert.Equal(t, forecast.StormUnknown, p.StormRisk)
	assert.Equal(t, 1, p.Danger.Level)
	assert.Equal(t, []forecast.Reason{forecast.ReasonIce}, p.Danger.Reasons)

	require.NotEmpty(t, resp.Result.Segments)
	assert.Contains(t, resp.Result.Segments[0].Text, "61.64,8.31 1200m")
	assert.Contains(t, strings.Join(resp.Result.Texts(), "\n"), "!ICE")
}

func TestForecast_IceClearsAboveFreezingLevel(t *testing.T) {
	e := newEngine(scenarioRouter(), nil, nil)

	cf, err := e.Corrected(context.Background(), engine.Query{
		Lat: 61.64, Lon: 8.31, Country: "NO", Elevation: forecast.Float(1000), Kind: format.KindShort,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cf.Periods[0].Danger.Level)
}

func TestForecast_KindSelectsHorizon(t *testing.T) {
	r := scenarioRouter()
	e := newEngine(r, nil, nil)

	for _, kind := range []format.QueryKind{format.KindShort, format.KindExtended, format.KindOutlook} {
		_, err := e.Forecast(context.Background(), engine.Query{Lat: 1, Lon: 2, Country: "NO", Elevation: forecast.Float(0), Kind: kind})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"NO:h12", "NO:h48", "NO:d5"}, r.calls)
}

func TestForecast_TerrainLookupForAdHocQuery(t *testing.T) {
	lookup := &mockLookup{fn: func(_ context.Context, _, _ float64) (float64, error) { return 1200, nil }}
	e := newEngine(scenarioRouter(), lookup, nil)

	cf, err := e.Corrected(context.Background(), engine.Query{Lat: 61.64, Lon: 8.31, Country: "NO", Kind: format.KindShort})
	require.NoError(t, err)
	assert.Equal(t, 1200.0, cf.TargetElevation)
	assert.InDelta(t, 8.05, cf.Periods[0].TempMax, 1e-9)
}

func TestForecast_RequestedElevationSkipsLookup(t *testing.T) {
	lookup := &mockLookup{fn: func(_ context.Context, _, _ float64) (float64, error) {
		t.Error("lookup must not run when an elevation is given")
		return 0, nil
	}}
	e := newEngine(scenarioRouter(), lookup, nil)

	_, err := e.Corrected(context.Background(), engine.Query{Elevation: forecast.Float(1500), Kind: format.KindShort})
	require.NoError(t, err)
}

func TestForecast_LookupFailureUsesModelElevation(t *testing.T) {
	lookup := &mockLookup{fn: func(_ context.Context, _, _ float64) (float64, error) {
		return 0, errors.New("elevation api down")
	}}
	e := newEngine(scenarioRouter(), lookup, nil)

	cf, err := e.Corrected(context.Background(), engine.Query{Lat: 61.64, Lon: 8.31, Kind: format.KindShort})
	require.NoError(t, err)
	assert.Equal(t, 900.0, cf.TargetElevation)
	assert.Equal(t, 10.0, cf.Periods[0].TempMax)
}

func TestForecast_MissingModelElevationSkipsCorrection(t *testing.T) {
	r := &mockRouter{fn: func(_ context.Context, _, _ float64, _ string, h forecast.Horizon) (*forecast.NormalizedForecast, error) {
		f := scenario(h)
		f.ModelElevation = nil
		return f, nil
	}}
	e := newEngine(r, nil, nil)

	resp, err := e.Forecast(context.Background(), engine.Query{Elevation: forecast.Float(1200), Kind: format.KindShort})
	require.NoError(t, err)
	assert.False(t, resp.Forecast.ElevationCorrected)
	assert.Equal(t, 10.0, resp.Forecast.Periods[0].TempMax)
	assert.Contains(t, resp.Result.Segments[0].Text, "1200m ~")
}

func TestForecast_ProviderUnavailable(t *testing.T) {
	r := &mockRouter{fn: func(context.Context, float64, float64, string, forecast.Horizon) (*forecast.NormalizedForecast, error) {
		return nil, &forecast.ProviderUnavailableError{
			Primary:  forecast.Transport("nws", context.DeadlineExceeded),
			Fallback: forecast.Transport("openmeteo", context.DeadlineExceeded),
		}
	}}
	e := newEngine(r, nil, nil)

	resp, err := e.Forecast(context.Background(), engine.Query{Country: "US", Kind: format.KindShort})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, forecast.ErrProviderUnavailable)
}

func TestForecast_InvalidKind(t *testing.T) {
	r := scenarioRouter()
	e := newEngine(r, nil, nil)

	_, err := e.Forecast(context.Background(), engine.Query{Kind: "weekly"})
	require.Error(t, err)
	assert.Empty(t, r.calls)
}

// ---- WaypointForecast ----

func TestWaypointForecast(t *testing.T) {
	store := &mockStore{waypoints: []storage.Waypoint{
		{RouteID: "besseggen", Position: 1, Name: "Memurubu", Lat: 61.55, Lon: 8.78, Elevation: forecast.Float(1200), Country: "NO"},
	}}
	r := scenarioRouter()
	e := newEngine(r, nil, store)

	resp, err := e.WaypointForecast(context.Background(), "besseggen", 1, format.KindOutlook)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, resp.Forecast.TargetElevation)
	assert.Equal(t, []string{"NO:d5"}, r.calls)

	_, err = e.WaypointForecast(context.Background(), "besseggen", 7, format.KindOutlook)
	assert.ErrorIs(t, err, engine.ErrWaypointNotFound)
}

// ---- RouteOutlook ----

func TestRouteOutlook(t *testing.T) {
	store := &mockStore{waypoints: []storage.Waypoint{
		{RouteID: "r1", Position: 1, Name: "Trailhead", Lat: 1, Lon: 1, Elevation: forecast.Float(900), Country: "NO"},
		{RouteID: "r1", Position: 2, Name: "Broken", Lat: 2, Lon: 2, Elevation: forecast.Float(1400), Country: "NO"},
		{RouteID: "r1", Position: 3, Name: "Summit", Lat: 3, Lon: 3, Elevation: forecast.Float(1850), Country: "NO"},
	}}
	r := &mockRouter{fn: func(_ context.Context, lat, _ float64, _ string, h forecast.Horizon) (*forecast.NormalizedForecast, error) {
		if lat == 2 {
			return nil, &forecast.ProviderUnavailableError{Primary: errors.New("down")}
		}
		return scenario(h), nil
	}}
	e := newEngine(r, nil, store)

	resp, err := e.RouteOutlook(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Waypoints)
	assert.Equal(t, []string{"Broken"}, resp.Omitted)

	text := strings.Join(resp.Result.Texts(), "\n")
	assert.Contains(t, text, "[Trailhead 900m]")
	assert.Contains(t, text, "--\n[Summit 1850m]")
	assert.NotContains(t, text, "Broken")

	// Trailhead block precedes Summit block.
	refs := resp.Result.Periods()
	require.NotEmpty(t, refs)
	assert.Equal(t, "Trailhead", refs[0].Waypoint)
	assert.Equal(t, "Summit", refs[len(refs)-1].Waypoint)

	for _, call := range r.calls {
		assert.Equal(t, "NO:d3", call)
	}
}

func TestRouteOutlook_NotFound(t *testing.T) {
	e := newEngine(scenarioRouter(), nil, &mockStore{})
	_, err := e.RouteOutlook(context.Background(), "missing")
	assert.ErrorIs(t, err, engine.ErrRouteNotFound)
}

func TestRouteOutlook_AllFail(t *testing.T) {
	store := &mockStore{waypoints: []storage.Waypoint{
		{RouteID: "r1", Position: 1, Name: "A", Elevation: forecast.Float(900)},
		{RouteID: "r1", Position: 2, Name: "B", Elevation: forecast.Float(900)},
	}}
	r := &mockRouter{fn: func(context.Context, float64, float64, string, forecast.Horizon) (*forecast.NormalizedForecast, error) {
		return nil, &forecast.ProviderUnavailableError{Primary: errors.New("down")}
	}}
	e := newEngine(r, nil, store)

	_, err := e.RouteOutlook(context.Background(), "r1")
	assert.ErrorIs(t, err, forecast.ErrProviderUnavailable)
}

func TestRouteOutlook_StoreError(t *testing.T) {
	e := newEngine(scenarioRouter(), nil, &mockStore{err: errors.New("db down")})
	_, err := e.RouteOutlook(context.Background(), "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading waypoints")
}

func TestLegend(t *testing.T) {
	e := newEngine(scenarioRouter(), nil, nil)
	assert.Equal(t, format.Legend(), e.Legend())
}
