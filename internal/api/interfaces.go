package api

import (
	"context"

	"github.com/neexbeast/trailwx/internal/engine"
	"github.com/neexbeast/trailwx/internal/format"
)

// ForecastEngine defines the forecast operations needed by handlers.
type ForecastEngine interface {
	Forecast(ctx context.Context, q engine.Query) (*engine.Response, error)
	WaypointForecast(ctx context.Context, routeID string, position int, kind format.QueryKind) (*engine.Response, error)
	RouteOutlook(ctx context.Context, routeID string) (*engine.RouteResponse, error)
	Legend() string
}

type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}
