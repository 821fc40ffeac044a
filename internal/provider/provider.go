package provider

import (
	"context"

	"github.com/neexbeast/trailwx/internal/forecast"
)

// Provider IDs. They also appear in cache keys.
const (
	IDOpenMeteo = "openmeteo"
	IDNWS       = "nws"
	IDMetNo     = "metno"
)

// Adapter fetches a forecast from one upstream service and returns it in canonical hourly shape.
// Periods start at the current hour; at most hours of them are returned.
type Adapter interface {
	ID() string
	Capabilities() forecast.Capability
	Fetch(ctx context.Context, lat, lon float64, hours int) (*forecast.NormalizedForecast, error)
}

// Supplementer fills metrics a primary provider does not supply natively.
type Supplementer interface {
	FetchSupplement(ctx context.Context, lat, lon float64, hours int) (*forecast.NormalizedForecast, error)
	FetchRecentPrecipitation(ctx context.Context, lat, lon float64) (*forecast.RecentPrecipitation, error)
}

// ElevationLookup resolves terrain height for a coordinate.
type ElevationLookup interface {
	Lookup(ctx context.Context, lat, lon float64) (float64, error)
}
