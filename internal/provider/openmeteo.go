package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/neexbeast/trailwx/internal/forecast"
)

// OpenMeteoURL is the public Open-Meteo API root.
// Docs: https://open-meteo.com/en/docs and https://open-meteo.com/en/docs/elevation-api
const OpenMeteoURL = "https://api.open-meteo.com"

var (
	openMeteoForecastVars = []string{
		"temperature_2m",
		"dew_point_2m",
		"precipitation_probability",
		"precipitation",
		"snowfall",
		"wind_speed_10m",
		"wind_gusts_10m",
		"wind_direction_10m",
		"cloud_cover",
		"freezing_level_height",
		"cape",
	}

	openMeteoSupplementVars = []string{
		"dew_point_2m",
		"precipitation",
		"snowfall",
		"freezing_level_height",
		"cape",
	}

	openMeteoHistoryVars = []string{
		"precipitation",
		"snowfall",
	}
)

// OpenMeteo is the global provider. It is the fallback for every country,
// the primary outside the registry, and the source of supplement metrics.
type OpenMeteo struct {
	baseURL string
	get     *getter
	now     func() time.Time
}

var (
	_ Adapter         = (*OpenMeteo)(nil)
	_ Supplementer    = (*OpenMeteo)(nil)
	_ ElevationLookup = (*OpenMeteo)(nil)
)

// NewOpenMeteo constructs an OpenMeteo adapter against the public API.
func NewOpenMeteo(userAgent string, log *slog.Logger) *OpenMeteo {
	return NewOpenMeteoWithURL(OpenMeteoURL, userAgent, log)
}

// NewOpenMeteoWithURL constructs an OpenMeteo adapter pointing at a custom base URL (for tests).
func NewOpenMeteoWithURL(baseURL, userAgent string, log *slog.Logger) *OpenMeteo {
	return &OpenMeteo{
		baseURL: strings.TrimRight(baseURL, "/"),
		get:     newGetter(IDOpenMeteo, userAgent, "application/json", log),
		now:     time.Now,
	}
}

func (o *OpenMeteo) ID() string { return IDOpenMeteo }

func (o *OpenMeteo) Capabilities() forecast.Capability {
	return forecast.AllCapabilities &^ forecast.NativeAlerts
}

type openMeteoHourly struct {
	Time                     []int64    `json:"time"`
	Temperature2m            []*float64 `json:"temperature_2m"`
	DewPoint2m               []*float64 `json:"dew_point_2m"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
	Precipitation            []*float64 `json:"precipitation"`
	Snowfall                 []*float64 `json:"snowfall"`
	WindSpeed10m             []*float64 `json:"wind_speed_10m"`
	WindGusts10m             []*float64 `json:"wind_gusts_10m"`
	WindDirection10m         []*float64 `json:"wind_direction_10m"`
	CloudCover               []*float64 `json:"cloud_cover"`
	FreezingLevelHeight      []*float64 `json:"freezing_level_height"`
	CAPE                     []*float64 `json:"cape"`
}

type openMeteoResponse struct {
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Elevation *float64        `json:"elevation"`
	Hourly    openMeteoHourly `json:"hourly"`
}

// at returns the i-th element of a nullable series, or nil if the series is short.
func at(series []*float64, i int) *float64 {
	if i >= len(series) || series[i] == nil {
		return nil
	}
	v := *series[i]
	return &v
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func (o *OpenMeteo) forecastURL(lat, lon float64, vars []string, extra url.Values) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("hourly", strings.Join(vars, ","))
	q.Set("timezone", "GMT")
	q.Set("timeformat", "unixtime")
	q.Set("wind_speed_unit", "kmh")
	for k, v := range extra {
		q[k] = v
	}
	return o.baseURL + "/v1/forecast?" + q.Encode()
}

func (o *OpenMeteo) fetchHourly(ctx context.Context, lat, lon float64, vars []string, extra url.Values) (*openMeteoResponse, error) {
	var raw openMeteoResponse
	if err := o.get.getJSON(ctx, o.forecastURL(lat, lon, vars, extra), &raw); err != nil {
		return nil, forecast.Transport(IDOpenMeteo, err)
	}
	if len(raw.Hourly.Time) == 0 {
		return nil, forecast.NoData(IDOpenMeteo, "empty hourly block")
	}
	return &raw, nil
}

// Fetch retrieves the full hourly forecast.
func (o *OpenMeteo) Fetch(ctx context.Context, lat, lon float64, hours int) (*forecast.NormalizedForecast, error) {
	extra := url.Values{}
	// One spare hour because the current, partly elapsed hour is included.
	extra.Set("forecast_hours", strconv.Itoa(hours+1))

	raw, err := o.fetchHourly(ctx, lat, lon, openMeteoForecastVars, extra)
	if err != nil {
		return nil, err
	}

	periods := o.periods(raw.Hourly, hours, true)
	if len(periods) == 0 {
		return nil, forecast.NoData(IDOpenMeteo, "no periods in the requested window")
	}

	return &forecast.NormalizedForecast{
		Provider:       IDOpenMeteo,
		Lat:            lat,
		Lon:            lon,
		Granularity:    forecast.Hourly,
		Periods:        periods,
		ModelElevation: raw.Elevation,
		FetchedAt:      o.now().UTC(),
	}, nil
}

// FetchSupplement retrieves only the metrics other providers tend to lack.
// Temperature and wind are left at zero and must not be read from the result.
func (o *OpenMeteo) FetchSupplement(ctx context.Context, lat, lon float64, hours int) (*forecast.NormalizedForecast, error) {
	extra := url.Values{}
	extra.Set("forecast_hours", strconv.Itoa(hours+1))

	raw, err := o.fetchHourly(ctx, lat, lon, openMeteoSupplementVars, extra)
	if err != nil {
		return nil, err
	}

	return &forecast.NormalizedForecast{
		Provider:       IDOpenMeteo,
		Lat:            lat,
		Lon:            lon,
		Granularity:    forecast.Hourly,
		Periods:        o.periods(raw.Hourly, hours, false),
		ModelElevation: raw.Elevation,
		FetchedAt:      o.now().UTC(),
	}, nil
}

// FetchRecentPrecipitation sums observed-model precipitation over the last 24, 48 and 72 hours.
func (o *OpenMeteo) FetchRecentPrecipitation(ctx context.Context, lat, lon float64) (*forecast.RecentPrecipitation, error) {
	extra := url.Values{}
	extra.Set("past_days", "3")
	extra.Set("forecast_days", "1")

	raw, err := o.fetchHourly(ctx, lat, lon, openMeteoHistoryVars, extra)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	var rp forecast.RecentPrecipitation
	for i, ts := range raw.Hourly.Time {
		t := time.Unix(ts, 0).UTC()
		age := now.Sub(t)
		if age <= 0 || age > 72*time.Hour {
			continue
		}
		rain := valueOr(at(raw.Hourly.Precipitation, i), 0)
		snow := valueOr(at(raw.Hourly.Snowfall, i), 0)
		if age <= 24*time.Hour {
			rp.Rain24h += rain
			rp.Snow24h += snow
		}
		if age <= 48*time.Hour {
			rp.Rain48h += rain
			rp.Snow48h += snow
		}
		rp.Rain72h += rain
		rp.Snow72h += snow
	}

	return &rp, nil
}

type openMeteoElevation struct {
	Elevation []float64 `json:"elevation"`
}

// Lookup returns the terrain elevation in meters from the Open-Meteo 90 m DEM.
func (o *OpenMeteo) Lookup(ctx context.Context, lat, lon float64) (float64, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))

	var raw openMeteoElevation
	if err := o.get.getJSON(ctx, o.baseURL+"/v1/elevation?"+q.Encode(), &raw); err != nil {
		return 0, fmt.Errorf("open-meteo elevation lookup: %w", err)
	}
	if len(raw.Elevation) == 0 {
		return 0, fmt.Errorf("open-meteo elevation lookup: empty response")
	}
	return raw.Elevation[0], nil
}

// periods converts the hourly block, skipping hours that already ended.
// When full is set, hours without a temperature are dropped.
func (o *OpenMeteo) periods(h openMeteoHourly, limit int, full bool) []forecast.ForecastPeriod {
	from := hourWindow(o.now())
	out := make([]forecast.ForecastPeriod, 0, len(h.Time))

	for i, ts := range h.Time {
		t := time.Unix(ts, 0).UTC()
		if t.Before(from) {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}

		temp := at(h.Temperature2m, i)
		if full && temp == nil {
			continue
		}

		p := forecast.ForecastPeriod{
			Time:              t,
			TempMin:           valueOr(temp, 0),
			TempMax:           valueOr(temp, 0),
			PrecipProbability: valueOr(at(h.PrecipitationProbability, i), 0),
			WindAvg:           valueOr(at(h.WindSpeed10m, i), 0),
			WindGust:          valueOr(at(h.WindGusts10m, i), 0),
			CloudCover:        valueOr(at(h.CloudCover, i), 0),
			Dewpoint:          at(h.DewPoint2m, i),
			FreezingLevel:     at(h.FreezingLevelHeight, i),
			CAPE:              at(h.CAPE, i),
		}
		if dir := at(h.WindDirection10m, i); dir != nil {
			p.WindDir = forecast.OctantFromDegrees(*dir)
		}
		if precip := at(h.Precipitation, i); precip != nil {
			p.Precip = forecast.Range{Min: *precip, Max: *precip}
			p.HasPrecipAmount = true
		}
		if snow := at(h.Snowfall, i); snow != nil {
			p.Snow = forecast.Range{Min: *snow, Max: *snow}
		}
		if p.WindGust < p.WindAvg {
			p.WindGust = p.WindAvg
		}

		out = append(out, p.Normalize())
	}

	return out
}
