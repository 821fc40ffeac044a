package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neexbeast/trailwx/internal/forecast"
)

// MetNoURL is the MET Norway weather API root.
// Docs: https://api.met.no/weatherapi/locationforecast/2.0/documentation
const MetNoURL = "https://api.met.no/weatherapi"

// MetNo is the national provider for the Nordic countries.
type MetNo struct {
	baseURL string
	get     *getter
	alert   *getter
	log     *slog.Logger
	now     func() time.Time
}

var _ Adapter = (*MetNo)(nil)

// NewMetNo constructs a MetNo adapter against the public API.
func NewMetNo(userAgent string, log *slog.Logger) *MetNo {
	return NewMetNoWithURL(MetNoURL, userAgent, log)
}

// NewMetNoWithURL constructs a MetNo adapter pointing at a custom base URL (for tests).
func NewMetNoWithURL(baseURL, userAgent string, log *slog.Logger) *MetNo {
	if log == nil {
		log = slog.Default()
	}
	return &MetNo{
		baseURL: strings.TrimRight(baseURL, "/"),
		get:     newGetter(IDMetNo, userAgent, "application/json", log),
		alert:   newGetter(IDMetNo+"-alerts", userAgent, "application/json", log),
		log:     log.With("component", "metno"),
		now:     time.Now,
	}
}

func (m *MetNo) ID() string { return IDMetNo }

func (m *MetNo) Capabilities() forecast.Capability {
	return forecast.AllCapabilities
}

type metNoInstant struct {
	AirTemperature      *float64 `json:"air_temperature"`
	DewPointTemperature *float64 `json:"dew_point_temperature"`
	WindSpeed           *float64 `json:"wind_speed"`
	WindSpeedOfGust     *float64 `json:"wind_speed_of_gust"`
	WindFromDirection   *float64 `json:"wind_from_direction"`
	CloudAreaFraction   *float64 `json:"cloud_area_fraction"`
}

type metNoPeriodDetails struct {
	AirTemperatureMax          *float64 `json:"air_temperature_max"`
	AirTemperatureMin          *float64 `json:"air_temperature_min"`
	PrecipitationAmount        *float64 `json:"precipitation_amount"`
	PrecipitationAmountMax     *float64 `json:"precipitation_amount_max"`
	PrecipitationAmountMin     *float64 `json:"precipitation_amount_min"`
	ProbabilityOfPrecipitation *float64 `json:"probability_of_precipitation"`
}

type metNoNext struct {
	Details metNoPeriodDetails `json:"details"`
}

type metNoForecast struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details metNoInstant `json:"details"`
				} `json:"instant"`
				Next1Hours *metNoNext `json:"next_1_hours"`
				Next6Hours *metNoNext `json:"next_6_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

type metNoAlerts struct {
	Features []struct {
		Properties struct {
			Event       string `json:"event"`
			Severity    string `json:"severity"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"properties"`
		When struct {
			Interval []time.Time `json:"interval"`
		} `json:"when"`
	} `json:"features"`
}

// Fetch reads locationforecast/2.0/complete and the current metalerts for the point.
// Beyond roughly 60 hours met.no switches to 6-hour steps; such a step carries its
// 6-hour totals so daily sums stay correct after upscaling.
func (m *MetNo) Fetch(ctx context.Context, lat, lon float64, hours int) (*forecast.NormalizedForecast, error) {
	forecastURL := fmt.Sprintf("%s/locationforecast/2.0/complete?lat=%.4f&lon=%.4f", m.baseURL, lat, lon)

	var raw metNoForecast
	if err := m.get.getJSON(ctx, forecastURL, &raw); err != nil {
		return nil, forecast.Transport(IDMetNo, err)
	}

	from := hourWindow(m.now())
	until := from.Add(time.Duration(hours) * time.Hour)

	periods := make([]forecast.ForecastPeriod, 0, hours)
	for _, ts := range raw.Properties.Timeseries {
		start := ts.Time.UTC()
		if start.Before(from) {
			continue
		}
		if hours > 0 && !start.Before(until) {
			break
		}

		inst := ts.Data.Instant.Details
		if inst.AirTemperature == nil {
			continue
		}

		next := ts.Data.Next1Hours
		if next == nil {
			next = ts.Data.Next6Hours
		}
		periods = append(periods, metNoPeriod(start, inst, next))
	}
	if len(periods) == 0 {
		return nil, forecast.NoData(IDMetNo, "no timeseries in the requested window")
	}

	var elevation *float64
	if c := raw.Geometry.Coordinates; len(c) >= 3 {
		elevation = forecast.Float(c[2])
	}

	return &forecast.NormalizedForecast{
		Provider:       IDMetNo,
		Lat:            lat,
		Lon:            lon,
		Granularity:    forecast.Hourly,
		Periods:        periods,
		Alerts:         m.alerts(ctx, lat, lon),
		ModelElevation: elevation,
		FetchedAt:      m.now().UTC(),
	}, nil
}

func metNoPeriod(start time.Time, inst metNoInstant, next *metNoNext) forecast.ForecastPeriod {
	const msToKmh = 3.6

	p := forecast.ForecastPeriod{
		Time:       start,
		TempMin:    *inst.AirTemperature,
		TempMax:    *inst.AirTemperature,
		WindAvg:    valueOr(inst.WindSpeed, 0) * msToKmh,
		WindGust:   valueOr(inst.WindSpeedOfGust, valueOr(inst.WindSpeed, 0)) * msToKmh,
		CloudCover: valueOr(inst.CloudAreaFraction, 0),
	}
	if inst.DewPointTemperature != nil {
		p.Dewpoint = forecast.Float(*inst.DewPointTemperature)
	}
	if inst.WindFromDirection != nil {
		p.WindDir = forecast.OctantFromDegrees(*inst.WindFromDirection)
	}

	if next != nil {
		d := next.Details
		if d.AirTemperatureMin != nil && *d.AirTemperatureMin < p.TempMin {
			p.TempMin = *d.AirTemperatureMin
		}
		if d.AirTemperatureMax != nil && *d.AirTemperatureMax > p.TempMax {
			p.TempMax = *d.AirTemperatureMax
		}
		if d.ProbabilityOfPrecipitation != nil {
			p.PrecipProbability = *d.ProbabilityOfPrecipitation
		}
		if d.PrecipitationAmount != nil {
			amount := *d.PrecipitationAmount
			p.Precip = forecast.Range{
				Min: valueOr(d.PrecipitationAmountMin, amount),
				Max: valueOr(d.PrecipitationAmountMax, amount),
			}
			p.HasPrecipAmount = true
		}
	}

	return p.Normalize()
}

// alerts is best effort: a failure leaves the forecast without alerts.
func (m *MetNo) alerts(ctx context.Context, lat, lon float64) []forecast.Alert {
	alertURL := fmt.Sprintf("%s/metalerts/2.0/current.json?lat=%.4f&lon=%.4f", m.baseURL, lat, lon)

	var raw metNoAlerts
	if err := m.alert.getJSON(ctx, alertURL, &raw); err != nil {
		m.log.Warn("alerts fetch failed", "lat", lat, "lon", lon, "err", err)
		return nil
	}

	alerts := make([]forecast.Alert, 0, len(raw.Features))
	for _, f := range raw.Features {
		a := forecast.Alert{
			Kind:        f.Properties.Event,
			Severity:    f.Properties.Severity,
			Description: f.Properties.Title,
		}
		if a.Description == "" {
			a.Description = f.Properties.Description
		}
		if iv := f.When.Interval; len(iv) == 2 {
			a.ValidFrom, a.ValidTo = iv[0].UTC(), iv[1].UTC()
		}
		alerts = append(alerts, a)
	}
	return alerts
}
