package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/neexbeast/trailwx/internal/forecast"
)

// NWSURL is the US National Weather Service API root.
// Docs: https://www.weather.gov/documentation/services-web-api
const NWSURL = "https://api.weather.gov"

// NWS is the national provider for the United States.
// It reports precipitation only as a probability; amounts come from the supplement.
type NWS struct {
	baseURL string
	get     *getter
	alert   *getter
	log     *slog.Logger
	now     func() time.Time
}

var _ Adapter = (*NWS)(nil)

// NewNWS constructs an NWS adapter against the public API.
func NewNWS(userAgent string, log *slog.Logger) *NWS {
	return NewNWSWithURL(NWSURL, userAgent, log)
}

// NewNWSWithURL constructs an NWS adapter pointing at a custom base URL (for tests).
func NewNWSWithURL(baseURL, userAgent string, log *slog.Logger) *NWS {
	if log == nil {
		log = slog.Default()
	}
	return &NWS{
		baseURL: strings.TrimRight(baseURL, "/"),
		get:     newGetter(IDNWS, userAgent, "application/geo+json", log),
		alert:   newGetter(IDNWS+"-alerts", userAgent, "application/geo+json", log),
		log:     log.With("component", "nws"),
		now:     time.Now,
	}
}

func (n *NWS) ID() string { return IDNWS }

func (n *NWS) Capabilities() forecast.Capability {
	return forecast.NativeTemperature | forecast.NativeWind | forecast.NativeElevation | forecast.NativeAlerts
}

type nwsPoints struct {
	Properties struct {
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type nwsQuantity struct {
	UnitCode string   `json:"unitCode"`
	Value    *float64 `json:"value"`
}

type nwsPeriod struct {
	StartTime                  time.Time       `json:"startTime"`
	Temperature                json.RawMessage `json:"temperature"`
	TemperatureUnit            string          `json:"temperatureUnit"`
	ProbabilityOfPrecipitation nwsQuantity     `json:"probabilityOfPrecipitation"`
	Dewpoint                   nwsQuantity     `json:"dewpoint"`
	WindSpeed                  json.RawMessage `json:"windSpeed"`
	WindGust                   json.RawMessage `json:"windGust"`
	WindDirection              string          `json:"windDirection"`
}

type nwsHourly struct {
	Properties struct {
		Elevation nwsQuantity `json:"elevation"`
		Periods   []nwsPeriod `json:"periods"`
	} `json:"properties"`
}

type nwsAlerts struct {
	Features []struct {
		Properties struct {
			Event       string     `json:"event"`
			Severity    string     `json:"severity"`
			Headline    string     `json:"headline"`
			Description string     `json:"description"`
			Onset       *time.Time `json:"onset"`
			Effective   *time.Time `json:"effective"`
			Ends        *time.Time `json:"ends"`
			Expires     *time.Time `json:"expires"`
		} `json:"properties"`
	} `json:"features"`
}

// Fetch resolves the grid point, then reads the hourly forecast and active alerts.
func (n *NWS) Fetch(ctx context.Context, lat, lon float64, hours int) (*forecast.NormalizedForecast, error) {
	pointURL := fmt.Sprintf("%s/points/%.4f,%.4f", n.baseURL, lat, lon)

	var points nwsPoints
	if err := n.get.getJSON(ctx, pointURL, &points); err != nil {
		return nil, forecast.Transport(IDNWS, fmt.Errorf("resolving grid point: %w", err))
	}
	if points.Properties.ForecastHourly == "" {
		return nil, forecast.NoData(IDNWS, "grid point has no hourly forecast")
	}

	hourlyURL := points.Properties.ForecastHourly
	if strings.Contains(hourlyURL, "?") {
		hourlyURL += "&units=si"
	} else {
		hourlyURL += "?units=si"
	}

	var raw nwsHourly
	if err := n.get.getJSON(ctx, hourlyURL, &raw); err != nil {
		return nil, forecast.Transport(IDNWS, fmt.Errorf("hourly forecast: %w", err))
	}

	from := hourWindow(n.now())
	periods := make([]forecast.ForecastPeriod, 0, hours)
	for _, rp := range raw.Properties.Periods {
		start := rp.StartTime.UTC()
		if start.Before(from) {
			continue
		}
		if hours > 0 && len(periods) >= hours {
			break
		}
		p, ok := n.period(rp)
		if !ok {
			continue
		}
		periods = append(periods, p)
	}
	if len(periods) == 0 {
		return nil, forecast.NoData(IDNWS, "no periods in the requested window")
	}

	var elevation *float64
	if v := raw.Properties.Elevation.Value; v != nil {
		e := *v
		if strings.HasSuffix(raw.Properties.Elevation.UnitCode, "ft") {
			e *= 0.3048
		}
		elevation = &e
	}

	return &forecast.NormalizedForecast{
		Provider:       IDNWS,
		Lat:            lat,
		Lon:            lon,
		Granularity:    forecast.Hourly,
		Periods:        periods,
		Alerts:         n.alerts(ctx, lat, lon),
		ModelElevation: elevation,
		FetchedAt:      n.now().UTC(),
	}, nil
}

func (n *NWS) period(rp nwsPeriod) (forecast.ForecastPeriod, bool) {
	temp, ok := parseNWSTemperature(rp.Temperature, rp.TemperatureUnit)
	if !ok {
		return forecast.ForecastPeriod{}, false
	}

	wind := parseNWSSpeed(rp.WindSpeed)
	gust := parseNWSSpeed(rp.WindGust)

	p := forecast.ForecastPeriod{
		Time:     rp.StartTime.UTC(),
		TempMin:  temp,
		TempMax:  temp,
		WindAvg:  wind.avg,
		WindGust: wind.max,
		WindDir:  forecast.ParseOctant(rp.WindDirection),
	}
	if gust.max > p.WindGust {
		p.WindGust = gust.max
	}
	if v := rp.ProbabilityOfPrecipitation.Value; v != nil {
		p.PrecipProbability = *v
	}
	if v := rp.Dewpoint.Value; v != nil {
		d := *v
		if strings.HasSuffix(rp.Dewpoint.UnitCode, "degF") {
			d = fahrenheitToCelsius(d)
		}
		p.Dewpoint = &d
	}

	return p.Normalize(), true
}

// alerts is best effort: a failure leaves the forecast without alerts.
func (n *NWS) alerts(ctx context.Context, lat, lon float64) []forecast.Alert {
	alertURL := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", n.baseURL, lat, lon)

	var raw nwsAlerts
	if err := n.alert.getJSON(ctx, alertURL, &raw); err != nil {
		n.log.Warn("alerts fetch failed", "lat", lat, "lon", lon, "err", err)
		return nil
	}

	alerts := make([]forecast.Alert, 0, len(raw.Features))
	for _, f := range raw.Features {
		p := f.Properties
		a := forecast.Alert{
			Kind:        p.Event,
			Severity:    p.Severity,
			Description: p.Headline,
		}
		if a.Description == "" {
			a.Description = p.Description
		}
		a.ValidFrom = firstTime(p.Onset, p.Effective)
		a.ValidTo = firstTime(p.Ends, p.Expires)
		alerts = append(alerts, a)
	}
	return alerts
}

func firstTime(ts ...*time.Time) time.Time {
	for _, t := range ts {
		if t != nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func fahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// parseNWSTemperature accepts both the plain number and the quantitative-value object forms.
func parseNWSTemperature(raw json.RawMessage, unit string) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		if strings.EqualFold(unit, "F") {
			v = fahrenheitToCelsius(v)
		}
		return v, true
	}

	var q nwsQuantity
	if err := json.Unmarshal(raw, &q); err != nil || q.Value == nil {
		return 0, false
	}
	if strings.HasSuffix(q.UnitCode, "degF") {
		return fahrenheitToCelsius(*q.Value), true
	}
	return *q.Value, true
}

type speedRange struct {
	avg, max float64
}

var speedNumbers = regexp.MustCompile(`\d+(?:\.\d+)?`)

// parseNWSSpeed reads "15 km/h", "10 to 20 km/h", "12 mph" or a quantitative-value object
// and returns km/h. For ranges the average is the midpoint.
func parseNWSSpeed(raw json.RawMessage) speedRange {
	if len(raw) == 0 || string(raw) == "null" {
		return speedRange{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		nums := speedNumbers.FindAllString(s, -1)
		if len(nums) == 0 {
			return speedRange{}
		}
		factor := 1.0
		if strings.Contains(strings.ToLower(s), "mph") {
			factor = 1.609344
		}
		lo, _ := strconv.ParseFloat(nums[0], 64)
		hi := lo
		if len(nums) > 1 {
			hi, _ = strconv.ParseFloat(nums[len(nums)-1], 64)
		}
		return speedRange{avg: (lo + hi) / 2 * factor, max: hi * factor}
	}

	var q nwsQuantity
	if err := json.Unmarshal(raw, &q); err != nil || q.Value == nil {
		return speedRange{}
	}
	v := *q.Value
	switch {
	case strings.HasSuffix(q.UnitCode, "m_s-1"):
		v *= 3.6
	case strings.HasSuffix(q.UnitCode, "mi_h-1"):
		v *= 1.609344
	}
	return speedRange{avg: v, max: v}
}
