package forecast

import (
	"fmt"
	"time"
)

// Granularity is the native slice width of a forecast's periods.
type Granularity string

const (
	Hourly Granularity = "hourly"
	Daily  Granularity = "daily"
)

// Horizon describes how far ahead, and at what granularity, a forecast is requested.
type Horizon struct {
	Granularity Granularity
	Hours       int
	Days        int
}

// HourlyHorizon returns an hourly horizon covering the given number of hours.
func HourlyHorizon(hours int) Horizon {
	return Horizon{Granularity: Hourly, Hours: hours}
}

// DailyHorizon returns a daily horizon covering the given number of days.
func DailyHorizon(days int) Horizon {
	return Horizon{Granularity: Daily, Days: days}
}

// FetchHours is the number of hourly slices an adapter must return to satisfy h.
// Daily horizons fetch one extra day so the final local day is complete after upscaling.
func (h Horizon) FetchHours() int {
	if h.Granularity == Daily {
		return (h.Days + 1) * 24
	}
	return h.Hours
}

// Key identifies the horizon inside cache keys.
func (h Horizon) Key() string {
	if h.Granularity == Daily {
		return fmt.Sprintf("d%d", h.Days)
	}
	return fmt.Sprintf("h%d", h.Hours)
}

// Range is a min/max pair, used for precipitation and snow amounts.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Add returns the element-wise sum of r and o.
func (r Range) Add(o Range) Range {
	return Range{Min: r.Min + o.Min, Max: r.Max + o.Max}
}

// ForecastPeriod is one hourly or daily slice of weather before elevation correction.
// Pointer fields are optional: nil means the provider did not supply the value.
type ForecastPeriod struct {
	Time              time.Time `json:"time"`
	Label             string    `json:"label,omitempty"`
	TempMin           float64   `json:"temp_min"`
	TempMax           float64   `json:"temp_max"`
	PrecipProbability float64   `json:"precip_probability"`
	Precip            Range     `json:"precip_mm"`
	Snow              Range     `json:"snow_cm"`
	WindAvg           float64   `json:"wind_avg_kmh"`
	WindGust          float64   `json:"wind_gust_kmh"`
	WindDir           Octant    `json:"wind_dir,omitempty"`
	CloudCover        float64   `json:"cloud_cover"`
	Dewpoint          *float64  `json:"dewpoint,omitempty"`
	FreezingLevel     *float64  `json:"freezing_level_m,omitempty"`
	CAPE              *float64  `json:"cape,omitempty"`

	// HasPrecipAmount is false when the source only gave a probability.
	HasPrecipAmount bool `json:"has_precip_amount"`
}

// Validate checks the period invariants.
func (p ForecastPeriod) Validate() error {
	if p.TempMin > p.TempMax {
		return fmt.Errorf("temp_min %.1f above temp_max %.1f at %s", p.TempMin, p.TempMax, p.Time.Format(time.RFC3339))
	}
	if p.PrecipProbability < 0 || p.PrecipProbability > 100 {
		return fmt.Errorf("precipitation probability %.0f out of range at %s", p.PrecipProbability, p.Time.Format(time.RFC3339))
	}
	return nil
}

// Normalize repairs values providers are known to get slightly wrong:
// inverted min/max pairs and probabilities outside [0,100].
func (p ForecastPeriod) Normalize() ForecastPeriod {
	if p.TempMin > p.TempMax {
		p.TempMin, p.TempMax = p.TempMax, p.TempMin
	}
	if p.Precip.Min > p.Precip.Max {
		p.Precip.Min, p.Precip.Max = p.Precip.Max, p.Precip.Min
	}
	if p.Snow.Min > p.Snow.Max {
		p.Snow.Min, p.Snow.Max = p.Snow.Max, p.Snow.Min
	}
	switch {
	case p.PrecipProbability < 0:
		p.PrecipProbability = 0
	case p.PrecipProbability > 100:
		p.PrecipProbability = 100
	}
	return p
}

// Alert is an active weather warning issued by a provider.
type Alert struct {
	Kind        string    `json:"kind"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	ValidFrom   time.Time `json:"valid_from"`
	ValidTo     time.Time `json:"valid_to"`
}

// RecentPrecipitation holds rolling precipitation totals ending at fetch time.
type RecentPrecipitation struct {
	Rain24h float64 `json:"rain_24h_mm"`
	Rain48h float64 `json:"rain_48h_mm"`
	Rain72h float64 `json:"rain_72h_mm"`
	Snow24h float64 `json:"snow_24h_cm"`
	Snow48h float64 `json:"snow_48h_cm"`
	Snow72h float64 `json:"snow_72h_cm"`
}

// NormalizedForecast is a provider's forecast in canonical shape.
// Values are never mutated after construction; use Clone to derive a new one.
type NormalizedForecast struct {
	Provider       string               `json:"provider"`
	Lat            float64              `json:"lat"`
	Lon            float64              `json:"lon"`
	Granularity    Granularity          `json:"granularity"`
	Periods        []ForecastPeriod     `json:"periods"`
	Alerts         []Alert              `json:"alerts,omitempty"`
	ModelElevation *float64             `json:"model_elevation_m,omitempty"`
	RecentPrecip   *RecentPrecipitation `json:"recent_precip,omitempty"`
	IsFallback     bool                 `json:"is_fallback"`
	FetchedAt      time.Time            `json:"fetched_at"`
	Supplemented   []string             `json:"supplemented,omitempty"`
}

// Clone returns a deep copy of f.
func (f *NormalizedForecast) Clone() *NormalizedForecast {
	if f == nil {
		return nil
	}
	out := *f
	out.Periods = make([]ForecastPeriod, len(f.Periods))
	for i, p := range f.Periods {
		p.Dewpoint = clonePtr(p.Dewpoint)
		p.FreezingLevel = clonePtr(p.FreezingLevel)
		p.CAPE = clonePtr(p.CAPE)
		out.Periods[i] = p
	}
	out.Alerts = append([]Alert(nil), f.Alerts...)
	out.Supplemented = append([]string(nil), f.Supplemented...)
	out.ModelElevation = clonePtr(f.ModelElevation)
	if f.RecentPrecip != nil {
		rp := *f.RecentPrecip
		out.RecentPrecip = &rp
	}
	return &out
}

// Validate checks every period of f.
func (f *NormalizedForecast) Validate() error {
	for _, p := range f.Periods {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StormRisk classifies convective energy.
type StormRisk string

const (
	StormUnknown  StormRisk = "unknown"
	StormWeak     StormRisk = "weak"
	StormModerate StormRisk = "moderate"
	StormStrong   StormRisk = "strong"
	StormExtreme  StormRisk = "extreme"
)

// Reason is a danger factor tag.
type Reason string

const (
	ReasonWind     Reason = "WIND"
	ReasonIce      Reason = "ICE"
	ReasonWhiteout Reason = "WHITEOUT"
	ReasonPrecip   Reason = "PRECIP"
	ReasonStorm    Reason = "STORM"
)

// MaxDangerLevel caps DangerRating.Level.
const MaxDangerLevel = 4

// DangerRating is the composite severity of one period.
// Level always equals len(Reasons) capped at MaxDangerLevel.
type DangerRating struct {
	Level   int      `json:"level"`
	Reasons []Reason `json:"reasons,omitempty"`
}

// CorrectedPeriod is a ForecastPeriod adjusted to the target elevation plus derived fields.
type CorrectedPeriod struct {
	ForecastPeriod

	CloudBase    *float64     `json:"cloud_base_agl_m,omitempty"`
	CloudBaseASL *float64     `json:"cloud_base_asl_m,omitempty"`
	StormRisk    StormRisk    `json:"storm_risk"`
	Danger       DangerRating `json:"danger"`
}

// CorrectedForecast is the only representation the formatter consumes.
type CorrectedForecast struct {
	Provider           string               `json:"provider"`
	Lat                float64              `json:"lat"`
	Lon                float64              `json:"lon"`
	Granularity        Granularity          `json:"granularity"`
	Alerts             []Alert              `json:"alerts,omitempty"`
	ModelElevation     *float64             `json:"model_elevation_m,omitempty"`
	TargetElevation    float64              `json:"target_elevation_m"`
	ElevationCorrected bool                 `json:"elevation_corrected"`
	RecentPrecip       *RecentPrecipitation `json:"recent_precip,omitempty"`
	IsFallback         bool                 `json:"is_fallback"`
	FetchedAt          time.Time            `json:"fetched_at"`
	Periods            []CorrectedPeriod    `json:"periods"`
}

// Clone returns a deep copy of f.
func (f *CorrectedForecast) Clone() *CorrectedForecast {
	if f == nil {
		return nil
	}
	out := *f
	out.Periods = make([]CorrectedPeriod, len(f.Periods))
	for i, p := range f.Periods {
		p.Dewpoint = clonePtr(p.Dewpoint)
		p.FreezingLevel = clonePtr(p.FreezingLevel)
		p.CAPE = clonePtr(p.CAPE)
		p.CloudBase = clonePtr(p.CloudBase)
		p.CloudBaseASL = clonePtr(p.CloudBaseASL)
		p.Danger.Reasons = append([]Reason(nil), p.Danger.Reasons...)
		out.Periods[i] = p
	}
	out.Alerts = append([]Alert(nil), f.Alerts...)
	out.ModelElevation = clonePtr(f.ModelElevation)
	if f.RecentPrecip != nil {
		rp := *f.RecentPrecip
		out.RecentPrecip = &rp
	}
	return &out
}

// Float returns a pointer to v. Handy for optional fields.
func Float(v float64) *float64 {
	return &v
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
