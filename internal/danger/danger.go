package danger

import (
	"github.com/neexbeast/trailwx/internal/forecast"
)

// Thresholds are the trigger points of the wind and precipitation factors.
type Thresholds struct {
	// GustKmh triggers WIND when a gust strictly exceeds it.
	GustKmh float64
	// PrecipMM triggers PRECIP on hourly periods when Precip.Max exceeds it.
	PrecipMM float64
	// DailyPrecipMM triggers PRECIP on daily periods when Precip.Max exceeds it.
	DailyPrecipMM float64
	// PrecipProbability triggers PRECIP when the probability exceeds it.
	PrecipProbability float64
}

// DefaultThresholds returns the production trigger points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GustKmh:           60,
		PrecipMM:          5,
		DailyPrecipMM:     25,
		PrecipProbability: 90,
	}
}

// Rater combines independent danger factors into a DangerRating.
type Rater struct {
	th Thresholds
}

// NewRater creates a Rater. Zero thresholds fall back to the defaults.
func NewRater(th Thresholds) *Rater {
	def := DefaultThresholds()
	if th.GustKmh <= 0 {
		th.GustKmh = def.GustKmh
	}
	if th.PrecipMM <= 0 {
		th.PrecipMM = def.PrecipMM
	}
	if th.DailyPrecipMM <= 0 {
		th.DailyPrecipMM = def.DailyPrecipMM
	}
	if th.PrecipProbability <= 0 {
		th.PrecipProbability = def.PrecipProbability
	}
	return &Rater{th: th}
}

// Thresholds returns the active trigger points.
func (r *Rater) Thresholds() Thresholds {
	return r.th
}

// Rate evaluates an hourly period at the target elevation.
func (r *Rater) Rate(p forecast.CorrectedPeriod, target float64) forecast.DangerRating {
	return r.rate(p, target, r.th.PrecipMM)
}

// RateDaily evaluates a daily period, which uses the day-accumulated precipitation threshold.
func (r *Rater) RateDaily(p forecast.CorrectedPeriod, target float64) forecast.DangerRating {
	return r.rate(p, target, r.th.DailyPrecipMM)
}

// rate checks each factor independently. Absent inputs never trigger.
func (r *Rater) rate(p forecast.CorrectedPeriod, target, precipMM float64) forecast.DangerRating {
	var reasons []forecast.Reason

	if p.WindGust > r.th.GustKmh {
		reasons = append(reasons, forecast.ReasonWind)
	}
	if p.FreezingLevel != nil && *p.FreezingLevel <= target {
		reasons = append(reasons, forecast.ReasonIce)
	}
	if p.CloudBaseASL != nil && *p.CloudBaseASL <= target {
		reasons = append(reasons, forecast.ReasonWhiteout)
	}
	if (p.HasPrecipAmount && p.Precip.Max > precipMM) || p.PrecipProbability > r.th.PrecipProbability {
		reasons = append(reasons, forecast.ReasonPrecip)
	}
	if p.StormRisk == forecast.StormStrong || p.StormRisk == forecast.StormExtreme {
		reasons = append(reasons, forecast.ReasonStorm)
	}

	return forecast.DangerRating{
		Level:   min(len(reasons), forecast.MaxDangerLevel),
		Reasons: reasons,
	}
}

// RateForecast returns a copy of cf with every period rated at cf.TargetElevation.
func (r *Rater) RateForecast(cf *forecast.CorrectedForecast) *forecast.CorrectedForecast {
	if cf == nil {
		return nil
	}
	out := cf.Clone()

	rate := r.Rate
	if out.Granularity == forecast.Daily {
		rate = r.RateDaily
	}
	for i := range out.Periods {
		out.Periods[i].Danger = rate(out.Periods[i], out.TargetElevation)
	}
	return out
}
