package correction

import (
	"math"

	"github.com/neexbeast/trailwx/internal/forecast"
)

const (
	// LapseRate is the environmental lapse rate in °C per meter.
	LapseRate = 0.0065

	// cloudBaseFactor converts the temperature-dewpoint spread in °C to meters of lift.
	cloudBaseFactor = 125.0
	// MinCloudBase is the floor applied to every computed cloud base, in meters AGL.
	MinCloudBase = 100.0
)

// CAPE thresholds in J/kg.
const (
	capeModerate = 300.0
	capeStrong   = 1000.0
	capeExtreme  = 2500.0
)

// AdjustTemperature moves a temperature from the model elevation to the target elevation.
func AdjustTemperature(raw, modelElevation, target float64) float64 {
	return raw - (target-modelElevation)*LapseRate
}

// Correct returns f adjusted to the target elevation. TempMin and TempMax are lapse-rate
// corrected; dewpoint and freezing level pass through. A nil modelElevation skips the
// correction and marks the result ElevationCorrected=false.
// Derived fields and danger ratings are left empty; see Derive.
func Correct(f *forecast.NormalizedForecast, modelElevation *float64, target float64) *forecast.CorrectedForecast {
	if f == nil {
		return nil
	}
	src := f.Clone()

	out := &forecast.CorrectedForecast{
		Provider:           src.Provider,
		Lat:                src.Lat,
		Lon:                src.Lon,
		Granularity:        src.Granularity,
		Alerts:             src.Alerts,
		ModelElevation:     src.ModelElevation,
		TargetElevation:    target,
		ElevationCorrected: modelElevation != nil,
		RecentPrecip:       src.RecentPrecip,
		IsFallback:         src.IsFallback,
		FetchedAt:          src.FetchedAt,
		Periods:            make([]forecast.CorrectedPeriod, len(src.Periods)),
	}
	if modelElevation != nil {
		out.ModelElevation = forecast.Float(*modelElevation)
	}

	for i, p := range src.Periods {
		if modelElevation != nil {
			p.TempMin = AdjustTemperature(p.TempMin, *modelElevation, target)
			p.TempMax = AdjustTemperature(p.TempMax, *modelElevation, target)
		}
		out.Periods[i] = forecast.CorrectedPeriod{
			ForecastPeriod: p,
			StormRisk:      forecast.StormUnknown,
		}
	}

	return out
}

// CloudBase estimates the condensation level in meters above ground:
// (tempMax - dewpoint) × 125, never below MinCloudBase. A nil dewpoint yields nil.
func CloudBase(tempMax float64, dewpoint *float64) *float64 {
	if dewpoint == nil {
		return nil
	}
	return forecast.Float(math.Max((tempMax-*dewpoint)*cloudBaseFactor, MinCloudBase))
}

// ClassifyStormRisk maps CAPE to a storm-risk class. A nil CAPE is unknown.
func ClassifyStormRisk(cape *float64) forecast.StormRisk {
	switch {
	case cape == nil:
		return forecast.StormUnknown
	case *cape < capeModerate:
		return forecast.StormWeak
	case *cape < capeStrong:
		return forecast.StormModerate
	case *cape <= capeExtreme:
		return forecast.StormStrong
	default:
		return forecast.StormExtreme
	}
}

// Derive fills cloud base and storm risk on every period of a corrected forecast.
// CloudBaseASL adds the cloud base to the ground the model describes: the model
// elevation when known, otherwise the target elevation.
func Derive(cf *forecast.CorrectedForecast) *forecast.CorrectedForecast {
	if cf == nil {
		return nil
	}
	out := cf.Clone()

	ground := out.TargetElevation
	if out.ModelElevation != nil {
		ground = *out.ModelElevation
	}

	for i := range out.Periods {
		p := &out.Periods[i]
		p.CloudBase = CloudBase(p.TempMax, p.Dewpoint)
		p.CloudBaseASL = nil
		if p.CloudBase != nil {
			p.CloudBaseASL = forecast.Float(ground + *p.CloudBase)
		}
		p.StormRisk = ClassifyStormRisk(p.CAPE)
	}
	return out
}
