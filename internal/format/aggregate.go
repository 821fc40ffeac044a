package format

import (
	"github.com/neexbeast/trailwx/internal/forecast"
)

var reasonOrder = []forecast.Reason{
	forecast.ReasonWind,
	forecast.ReasonIce,
	forecast.ReasonWhiteout,
	forecast.ReasonPrecip,
	forecast.ReasonStorm,
}

var stormRank = map[forecast.StormRisk]int{
	forecast.StormWeak:     1,
	forecast.StormModerate: 2,
	forecast.StormStrong:   3,
	forecast.StormExtreme:  4,
}

// aggregate folds a block of consecutive periods into the single period its line shows.
// Extremes win: the coldest minimum, the warmest maximum, the strongest gust, the lowest
// freezing level and cloud base. Amounts are summed and danger reasons are merged.
func aggregate(block []forecast.CorrectedPeriod) forecast.CorrectedPeriod {
	if len(block) == 1 {
		return block[0]
	}

	first := block[0]
	out := forecast.CorrectedPeriod{
		ForecastPeriod: forecast.ForecastPeriod{
			Time:            first.Time,
			Label:           first.Label,
			TempMin:         first.TempMin,
			TempMax:         first.TempMax,
			WindGust:        first.WindGust,
			WindDir:         first.WindDir,
			HasPrecipAmount: true,
		},
		StormRisk: first.StormRisk,
	}

	seen := make(map[forecast.Reason]bool)
	for _, p := range block {
		out.TempMin = min(out.TempMin, p.TempMin)
		out.TempMax = max(out.TempMax, p.TempMax)
		out.PrecipProbability = max(out.PrecipProbability, p.PrecipProbability)
		out.Precip = out.Precip.Add(p.Precip)
		out.Snow = out.Snow.Add(p.Snow)
		if !p.HasPrecipAmount {
			out.HasPrecipAmount = false
		}
		out.WindAvg = max(out.WindAvg, p.WindAvg)
		if p.WindGust > out.WindGust {
			out.WindGust, out.WindDir = p.WindGust, p.WindDir
		}
		out.CloudCover = max(out.CloudCover, p.CloudCover)
		out.Dewpoint = higher(out.Dewpoint, p.Dewpoint)
		out.CAPE = higher(out.CAPE, p.CAPE)
		out.FreezingLevel = lower(out.FreezingLevel, p.FreezingLevel)
		out.CloudBase = lower(out.CloudBase, p.CloudBase)
		out.CloudBaseASL = lower(out.CloudBaseASL, p.CloudBaseASL)
		if stormRank[p.StormRisk] > stormRank[out.StormRisk] {
			out.StormRisk = p.StormRisk
		}
		for _, r := range p.Danger.Reasons {
			seen[r] = true
		}
	}
	if !out.HasPrecipAmount {
		out.Precip = forecast.Range{}
	}

	for _, r := range reasonOrder {
		if seen[r] {
			out.Danger.Reasons = append(out.Danger.Reasons, r)
		}
	}
	out.Danger.Level = min(len(out.Danger.Reasons), forecast.MaxDangerLevel)
	return out
}

func lower(a, b *float64) *float64 {
	if a == nil || (b != nil && *b < *a) {
		return b
	}
	return a
}

func higher(a, b *float64) *float64 {
	if a == nil || (b != nil && *b > *a) {
		return b
	}
	return a
}
