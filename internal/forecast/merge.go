package forecast

import (
	"sort"
	"time"
)

// Supplement metric names recorded in NormalizedForecast.Supplemented.
const (
	MetricDewpoint      = "dewpoint"
	MetricCAPE          = "cape"
	MetricFreezingLevel = "freezing_level"
	MetricPrecipAmount  = "precip_amount"
	MetricRecentPrecip  = "recent_precip"
)

// NeedsSupplement reports whether any period of f lacks a metric a supplement can fill,
// given the capabilities of the provider that produced f.
func NeedsSupplement(f *NormalizedForecast, native Capability) bool {
	if f == nil {
		return false
	}
	for _, p := range f.Periods {
		if p.Dewpoint == nil || p.CAPE == nil || p.FreezingLevel == nil {
			return true
		}
		if !native.Has(NativePrecipAmount) && !p.HasPrecipAmount {
			return true
		}
	}
	return false
}

// MergeSupplement fills fields the primary lacks from the supplement's period nearest in time.
// Primary values are never overwritten, and precipitation amounts are only taken when
// native lacks NativePrecipAmount. Supplement periods further than tolerance from a
// primary period are ignored. Either input may be nil.
func MergeSupplement(primary, supplement *NormalizedForecast, recent *RecentPrecipitation, native Capability, tolerance time.Duration) *NormalizedForecast {
	out := primary.Clone()
	if out == nil {
		return nil
	}

	merged := make(map[string]bool)
	fillPrecip := !native.Has(NativePrecipAmount)

	if supplement != nil && len(supplement.Periods) > 0 {
		sup := append([]ForecastPeriod(nil), supplement.Periods...)
		sort.Slice(sup, func(i, j int) bool { return sup[i].Time.Before(sup[j].Time) })

		for i := range out.Periods {
			p := &out.Periods[i]
			s, ok := nearest(sup, p.Time, tolerance)
			if !ok {
				continue
			}
			if p.Dewpoint == nil && s.Dewpoint != nil {
				p.Dewpoint = Float(*s.Dewpoint)
				merged[MetricDewpoint] = true
			}
			if p.CAPE == nil && s.CAPE != nil {
				p.CAPE = Float(*s.CAPE)
				merged[MetricCAPE] = true
			}
			if p.FreezingLevel == nil && s.FreezingLevel != nil {
				p.FreezingLevel = Float(*s.FreezingLevel)
				merged[MetricFreezingLevel] = true
			}
			if fillPrecip && !p.HasPrecipAmount && s.HasPrecipAmount {
				p.Precip = s.Precip
				if p.Snow == (Range{}) {
					p.Snow = s.Snow
				}
				p.HasPrecipAmount = true
				merged[MetricPrecipAmount] = true
			}
		}
	}

	if recent != nil && out.RecentPrecip == nil {
		rp := *recent
		out.RecentPrecip = &rp
		merged[MetricRecentPrecip] = true
	}

	for _, m := range []string{MetricDewpoint, MetricCAPE, MetricFreezingLevel, MetricPrecipAmount, MetricRecentPrecip} {
		if merged[m] {
			out.Supplemented = append(out.Supplemented, m)
		}
	}

	return out
}

// nearest finds the period in sorted closest to t, within tolerance.
func nearest(sorted []ForecastPeriod, t time.Time, tolerance time.Duration) (ForecastPeriod, bool) {
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Time.Before(t) })

	best := -1
	var bestDiff time.Duration
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(sorted) {
			continue
		}
		d := sorted[j].Time.Sub(t)
		if d < 0 {
			d = -d
		}
		if best == -1 || d < bestDiff {
			best, bestDiff = j, d
		}
	}
	if best == -1 || bestDiff > tolerance {
		return ForecastPeriod{}, false
	}
	return sorted[best], true
}
