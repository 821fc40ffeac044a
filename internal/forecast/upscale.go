package forecast

import (
	"time"
)

// Upscale folds hourly periods into local calendar days.
// Periods must be ordered by time. Days appear in the order first seen.
func Upscale(hourly []ForecastPeriod, loc *time.Location) []ForecastPeriod {
	if loc == nil {
		loc = time.UTC
	}

	type bucket struct {
		start time.Time
		hours []ForecastPeriod
	}

	var buckets []*bucket
	index := make(map[string]*bucket)

	for _, p := range hourly {
		local := p.Time.In(loc)
		key := local.Format("2006-01-02")
		b, ok := index[key]
		if !ok {
			b = &bucket{start: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()}
			index[key] = b
			buckets = append(buckets, b)
		}
		b.hours = append(b.hours, p)
	}

	days := make([]ForecastPeriod, 0, len(buckets))
	for _, b := range buckets {
		days = append(days, aggregateDay(b.start, b.hours))
	}
	return days
}

func aggregateDay(start time.Time, hours []ForecastPeriod) ForecastPeriod {
	day := ForecastPeriod{
		Time:            start,
		TempMin:         hours[0].TempMin,
		TempMax:         hours[0].TempMax,
		HasPrecipAmount: true,
	}

	var (
		windSum, cloudSum float64
		dewSum            float64
		dewN              int
		freezing, cape    *float64
	)
	dirCount := make(map[Octant]int)
	dirFirst := make(map[Octant]int)

	for i, h := range hours {
		if h.TempMin < day.TempMin {
			day.TempMin = h.TempMin
		}
		if h.TempMax > day.TempMax {
			day.TempMax = h.TempMax
		}
		if h.PrecipProbability > day.PrecipProbability {
			day.PrecipProbability = h.PrecipProbability
		}
		day.Precip = day.Precip.Add(h.Precip)
		day.Snow = day.Snow.Add(h.Snow)
		if !h.HasPrecipAmount {
			day.HasPrecipAmount = false
		}
		if h.WindGust > day.WindGust {
			day.WindGust = h.WindGust
		}
		windSum += h.WindAvg
		cloudSum += h.CloudCover

		if h.WindDir != "" {
			if _, seen := dirFirst[h.WindDir]; !seen {
				dirFirst[h.WindDir] = i
			}
			dirCount[h.WindDir]++
		}
		if h.Dewpoint != nil {
			dewSum += *h.Dewpoint
			dewN++
		}
		if h.FreezingLevel != nil && (freezing == nil || *h.FreezingLevel < *freezing) {
			freezing = Float(*h.FreezingLevel)
		}
		if h.CAPE != nil && (cape == nil || *h.CAPE > *cape) {
			cape = Float(*h.CAPE)
		}
	}

	n := float64(len(hours))
	day.WindAvg = windSum / n
	day.CloudCover = cloudSum / n
	day.WindDir = dominantOctant(dirCount, dirFirst)
	if dewN > 0 {
		day.Dewpoint = Float(dewSum / float64(dewN))
	}
	day.FreezingLevel = freezing
	day.CAPE = cape
	if !day.HasPrecipAmount {
		day.Precip = Range{}
	}

	return day.Normalize()
}

// dominantOctant picks the most frequent direction; ties go to the one seen first.
func dominantOctant(count map[Octant]int, first map[Octant]int) Octant {
	var best Octant
	bestN, bestFirst := 0, 0
	for o, n := range count {
		if n > bestN || (n == bestN && first[o] < bestFirst) {
			best, bestN, bestFirst = o, n, first[o]
		}
	}
	return best
}
