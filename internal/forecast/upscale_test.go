package forecast_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/trailwx/internal/forecast"
)

func hour(t time.Time, tmin, tmax float64) forecast.ForecastPeriod {
	return forecast.ForecastPeriod{
		Time:            t,
		TempMin:         tmin,
		TempMax:         tmax,
		HasPrecipAmount: true,
	}
}

func TestUpscale_AggregatesOneDay(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	a := hour(start, 4, 5)
	a.PrecipProbability = 30
	a.Precip = forecast.Range{Min: 0.5, Max: 1}
	a.WindAvg, a.WindGust, a.WindDir = 10, 20, forecast.West
	a.CloudCover = 40
	a.Dewpoint = forecast.Float(1)
	a.FreezingLevel = forecast.Float(2600)
	a.CAPE = forecast.Float(100)

	b := hour(start.Add(time.Hour), 7, 9)
	b.PrecipProbability = 70
	b.Precip = forecast.Range{Min: 1, Max: 2}
	b.Snow = forecast.Range{Min: 0, Max: 1}
	b.WindAvg, b.WindGust, b.WindDir = 20, 45, forecast.West
	b.CloudCover = 80
	b.Dewpoint = forecast.Float(3)
	b.FreezingLevel = forecast.Float(2400)
	b.CAPE = forecast.Float(900)

	c := hour(start.Add(2*time.Hour), 6, 8)
	c.WindAvg, c.WindDir = 30, forecast.North

	days := forecast.Upscale([]forecast.ForecastPeriod{a, b, c}, time.UTC)
	require.Len(t, days, 1)

	d := days[0]
	assert.Equal(t, start, d.Time)
	assert.Equal(t, 4.0, d.TempMin)
	assert.Equal(t, 9.0, d.TempMax)
	assert.Equal(t, 70.0, d.PrecipProbability)
	assert.Equal(t, forecast.Range{Min: 1.5, Max: 3}, d.Precip)
	assert.Equal(t, forecast.Range{Min: 0, Max: 1}, d.Snow)
	assert.Equal(t, 45.0, d.WindGust)
	assert.InDelta(t, 20.0, d.WindAvg, 1e-9)
	assert.InDelta(t, 40.0, d.CloudCover, 1e-9)
	assert.Equal(t, forecast.West, d.WindDir)
	require.NotNil(t, d.Dewpoint)
	assert.InDelta(t, 2.0, *d.Dewpoint, 1e-9)
	require.NotNil(t, d.FreezingLevel)
	assert.Equal(t, 2400.0, *d.FreezingLevel)
	require.NotNil(t, d.CAPE)
	assert.Equal(t, 900.0, *d.CAPE)
	assert.True(t, d.HasPrecipAmount)
}

func TestUpscale_SplitsOnLocalMidnight(t *testing.T) {
	oslo, err := time.LoadLocation("Europe/Oslo")
	require.NoError(t, err)

	// 21:00 and 22:00 UTC in July fall on either side of midnight in Oslo (UTC+2).
	first := time.Date(2026, 7, 1, 21, 0, 0, 0, time.UTC)
	hours := []forecast.ForecastPeriod{
		hour(first, 10, 10),
		hour(first.Add(time.Hour), 9, 9),
		hour(first.Add(2*time.Hour), 8, 8),
	}

	days := forecast.Upscale(hours, oslo)
	require.Len(t, days, 2)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, oslo).UTC(), days[0].Time)
	assert.Equal(t, time.Date(2026, 7, 2, 0, 0, 0, 0, oslo).UTC(), days[1].Time)
	assert.Equal(t, 10.0, days[0].TempMax)
	assert.Equal(t, 8.0, days[1].TempMin)
}

func TestUpscale_MissingPrecipAmountZeroesDay(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	a := hour(start, 1, 2)
	a.Precip = forecast.Range{Min: 1, Max: 1}
	b := hour(start.Add(time.Hour), 1, 2)
	b.HasPrecipAmount = false

	days := forecast.Upscale([]forecast.ForecastPeriod{a, b}, nil)
	require.Len(t, days, 1)
	assert.False(t, days[0].HasPrecipAmount)
	assert.Equal(t, forecast.Range{}, days[0].Precip)
}

func TestUpscale_AbsentOptionalsStayAbsent(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	days := forecast.Upscale([]forecast.ForecastPeriod{hour(start, 1, 2)}, time.UTC)
	require.Len(t, days, 1)
	assert.Nil(t, days[0].Dewpoint)
	assert.Nil(t, days[0].FreezingLevel)
	assert.Nil(t, days[0].CAPE)
	assert.Equal(t, forecast.Octant(""), days[0].WindDir)
}

func TestUpscale_DirectionTieGoesToFirstSeen(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	a := hour(start, 1, 2)
	a.WindDir = forecast.SouthWest
	b := hour(start.Add(time.Hour), 1, 2)
	b.WindDir = forecast.East

	days := forecast.Upscale([]forecast.ForecastPeriod{a, b}, time.UTC)
	require.Len(t, days, 1)
	assert.Equal(t, forecast.SouthWest, days[0].WindDir)
}

func TestUpscale_Empty(t *testing.T) {
	assert.Empty(t, forecast.Upscale(nil, time.UTC))
}
