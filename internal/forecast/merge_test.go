package forecast_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/trailwx/internal/forecast"
)

var t0 = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func TestMergeSupplement_FillsOnlyAbsentFields(t *testing.T) {
	primary := &forecast.NormalizedForecast{
		Provider: "nws",
		Periods: []forecast.ForecastPeriod{
			{Time: t0, TempMin: 5, TempMax: 5, Dewpoint: forecast.Float(-1)},
		},
	}
	supplement := &forecast.NormalizedForecast{
		Provider: "openmeteo",
		Periods: []forecast.ForecastPeriod{
			{
				Time:            t0.Add(30 * time.Minute),
				Dewpoint:        forecast.Float(4),
				CAPE:            forecast.Float(1200),
				FreezingLevel:   forecast.Float(1800),
				Precip:          forecast.Range{Min: 2, Max: 3},
				HasPrecipAmount: true,
			},
		},
	}

	merged := forecast.MergeSupplement(primary, supplement, nil, 0, 90*time.Minute)
	require.Len(t, merged.Periods, 1)
	p := merged.Periods[0]

	assert.Equal(t, -1.0, *p.Dewpoint, "primary value must win")
	assert.Equal(t, 1200.0, *p.CAPE)
	assert.Equal(t, 1800.0, *p.FreezingLevel)
	assert.Equal(t, forecast.Range{Min: 2, Max: 3}, p.Precip)
	assert.True(t, p.HasPrecipAmount)
	assert.Equal(t, []string{forecast.MetricCAPE, forecast.MetricFreezingLevel, forecast.MetricPrecipAmount}, merged.Supplemented)

	assert.Nil(t, primary.Periods[0].CAPE, "input must not be mutated")
}

func TestMergeSupplement_KeepsNativePrecipAmount(t *testing.T) {
	primary := &forecast.NormalizedForecast{
		Periods: []forecast.ForecastPeriod{
			{Time: t0, Precip: forecast.Range{Min: 0, Max: 0.4}, HasPrecipAmount: true},
		},
	}
	supplement := &forecast.NormalizedForecast{
		Periods: []forecast.ForecastPeriod{
			{Time: t0, Precip: forecast.Range{Min: 9, Max: 9}, HasPrecipAmount: true},
		},
	}

	merged := forecast.MergeSupplement(primary, supplement, nil, 0, time.Hour)
	assert.Equal(t, forecast.Range{Min: 0, Max: 0.4}, merged.Periods[0].Precip)
	assert.Empty(t, merged.Supplemented)
}

func TestMergeSupplement_NativePrecipCapabilityNotFilled(t *testing.T) {
	// A provider with native amounts reports a dry hour without an amount.
	primary := &forecast.NormalizedForecast{
		Periods: []forecast.ForecastPeriod{{Time: t0}},
	}
	supplement := &forecast.NormalizedForecast{
		Periods: []forecast.ForecastPeriod{
			{Time: t0, Precip: forecast.Range{Min: 9, Max: 9}, HasPrecipAmount: true, CAPE: forecast.Float(10)},
		},
	}

	merged := forecast.MergeSupplement(primary, supplement, nil, forecast.NativePrecipAmount|forecast.NativeWind, time.Hour)
	p := merged.Periods[0]
	assert.False(t, p.HasPrecipAmount)
	assert.Equal(t, forecast.Range{}, p.Precip)
	require.NotNil(t, p.CAPE)
	assert.Equal(t, []string{forecast.MetricCAPE}, merged.Supplemented)
}

func TestNeedsSupplement(t *testing.T) {
	full := forecast.ForecastPeriod{
		Time:          t0,
		Dewpoint:      forecast.Float(1),
		CAPE:          forecast.Float(100),
		FreezingLevel: forecast.Float(2000),
	}
	f := &forecast.NormalizedForecast{Periods: []forecast.ForecastPeriod{full}}

	assert.False(t, forecast.NeedsSupplement(f, forecast.NativePrecipAmount))
	assert.True(t, forecast.NeedsSupplement(f, forecast.NativeWind), "amount missing and not native")

	f.Periods[0].HasPrecipAmount = true
	assert.False(t, forecast.NeedsSupplement(f, forecast.NativeWind))

	f.Periods = append(f.Periods, forecast.ForecastPeriod{Time: t0.Add(time.Hour), HasPrecipAmount: true})
	assert.True(t, forecast.NeedsSupplement(f, forecast.AllCapabilities))

	assert.False(t, forecast.NeedsSupplement(nil, 0))
}

func TestMergeSupplement_OutsideToleranceIgnored(t *testing.T) {
	primary := &forecast.NormalizedForecast{
		Periods: []forecast.ForecastPeriod{{Time: t0}},
	}
	supplement := &forecast.NormalizedForecast{
		Periods: []forecast.ForecastPeriod{{Time: t0.Add(3 * time.Hour), CAPE: forecast.Float(50)}},
	}

	merged := forecast.MergeSupplement(primary, supplement, nil, 0, 90*time.Minute)
	assert.Nil(t, merged.Periods[0].CAPE)
}

func TestMergeSupplement_PicksNearestPeriod(t *testing.T) {
	primary := &forecast.NormalizedForecast{
		Periods: []forecast.ForecastPeriod{{Time: t0}},
	}
	supplement := &forecast.NormalizedForecast{
		Periods: []forecast.ForecastPeriod{
			{Time: t0.Add(time.Hour), CAPE: forecast.Float(2)},
			{Time: t0.Add(-20 * time.Minute), CAPE: forecast.Float(1)},
			{Time: t0.Add(-2 * time.Hour), CAPE: forecast.Float(3)},
		},
	}

	merged := forecast.MergeSupplement(primary, supplement, nil, 0, 90*time.Minute)
	require.NotNil(t, merged.Periods[0].CAPE)
	assert.Equal(t, 1.0, *merged.Periods[0].CAPE)
}

func TestMergeSupplement_AttachesRecentPrecip(t *testing.T) {
	primary := &forecast.NormalizedForecast{Periods: []forecast.ForecastPeriod{{Time: t0}}}
	recent := &forecast.RecentPrecipitation{Rain24h: 12, Snow72h: 30}

	merged := forecast.MergeSupplement(primary, nil, recent, 0, time.Hour)
	require.NotNil(t, merged.RecentPrecip)
	assert.Equal(t, 12.0, merged.RecentPrecip.Rain24h)
	assert.Equal(t, []string{forecast.MetricRecentPrecip}, merged.Supplemented)
}

func TestMergeSupplement_NilPrimary(t *testing.T) {
	assert.Nil(t, forecast.MergeSupplement(nil, nil, nil, 0, time.Hour))
}
