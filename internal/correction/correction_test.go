package correction_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/trailwx/internal/correction"
	"github.com/neexbeast/trailwx/internal/forecast"
)

const tolerance = 1e-9

func sample(tmin, tmax float64) *forecast.NormalizedForecast {
	return &forecast.NormalizedForecast{
		Provider:       "metno",
		Lat:            61.64,
		Lon:            8.31,
		Granularity:    forecast.Hourly,
		ModelElevation: forecast.Float(900),
		FetchedAt:      time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC),
		IsFallback:     true,
		Periods: []forecast.ForecastPeriod{{
			Time:          time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
			TempMin:       tmin,
			TempMax:       tmax,
			Dewpoint:      forecast.Float(2),
			FreezingLevel: forecast.Float(1100),
			CAPE:          forecast.Float(450),
		}},
	}
}

func TestCorrect_EndToEnd(t *testing.T) {
	cf := correction.Correct(sample(4, 10), forecast.Float(900), 1200)
	require.Len(t, cf.Periods, 1)

	p := cf.Periods[0]
	assert.InDelta(t, 8.05, p.TempMax, tolerance)
	assert.InDelta(t, 2.05, p.TempMin, tolerance)
	assert.Equal(t, 2.0, *p.Dewpoint)
	assert.Equal(t, 1100.0, *p.FreezingLevel)
	assert.True(t, cf.ElevationCorrected)
	assert.Equal(t, 1200.0, cf.TargetElevation)
	assert.True(t, cf.IsFallback)
	assert.Equal(t, "metno", cf.Provider)

	derived := correction.Derive(cf)
	require.NotNil(t, derived.Periods[0].CloudBase)
	assert.InDelta(t, 756.25, *derived.Periods[0].CloudBase, tolerance)
	assert.InDelta(t, 900+756.25, *derived.Periods[0].CloudBaseASL, tolerance)
	assert.Equal(t, forecast.StormModerate, derived.Periods[0].StormRisk)

	// Derive does not touch its input.
	assert.Nil(t, cf.Periods[0].CloudBase)
}

func TestCorrect_Identity(t *testing.T) {
	for _, elev := range []float64{0, 900, 2450.5, -30} {
		cf := correction.Correct(sample(-3.2, 7.9), forecast.Float(elev), elev)
		assert.Equal(t, -3.2, cf.Periods[0].TempMin)
		assert.Equal(t, 7.9, cf.Periods[0].TempMax)
	}
}

func TestCorrect_SignReversalSymmetry(t *testing.T) {
	pairs := [][2]float64{{900, 1200}, {0, 3000}, {2500, 400}, {-10, 10}}
	for _, pair := range pairs {
		a, b := pair[0], pair[1]
		up := correction.Correct(sample(1, 10), forecast.Float(a), b)
		down := correction.Correct(sample(1, 10), forecast.Float(b), a)
		assert.InDelta(t, 20.0, up.Periods[0].TempMax+down.Periods[0].TempMax, tolerance)
		assert.InDelta(t, 2.0, up.Periods[0].TempMin+down.Periods[0].TempMin, tolerance)
	}
}

func TestCorrect_MissingModelElevationSkips(t *testing.T) {
	f := sample(4, 10)
	f.ModelElevation = nil

	cf := correction.Correct(f, nil, 1200)
	assert.False(t, cf.ElevationCorrected)
	assert.Equal(t, 10.0, cf.Periods[0].TempMax)
	assert.Equal(t, 4.0, cf.Periods[0].TempMin)

	// Without a model elevation the cloud base is measured from the target.
	derived := correction.Derive(cf)
	assert.InDelta(t, 1200+1000, *derived.Periods[0].CloudBaseASL, tolerance)
}

func TestCorrect_DoesNotMutateInput(t *testing.T) {
	f := sample(4, 10)
	cf := correction.Correct(f, forecast.Float(900), 1200)
	*cf.Periods[0].Dewpoint = 99

	assert.Equal(t, 10.0, f.Periods[0].TempMax)
	assert.Equal(t, 2.0, *f.Periods[0].Dewpoint)
}

func TestCorrect_Nil(t *testing.T) {
	assert.Nil(t, correction.Correct(nil, forecast.Float(900), 1200))
	assert.Nil(t, correction.Derive(nil))
}

func TestCloudBase(t *testing.T) {
	assert.Nil(t, correction.CloudBase(10, nil))

	assert.Equal(t, correction.MinCloudBase, *correction.CloudBase(5, forecast.Float(5)))
	assert.Equal(t, correction.MinCloudBase, *correction.CloudBase(5, forecast.Float(7)))
	assert.Equal(t, 1250.0, *correction.CloudBase(12, forecast.Float(2)))

	prev := 0.0
	for spread := -5.0; spread <= 30; spread += 0.25 {
		cb := *correction.CloudBase(spread, forecast.Float(0))
		assert.GreaterOrEqual(t, cb, correction.MinCloudBase)
		assert.GreaterOrEqual(t, cb, prev)
		prev = cb
	}
}

func TestClassifyStormRisk(t *testing.T) {
	tests := []struct {
		cape *float64
		want forecast.StormRisk
	}{
		{nil, forecast.StormUnknown},
		{forecast.Float(0), forecast.StormWeak},
		{forecast.Float(299.9), forecast.StormWeak},
		{forecast.Float(300), forecast.StormModerate},
		{forecast.Float(999), forecast.StormModerate},
		{forecast.Float(1000), forecast.StormStrong},
		{forecast.Float(2500), forecast.StormStrong},
		{forecast.Float(2500.1), forecast.StormExtreme},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, correction.ClassifyStormRisk(tt.cape))
	}
}
