package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/trailwx/internal/forecast"
	"github.com/neexbeast/trailwx/internal/provider"
)

func nwsServer(t *testing.T, alertsStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/points/39.7392,-104.9903", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"properties": map[string]any{
				"forecastHourly": srv.URL + "/gridpoints/BOU/62,60/forecast/hourly",
			},
		})
	})

	mux.HandleFunc("/gridpoints/BOU/62,60/forecast/hourly", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "si", r.URL.Query().Get("units"))
		start := currentHour().Add(-time.Hour)
		var periods []map[string]any
		for i := 0; i < 4; i++ {
			periods = append(periods, map[string]any{
				"startTime":                  start.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
				"temperature":                5 + i,
				"temperatureUnit":            "C",
				"probabilityOfPrecipitation": map[string]any{"unitCode": "wmoUnit:percent", "value": 60},
				"dewpoint":                   map[string]any{"unitCode": "wmoUnit:degC", "value": -2.5},
				"windSpeed":                  "10 to 30 km/h",
				"windGust":                   "45 km/h",
				"windDirection":              "NNW",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"properties": map[string]any{
				"elevation": map[string]any{"unitCode": "wmoUnit:m", "value": 1655.9},
				"periods":   periods,
			},
		})
	})

	mux.HandleFunc("/alerts/active", func(w http.ResponseWriter, r *http.Request) {
		if alertsStatus != http.StatusOK {
			http.Error(w, "nope", alertsStatus)
			return
		}
		assert.Equal(t, "39.7392,-104.9903", r.URL.Query().Get("point"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"features": []map[string]any{{
				"properties": map[string]any{
					"event":    "Winter Storm Warning",
					"severity": "Severe",
					"headline": "Heavy snow above 9000 ft",
					"onset":    "2026-01-10T18:00:00-07:00",
					"ends":     "2026-01-11T18:00:00-07:00",
				},
			}},
		})
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNWS_Fetch(t *testing.T) {
	srv := nwsServer(t, http.StatusOK)

	nws := provider.NewNWSWithURL(srv.URL, "test-agent", discardLogger())
	f, err := nws.Fetch(context.Background(), 39.7392, -104.9903, 12)
	require.NoError(t, err)

	assert.Equal(t, provider.IDNWS, f.Provider)
	require.NotNil(t, f.ModelElevation)
	assert.InDelta(t, 1655.9, *f.ModelElevation, 1e-9)

	require.Len(t, f.Periods, 3)
	p := f.Periods[0]
	assert.Equal(t, currentHour(), p.Time)
	assert.Equal(t, 6.0, p.TempMax)
	assert.Equal(t, 60.0, p.PrecipProbability)
	assert.Equal(t, 20.0, p.WindAvg)
	assert.Equal(t, 45.0, p.WindGust)
	assert.Equal(t, forecast.North, p.WindDir)
	assert.False(t, p.HasPrecipAmount, "NWS reports no precipitation amounts")
	require.NotNil(t, p.Dewpoint)
	assert.Equal(t, -2.5, *p.Dewpoint)

	require.Len(t, f.Alerts, 1)
	assert.Equal(t, "Winter Storm Warning", f.Alerts[0].Kind)
	assert.Equal(t, "Heavy snow above 9000 ft", f.Alerts[0].Description)
	assert.Equal(t, time.Date(2026, 1, 11, 1, 0, 0, 0, time.UTC), f.Alerts[0].ValidFrom)
}

func TestNWS_Fetch_AlertFailureIgnored(t *testing.T) {
	srv := nwsServer(t, http.StatusServiceUnavailable)

	nws := provider.NewNWSWithURL(srv.URL, "", discardLogger())
	f, err := nws.Fetch(context.Background(), 39.7392, -104.9903, 12)
	require.NoError(t, err)
	assert.Empty(t, f.Alerts)
	assert.NotEmpty(t, f.Periods)
}

func TestNWS_Fetch_OutsideCoverage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"title":"Data Unavailable For Requested Point"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	nws := provider.NewNWSWithURL(srv.URL, "", discardLogger())
	_, err := nws.Fetch(context.Background(), 10, 10, 12)

	var te *forecast.ProviderTransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, provider.IDNWS, te.Provider)
}

func TestNWS_Capabilities(t *testing.T) {
	nws := provider.NewNWSWithURL("http://unused", "", discardLogger())
	assert.False(t, nws.Capabilities().Has(forecast.NativePrecipAmount))
	assert.True(t, nws.Capabilities().Has(forecast.NativeAlerts))
}
