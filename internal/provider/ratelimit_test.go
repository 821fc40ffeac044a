package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/trailwx/internal/forecast"
	"github.com/neexbeast/trailwx/internal/provider"
)

type stubAdapter struct {
	calls int
}

func (s *stubAdapter) ID() string                        { return "stub" }
func (s *stubAdapter) Capabilities() forecast.Capability { return forecast.NativeWind }
func (s *stubAdapter) Fetch(_ context.Context, lat, lon float64, _ int) (*forecast.NormalizedForecast, error) {
	s.calls++
	return &forecast.NormalizedForecast{Provider: "stub", Lat: lat, Lon: lon}, nil
}

func TestRateLimited_PassesThrough(t *testing.T) {
	inner := &stubAdapter{}
	a := provider.RateLimited(inner, 100, 2)

	assert.Equal(t, "stub", a.ID())
	assert.Equal(t, forecast.NativeWind, a.Capabilities())

	f, err := a.Fetch(context.Background(), 1, 2, 12)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.Lat)
	assert.Equal(t, 1, inner.calls)
}

func TestRateLimited_ZeroRateIsUnwrapped(t *testing.T) {
	inner := &stubAdapter{}
	assert.Same(t, inner, provider.RateLimited(inner, 0, 1))
}

func TestRateLimited_ContextExpiresWhileWaiting(t *testing.T) {
	inner := &stubAdapter{}
	a := provider.RateLimited(inner, 0.1, 1)

	_, err := a.Fetch(context.Background(), 1, 2, 12)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.Fetch(ctx, 1, 2, 12)
	require.Error(t, err)

	var te *forecast.ProviderTransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, 1, inner.calls)
}
