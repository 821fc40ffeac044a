package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/trailwx/internal/forecast"
)

const defaultTTL = 30 * time.Minute

// Key identifies one cached forecast: provider, coordinate rounded to two decimals
// (about 1.1 km) and the metric set requested.
type Key struct {
	Provider  string
	Lat       float64
	Lon       float64
	MetricSet string
}

// NewKey builds a Key with the coordinate rounded.
func NewKey(provider string, lat, lon float64, metricSet string) Key {
	return Key{Provider: provider, Lat: RoundCoord(lat), Lon: RoundCoord(lon), MetricSet: metricSet}
}

// String returns the Redis key, e.g. "forecast:metno:61.64:8.31:h12-supp".
func (k Key) String() string {
	return "forecast:" + k.Provider + ":" + formatCoord(k.Lat) + ":" + formatCoord(k.Lon) + ":" + k.MetricSet
}

// RoundCoord rounds a coordinate to two decimals.
func RoundCoord(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // drop the sign of -0
	}
	return r
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(RoundCoord(v), 'f', 2, 64)
}

// Cache wraps a Redis client and stores normalized forecasts as immutable JSON blobs.
// Concurrent writers to the same key simply overwrite each other.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewCache constructs a Cache. A non-positive ttl falls back to 30 minutes.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl, now: time.Now}
}

// Get retrieves a forecast from cache.
// Returns nil, nil on a miss (not an error), including entries older than the TTL
// that Redis has not evicted yet.
func (c *Cache) Get(ctx context.Context, k Key) (*forecast.NormalizedForecast, error) {
	val, err := c.client.Get(ctx, k.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get %s: %w", k, err)
	}

	var f forecast.NormalizedForecast
	if err := json.Unmarshal(val, &f); err != nil {
		return nil, fmt.Errorf("unmarshaling cached forecast %s: %w", k, err)
	}

	if !f.FetchedAt.IsZero() && c.now().Sub(f.FetchedAt) > c.ttl {
		return nil, nil
	}

	return &f, nil
}

// Set stores a forecast with the configured TTL.
func (c *Cache) Set(ctx context.Context, k Key, f *forecast.NormalizedForecast) error {
	if f == nil {
		return nil
	}

	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling forecast %s: %w", k, err)
	}

	if err := c.client.Set(ctx, k.String(), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", k, err)
	}

	return nil
}

