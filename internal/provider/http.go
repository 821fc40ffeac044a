package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const httpTimeout = 15 * time.Second

// DefaultUserAgent identifies us to met.no and NWS, both of which reject anonymous clients.
const DefaultUserAgent = "trailwx/1.0 github.com/neexbeast/trailwx"

// newHTTPClient returns an http.Client with a hard upper timeout.
// The router applies the tighter per-call deadline through the context.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.Status)
}

// getter performs JSON GETs against one upstream behind a circuit breaker.
type getter struct {
	name      string
	client    *http.Client
	userAgent string
	accept    string
	breaker   *gobreaker.CircuitBreaker
}

func newGetter(name, userAgent, accept string, log *slog.Logger) *getter {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if log == nil {
		log = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	return &getter{
		name:      name,
		client:    newHTTPClient(),
		userAgent: userAgent,
		accept:    accept,
		breaker:   cb,
	}
}

// getJSON performs a GET request and decodes the JSON response into dst.
// An open breaker fails fast without touching the network.
func (g *getter) getJSON(ctx context.Context, rawURL string, dst any) error {
	_, err := g.breaker.Execute(func() (any, error) {
		return nil, g.doGet(ctx, rawURL, dst)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s circuit breaker: %w", g.name, err)
	}
	return err
}

func (g *getter) doGet(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	if g.accept != "" {
		req.Header.Set("Accept", g.accept)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return &StatusError{URL: rawURL, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}

	return nil
}

// hourWindow returns the start of the current hour; periods before it are already over.
func hourWindow(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour)
}
