package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Waypoint is a stored point along a route.
type Waypoint struct {
	RouteID   string
	Position  int
	Name      string
	Lat       float64
	Lon       float64
	Elevation *float64
	Country   string
}

// Repository reads route waypoints. Route editing belongs to another service.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

const waypointColumns = `route_id, position, name, lat, lon, elevation_m, COALESCE(country, '')`

// WaypointsForRoute returns the route's waypoints ordered by position.
// An unknown route yields an empty slice.
func (r *Repository) WaypointsForRoute(ctx context.Context, routeID string) ([]Waypoint, error) {
	const q = `
		SELECT ` + waypointColumns + `
		FROM waypoints
		WHERE route_id = $1
		ORDER BY position
	`

	rows, err := r.q.Query(ctx, q, routeID)
	if err != nil {
		return nil, fmt.Errorf("querying waypoints for route %s: %w", routeID, err)
	}
	defer rows.Close()

	var results []Waypoint
	for rows.Next() {
		var w Waypoint
		if err := scanWaypoint(rows, &w); err != nil {
			return nil, fmt.Errorf("scanning waypoint row: %w", err)
		}
		results = append(results, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating waypoint rows: %w", err)
	}

	return results, nil
}

// GetWaypoint returns one waypoint of a route.
// Returns nil, nil when it does not exist.
func (r *Repository) GetWaypoint(ctx context.Context, routeID string, position int) (*Waypoint, error) {
	const q = `
		SELECT ` + waypointColumns + `
		FROM waypoints
		WHERE route_id = $1 AND position = $2
	`

	var w Waypoint
	if err := scanWaypoint(r.q.QueryRow(ctx, q, routeID, position), &w); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying waypoint %s/%d: %w", routeID, position, err)
	}
	return &w, nil
}

func scanWaypoint(row pgx.Row, w *Waypoint) error {
	if err := row.Scan(&w.RouteID, &w.Position, &w.Name, &w.Lat, &w.Lon, &w.Elevation, &w.Country); err != nil {
		return err
	}
	w.Country = strings.ToUpper(strings.TrimSpace(w.Country))
	return nil
}
