package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/neexbeast/trailwx/internal/engine"
	"github.com/neexbeast/trailwx/internal/forecast"
	"github.com/neexbeast/trailwx/internal/format"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	engine   ForecastEngine
	validate *validator.Validate
	log      *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(eng ForecastEngine, log *slog.Logger) *Handlers {
	return &Handlers{
		engine:   eng,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine failures to HTTP statuses.
func (h *Handlers) writeEngineError(w http.ResponseWriter, err error, attrs ...any) {
	switch {
	case errors.Is(err, forecast.ErrProviderUnavailable):
		h.log.Warn("forecast unavailable", append(attrs, "err", err)...)
		writeErrorMsg(w, http.StatusServiceUnavailable, forecast.ErrProviderUnavailable.Error())
	case errors.Is(err, engine.ErrRouteNotFound):
		writeErrorMsg(w, http.StatusNotFound, "route not found")
	case errors.Is(err, engine.ErrWaypointNotFound):
		writeErrorMsg(w, http.StatusNotFound, "waypoint not found")
	default:
		h.log.Error("forecast request failed", append(attrs, "err", err)...)
		writeErrorMsg(w, http.StatusInternalServerError, "internal server error")
	}
}

// forecastParams are the validated query parameters of GET /api/v1/forecast.
type forecastParams struct {
	Lat       *float64 `validate:"required,gte=-90,lte=90"`
	Lon       *float64 `validate:"required,gte=-180,lte=180"`
	Country   string   `validate:"omitempty,len=2,alpha"`
	Elevation *float64 `validate:"omitempty,gte=-500,lte=9000"`
	Kind      string   `validate:"oneof=short extended outlook"`
}

// forecastResponse is the JSON reply for a single-point forecast.
type forecastResponse struct {
	Segments           []format.Segment `json:"segments"`
	Truncated          int              `json:"truncated"`
	Fallback           bool             `json:"fallback"`
	Provider           string           `json:"provider"`
	FetchedAt          time.Time        `json:"fetched_at"`
	TargetElevation    float64          `json:"target_elevation_m"`
	ElevationCorrected bool             `json:"elevation_corrected"`
	Alerts             []forecast.Alert `json:"alerts,omitempty"`
}

func newForecastResponse(resp *engine.Response) forecastResponse {
	cf := resp.Forecast
	return forecastResponse{
		Segments:           resp.Result.Segments,
		Truncated:          resp.Result.Truncated,
		Fallback:           cf.IsFallback,
		Provider:           cf.Provider,
		FetchedAt:          cf.FetchedAt,
		TargetElevation:    cf.TargetElevation,
		ElevationCorrected: cf.ElevationCorrected,
		Alerts:             cf.Alerts,
	}
}

// routeResponse is the JSON reply for a grouped route outlook.
type routeResponse struct {
	RouteID   string           `json:"route_id"`
	Waypoints int              `json:"waypoints"`
	Omitted   []string         `json:"omitted,omitempty"`
	Segments  []format.Segment `json:"segments"`
	Truncated int              `json:"truncated"`
}

// parseFloatParam returns nil for an absent parameter.
func parseFloatParam(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	return &v, nil
}

func parseKind(r *http.Request) string {
	kind := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kind == "" {
		return string(format.KindShort)
	}
	return kind
}

// validationMessage turns validator errors into a short client-facing message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = strings.ToLower(fe.Field())
	}
	return "invalid " + strings.Join(fields, ", ")
}

// GetForecast handles GET /api/v1/forecast?lat=&lon=&country=&elevation=&kind=.
// Without elevation the terrain height at the coordinate is used.
func (h *Handlers) GetForecast(w http.ResponseWriter, r *http.Request) {
	var p forecastParams
	numeric := []struct {
		name string
		dst  **float64
	}{
		{"lat", &p.Lat},
		{"lon", &p.Lon},
		{"elevation", &p.Elevation},
	}
	for _, n := range numeric {
		v, err := parseFloatParam(r, n.name)
		if err != nil {
			writeErrorMsg(w, http.StatusBadRequest, err.Error())
			return
		}
		*n.dst = v
	}
	p.Country = strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country")))
	p.Kind = parseKind(r)

	if err := h.validate.Struct(p); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	resp, err := h.engine.Forecast(r.Context(), engine.Query{
		Lat:       *p.Lat,
		Lon:       *p.Lon,
		Country:   p.Country,
		Elevation: p.Elevation,
		Kind:      format.QueryKind(p.Kind),
	})
	if err != nil {
		h.writeEngineError(w, err, "lat", *p.Lat, "lon", *p.Lon, "kind", p.Kind)
		return
	}

	writeJSON(w, http.StatusOK, newForecastResponse(resp))
}

// GetWaypointForecast handles GET /api/v1/routes/{routeID}/waypoints/{position}/forecast.
func (h *Handlers) GetWaypointForecast(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeID")
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil || position < 0 {
		writeErrorMsg(w, http.StatusBadRequest, "position must be a non-negative integer")
		return
	}

	kind, err := format.ParseQueryKind(parseKind(r))
	if err != nil || kind == format.KindGrouped {
		writeErrorMsg(w, http.StatusBadRequest, "invalid kind")
		return
	}

	resp, err := h.engine.WaypointForecast(r.Context(), routeID, position, kind)
	if err != nil {
		h.writeEngineError(w, err, "route", routeID, "position", position)
		return
	}

	writeJSON(w, http.StatusOK, newForecastResponse(resp))
}

// GetRouteOutlook handles GET /api/v1/routes/{routeID}/outlook.
// Waypoints whose forecast failed are listed in "omitted".
func (h *Handlers) GetRouteOutlook(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeID")

	resp, err := h.engine.RouteOutlook(r.Context(), routeID)
	if err != nil {
		h.writeEngineError(w, err, "route", routeID)
		return
	}

	writeJSON(w, http.StatusOK, routeResponse{
		RouteID:   resp.RouteID,
		Waypoints: resp.Waypoints,
		Omitted:   resp.Omitted,
		Segments:  resp.Result.Segments,
		Truncated: resp.Result.Truncated,
	})
}

// GetLegend handles GET /api/v1/legend.
func (h *Handlers) GetLegend(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"legend": h.engine.Legend()})
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis connectivity.
// Returns 200 if both are reachable, 503 otherwise.
func HealthHandlerFunc(db dbPinger, redis redisPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		redisStatus := "ok"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if err := redis.Ping(ctx); err != nil {
			log.Error("health check: redis ping failed", "err", err)
			redisStatus = "error"
			status = http.StatusServiceUnavailable
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}
