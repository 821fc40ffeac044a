package format

import (
	"fmt"
	"strings"

	"github.com/neexbeast/trailwx/internal/forecast"
)

// QueryKind selects the horizon a reply covers and how many periods share a line.
type QueryKind string

const (
	// KindShort is the short-range hourly forecast.
	KindShort QueryKind = "short"
	// KindExtended is the extended hourly forecast.
	KindExtended QueryKind = "extended"
	// KindOutlook is the multi-day outlook.
	KindOutlook QueryKind = "outlook"
	// KindGrouped is the grouped multi-waypoint outlook.
	KindGrouped QueryKind = "grouped"
)

type kindSpec struct {
	horizon forecast.Horizon
	// step is the number of source periods aggregated into one line.
	step int
}

var kindSpecs = map[QueryKind]kindSpec{
	KindShort:    {horizon: forecast.HourlyHorizon(12), step: 2},
	KindExtended: {horizon: forecast.HourlyHorizon(48), step: 6},
	KindOutlook:  {horizon: forecast.DailyHorizon(5), step: 1},
	KindGrouped:  {horizon: forecast.DailyHorizon(3), step: 1},
}

// ParseQueryKind parses a kind name, case-insensitively.
func ParseQueryKind(s string) (QueryKind, error) {
	k := QueryKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kindSpecs[k]; !ok {
		return "", fmt.Errorf("unknown query kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k QueryKind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// Horizon is the forecast horizon the kind needs from the router.
func (k QueryKind) Horizon() forecast.Horizon {
	return kindSpecs[k].horizon
}
