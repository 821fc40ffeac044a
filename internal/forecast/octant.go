package forecast

import (
	"math"
	"strings"
)

// Octant is a compass direction rounded to one of eight 45° sectors.
// The zero value means the direction is unknown.
type Octant string

const (
	North     Octant = "N"
	NorthEast Octant = "NE"
	East      Octant = "E"
	SouthEast Octant = "SE"
	South     Octant = "S"
	SouthWest Octant = "SW"
	West      Octant = "W"
	NorthWest Octant = "NW"
)

var octants = [8]Octant{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

// OctantFromDegrees maps a meteorological wind direction (degrees the wind blows from)
// onto its octant. Each octant covers ±22.5° around its centre.
func OctantFromDegrees(deg float64) Octant {
	if math.IsNaN(deg) {
		return ""
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	idx := int(deg/45+0.5) % 8
	return octants[idx]
}

// ParseOctant reads a compass abbreviation such as "NNW" or "sw" and folds
// 16-point directions onto the nearest octant (clockwise on ties).
func ParseOctant(s string) Octant {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N":
		return North
	case "NNE", "NE":
		return NorthEast
	case "ENE", "E":
		return East
	case "ESE", "SE":
		return SouthEast
	case "SSE", "S":
		return South
	case "SSW", "SW":
		return SouthWest
	case "WSW", "W":
		return West
	case "WNW", "NW":
		return NorthWest
	case "NNW":
		return North
	}
	return ""
}
