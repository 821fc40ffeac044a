package forecast

import "strings"

// Capability is the set of metrics an adapter supplies natively.
type Capability uint8

const (
	NativeTemperature Capability = 1 << iota
	NativePrecipAmount
	NativeWind
	NativeElevation
	NativeAlerts
)

// AllCapabilities is every capability an adapter can declare.
const AllCapabilities = NativeTemperature | NativePrecipAmount | NativeWind | NativeElevation | NativeAlerts

// Has reports whether c includes every bit of o.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

func (c Capability) String() string {
	names := []struct {
		bit  Capability
		name string
	}{
		{NativeTemperature, "temperature"},
		{NativePrecipAmount, "precip-amount"},
		{NativeWind, "wind"},
		{NativeElevation, "elevation"},
		{NativeAlerts, "alerts"},
	}
	var parts []string
	for _, n := range names {
		if c.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}
