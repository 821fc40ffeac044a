package timezone

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/ringsaturn/tzf"
)

// Finder resolves the IANA time zone at a coordinate.
// The tzf data set is large, so one Finder is shared by the whole process.
type Finder struct {
	finder tzf.F
	log    *slog.Logger

	mu    sync.RWMutex
	zones map[string]*time.Location
}

var (
	instance *Finder
	once     sync.Once
	initErr  error
)

// NewFinder creates or returns the process-wide Finder.
func NewFinder(log *slog.Logger) (*Finder, error) {
	once.Do(func() {
		f, err := tzf.NewDefaultFinder()
		if err != nil {
			initErr = fmt.Errorf("initializing timezone finder: %w", err)
			return
		}
		if log == nil {
			log = slog.Default()
		}
		instance = &Finder{
			finder: f,
			log:    log.With("component", "timezone"),
			zones:  make(map[string]*time.Location),
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return instance, nil
}

// Name returns the IANA zone name, e.g. "Europe/Oslo".
func (f *Finder) Name(lat, lon float64) (string, error) {
	name := f.finder.GetTimezoneName(lon, lat)
	if name == "" {
		return "", fmt.Errorf("no timezone for lat=%f, lon=%f", lat, lon)
	}
	return name, nil
}

// Location returns the zone at the coordinate, or UTC when it cannot be resolved.
// Loaded zones are memoized by name.
func (f *Finder) Location(lat, lon float64) *time.Location {
	name, err := f.Name(lat, lon)
	if err != nil {
		f.log.Debug("timezone lookup failed, using UTC", "lat", lat, "lon", lon)
		return time.UTC
	}

	f.mu.RLock()
	loc, ok := f.zones[name]
	f.mu.RUnlock()
	if ok {
		return loc
	}

	loc, err = time.LoadLocation(name)
	if err != nil {
		f.log.Warn("loading timezone failed, using UTC", "zone", name, "err", err)
		return time.UTC
	}

	f.mu.Lock()
	f.zones[name] = loc
	f.mu.Unlock()
	return loc
}
