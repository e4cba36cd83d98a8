// Package locations defines the landmarks a day's game is played over and
// loads them from a YAML catalog keyed by date.
package locations

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultKey is the catalog entry used when a date has no set of its own.
const DefaultKey = "default"

var (
	ErrNoLocations = errors.New("no locations found in catalog")
	ErrInvalid     = errors.New("invalid location")
)

// Location is one landmark of the day. It is immutable once loaded.
type Location struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Icon        string  `json:"icon,omitempty"`
	Photo       string  `json:"photo,omitempty"`
	Description string  `json:"description,omitempty"`
}

// entry is the YAML shape of a location. Pointers tell "missing" from zero.
type entry struct {
	ID          *int      `yaml:"id"`
	Name        string    `yaml:"name"`
	Coordinates []float64 `yaml:"coordinates"`
	Icon        string    `yaml:"icon"`
	Photo       string    `yaml:"photo"`
	Description string    `yaml:"description"`
}

// Catalog holds every configured set, keyed by YYYY-MM-DD or DefaultKey.
type Catalog struct {
	sets map[string][]Location
}

// Set is the list chosen for one day.
type Set struct {
	Date         string     `json:"date"`
	Locations    []Location `json:"locations"`
	DateSpecific bool       `json:"dateSpecific"`
}

// LoadFile reads and parses a catalog from path.
func LoadFile(path string, logger zerolog.Logger) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations file: %w", err)
	}
	return Parse(raw, logger)
}

// Parse decodes a YAML catalog. Malformed entries are dropped with a warning;
// a set whose entries are all malformed is left out entirely.
func Parse(raw []byte, logger zerolog.Logger) (*Catalog, error) {
	// Keys are decoded as strings so dates are never turned into timestamps.
	var doc map[string][]entry
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse locations yaml: %w", err)
	}

	c := &Catalog{sets: make(map[string][]Location, len(doc))}
	for key, entries := range doc {
		locs := make([]Location, 0, len(entries))
		seen := make(map[int]struct{}, len(entries))
		for i, e := range entries {
			loc, err := e.toLocation(i)
			if err != nil {
				logger.Warn().Err(err).Str("set", key).Int("position", i).Msg("skipping location")
				continue
			}
			if _, dup := seen[loc.ID]; dup {
				logger.Warn().Str("set", key).Int("id", loc.ID).Msg("skipping location with duplicate id")
				continue
			}
			seen[loc.ID] = struct{}{}
			locs = append(locs, loc)
		}
		if len(locs) == 0 {
			logger.Warn().Str("set", key).Msg("location set has no usable entries")
			continue
		}
		c.sets[key] = locs
	}

	if len(c.sets) == 0 {
		return nil, ErrNoLocations
	}
	return c, nil
}

func (e entry) toLocation(position int) (Location, error) {
	if e.Name == "" {
		return Location{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(e.Coordinates) != 2 {
		return Location{}, fmt.Errorf("%w: %q needs coordinates [lat, lng]", ErrInvalid, e.Name)
	}
	lat, lng := e.Coordinates[0], e.Coordinates[1]
	if err := ValidateCoordinates(lat, lng); err != nil {
		return Location{}, fmt.Errorf("%q: %w", e.Name, err)
	}
	id := position
	if e.ID != nil {
		id = *e.ID
	}
	if id < 0 {
		return Location{}, fmt.Errorf("%w: %q has negative id %d", ErrInvalid, e.Name, id)
	}
	return Location{
		ID:          id,
		Name:        e.Name,
		Lat:         lat,
		Lng:         lng,
		Icon:        e.Icon,
		Photo:       e.Photo,
		Description: e.Description,
	}, nil
}

// ValidateCoordinates rejects values that are not a real point on the globe.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return fmt.Errorf("%w: coordinates must be finite", ErrInvalid)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalid, lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalid, lng)
	}
	return nil
}

// ForDate returns the set for date (YYYY-MM-DD), falling back to the default
// set. ok is false when neither exists.
func (c *Catalog) ForDate(date string) (Set, bool) {
	if locs, ok := c.sets[date]; ok {
		return Set{Date: date, Locations: clone(locs), DateSpecific: true}, true
	}
	if locs, ok := c.sets[DefaultKey]; ok {
		return Set{Date: date, Locations: clone(locs)}, true
	}
	return Set{Date: date}, false
}

// Dates lists the date-specific keys in ascending order.
func (c *Catalog) Dates() []string {
	out := make([]string, 0, len(c.sets))
	for k := range c.sets {
		if k != DefaultKey {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// IDs returns the set of location ids in locs.
func IDs(locs []Location) map[int]struct{} {
	ids := make(map[int]struct{}, len(locs))
	for _, l := range locs {
		ids[l.ID] = struct{}{}
	}
	return ids
}

// Fallback is the built-in set used when no catalog can be loaded.
func Fallback() []Location {
	return []Location{
		{ID: 0, Name: "Liberty Bell", Lat: 39.9496, Lng: -75.1503, Icon: "🔔"},
		{ID: 1, Name: "Independence Hall", Lat: 39.9489, Lng: -75.1500, Icon: "🏛️"},
		{ID: 2, Name: "Philadelphia Museum of Art", Lat: 39.9656, Lng: -75.1809, Icon: "🎨"},
		{ID: 3, Name: "Reading Terminal Market", Lat: 39.9531, Lng: -75.1584, Icon: "🍕"},
		{ID: 4, Name: "City Hall", Lat: 39.9523, Lng: -75.1636, Icon: "🏢"},
	}
}

func clone(locs []Location) []Location {
	out := make([]Location, len(locs))
	copy(out, locs)
	return out
}
