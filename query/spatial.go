package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
)

// EarthRadius is the mean earth radius in meters used by Haversine.
const EarthRadius = 6371000.0

// SpatialOperator is the relation a spatial query tests.
type SpatialOperator int

const (
	Equals SpatialOperator = iota
	Intersects
	Contains
	Within
	DWithin
)

var spatialNames = []string{"EQUALS", "INTERSECTS", "CONTAINS", "WITHIN", "DWITHIN"}

func (o SpatialOperator) String() string {
	if o >= 0 && int(o) < len(spatialNames) {
		return spatialNames[o]
	}
	return fmt.Sprintf("SpatialOperator(%d)", int(o))
}

// ParseSpatialOperator parses an operator name such as "DWITHIN".
func ParseSpatialOperator(s string) (SpatialOperator, error) {
	for i, n := range spatialNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return SpatialOperator(i), nil
		}
	}
	return 0, fmt.Errorf("unknown spatial operator %q: %w", s, descriptorstore.ErrInvalidQuery)
}

// Spatial relates a reference geography to either a native geography
// attribute or a pair of latitude and longitude attributes.
type Spatial struct {
	Attribute    string
	LatAttribute string
	LonAttribute string
	Operator     SpatialOperator
	Reference    types.Geo
	// Distance is the DWITHIN radius in meters.
	Distance    *float64
	UseSpheroid bool
	Limit       int
}

func (s *Spatial) limit() int { return s.Limit }

func (s *Spatial) Validate() error {
	single := s.Attribute != ""
	pair := s.LatAttribute != "" && s.LonAttribute != ""
	if single == pair || (!pair && (s.LatAttribute != "" || s.LonAttribute != "")) {
		return fmt.Errorf("spatial query requires either a single 'attribute' or both 'latAttribute' and 'lonAttribute': %w", descriptorstore.ErrInvalidQuery)
	}
	if s.Operator < Equals || s.Operator > DWithin {
		return fmt.Errorf("unknown spatial operator %d: %w", int(s.Operator), descriptorstore.ErrInvalidQuery)
	}
	if s.Reference.WKT == "" {
		return fmt.Errorf("spatial query without reference geography: %w", descriptorstore.ErrInvalidQuery)
	}
	return nil
}

// Bind checks the referenced attributes against a descriptor prototype.
func (s *Spatial) Bind(proto model.Descriptor) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Attribute != "" {
		a, err := ResolveAttribute(proto, s.Attribute)
		if err != nil {
			return err
		}
		if a.Type.Kind != types.KindGeography && a.Type.Kind != types.KindString && a.Type.Kind != types.KindText {
			return fmt.Errorf("spatial query on %s attribute %q: %w", a.Type, a.Name, descriptorstore.ErrInvalidQuery)
		}
		return nil
	}
	for _, name := range []string{s.LatAttribute, s.LonAttribute} {
		a, err := ResolveAttribute(proto, name)
		if err != nil {
			return err
		}
		if !a.Type.Kind.IsNumeric() {
			return fmt.Errorf("coordinate attribute %q is %s: %w", name, a.Type, descriptorstore.ErrInvalidQuery)
		}
	}
	return nil
}

// Point extracts the (lon, lat) coordinates the query refers to from decoded values.
func (s *Spatial) Point(values map[string]types.Value) (lon, lat float64, ok bool) {
	if s.Attribute != "" {
		v := values[s.Attribute]
		g, isGeo := v.Geo()
		if !isGeo {
			str, isStr := v.Str()
			if !isStr {
				return 0, 0, false
			}
			parsed, err := types.ParseGeo(str)
			if err != nil {
				return 0, 0, false
			}
			g = parsed
		}
		x, y, err := g.Point()
		return x, y, err == nil
	}
	lat, okLat := values[s.LatAttribute].Float64()
	lon, okLon := values[s.LonAttribute].Float64()
	return lon, lat, okLat && okLon
}

// Matches evaluates the query for point geographies. A point never contains
// or lies within another point; DWITHIN uses the haversine distance and is
// false without a radius.
func (s *Spatial) Matches(values map[string]types.Value) bool {
	lon, lat, ok := s.Point(values)
	if !ok {
		return false
	}
	return s.MatchesPoint(lon, lat)
}

// MatchesPoint evaluates the query for the point (lon, lat).
func (s *Spatial) MatchesPoint(lon, lat float64) bool {
	refLon, refLat, err := s.Reference.Point()
	if err != nil {
		return false
	}
	switch s.Operator {
	case Equals, Intersects:
		return lon == refLon && lat == refLat
	case DWithin:
		if s.Distance == nil {
			return false
		}
		return Haversine(refLat, refLon, lat, lon) <= *s.Distance
	}
	return false
}

// Haversine returns the great-circle distance in meters between two coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Pow(math.Sin(dLon/2), 2)
	return EarthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
