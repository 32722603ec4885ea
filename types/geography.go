package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/creastat/descriptorstore"
)

// DefaultSRID is WGS 84, the reference system of GPS coordinates.
const DefaultSRID = 4326

// Geo is a geography in well-known-text form together with its spatial reference id.
type Geo struct {
	WKT  string
	SRID int
}

// NewPoint returns a WKT point geography. WKT orders coordinates as (lon lat).
func NewPoint(lon, lat float64) Geo {
	return Geo{
		WKT:  "POINT(" + strconv.FormatFloat(lon, 'f', -1, 64) + " " + strconv.FormatFloat(lat, 'f', -1, 64) + ")",
		SRID: DefaultSRID,
	}
}

// ParseGeo parses an optionally SRID-prefixed WKT string ("SRID=4326;POINT(8.5 47.3)").
func ParseGeo(s string) (Geo, error) {
	g := Geo{WKT: strings.TrimSpace(s), SRID: DefaultSRID}
	if prefix, rest, ok := strings.Cut(g.WKT, ";"); ok && strings.HasPrefix(strings.ToUpper(prefix), "SRID=") {
		srid, err := strconv.Atoi(prefix[len("SRID="):])
		if err != nil {
			return Geo{}, fmt.Errorf("invalid srid in %q: %w", s, descriptorstore.ErrTypeMismatch)
		}
		g.SRID = srid
		g.WKT = strings.TrimSpace(rest)
	}
	if g.WKT == "" {
		return Geo{}, fmt.Errorf("empty geography: %w", descriptorstore.ErrTypeMismatch)
	}
	return g, nil
}

// Point returns the coordinates of a POINT geography.
func (g Geo) Point() (lon, lat float64, err error) {
	s := strings.TrimSpace(g.WKT)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "POINT") {
		return 0, 0, fmt.Errorf("not a point: %q: %w", g.WKT, descriptorstore.ErrUnsupported)
	}
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return 0, 0, fmt.Errorf("malformed point %q: %w", g.WKT, descriptorstore.ErrTypeMismatch)
	}
	coords := strings.Fields(s[open+1 : end])
	if len(coords) != 2 {
		return 0, 0, fmt.Errorf("malformed point %q: %w", g.WKT, descriptorstore.ErrTypeMismatch)
	}
	if lon, err = strconv.ParseFloat(coords[0], 64); err != nil {
		return 0, 0, fmt.Errorf("malformed longitude in %q: %w", g.WKT, descriptorstore.ErrTypeMismatch)
	}
	if lat, err = strconv.ParseFloat(coords[1], 64); err != nil {
		return 0, 0, fmt.Errorf("malformed latitude in %q: %w", g.WKT, descriptorstore.ErrTypeMismatch)
	}
	return lon, lat, nil
}

// String returns the EWKT form of the geography.
func (g Geo) String() string {
	return "SRID=" + strconv.Itoa(g.SRID) + ";" + g.WKT
}
