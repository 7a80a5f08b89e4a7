package geo

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// BBox is an axis-aligned bounding box in decimal degrees.
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, eris.Errorf("geo: bbox %q must have 4 comma-separated values", s)
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, eris.Wrapf(err, "geo: parse bbox value %q", p)
		}
		vals[i] = v
	}

	b := BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if b.MinLon > b.MaxLon || b.MinLat > b.MaxLat {
		return BBox{}, eris.Errorf("geo: bbox %q has min greater than max", s)
	}
	if !(Point{Latitude: b.MinLat, Longitude: b.MinLon}).Valid() ||
		!(Point{Latitude: b.MaxLat, Longitude: b.MaxLon}).Valid() {
		return BBox{}, eris.Errorf("geo: bbox %q out of range", s)
	}
	return b, nil
}

// Contains reports whether the point lies inside b, edges included.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// String formats b the same way ParseBBox reads it.
func (b BBox) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(b.MinLon) + "," + f(b.MinLat) + "," + f(b.MaxLon) + "," + f(b.MaxLat)
}

// Ring returns the corners of b as a closed counter-clockwise ring.
func (b BBox) Ring() []Point {
	return []Point{
		{Latitude: b.MinLat, Longitude: b.MinLon},
		{Latitude: b.MinLat, Longitude: b.MaxLon},
		{Latitude: b.MaxLat, Longitude: b.MaxLon},
		{Latitude: b.MaxLat, Longitude: b.MinLon},
		{Latitude: b.MinLat, Longitude: b.MinLon},
	}
}
