package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID for WGS84 lon/lat.
const SRID = 4326

// EncodePoint returns the EWKB encoding of a lon/lat point with SRID 4326,
// suitable for ST_GeomFromEWKB or a PostGIS geometry(Point, 4326) column.
func EncodePoint(lat, lon float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRID)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: marshal point ewkb")
	}
	return data, nil
}

// DecodePoint parses an EWKB point back into lat/lon.
func DecodePoint(data []byte) (lat, lon float64, err error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geo: unmarshal ewkb")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("geo: expected point geometry, got %T", g)
	}
	return p.Y(), p.X(), nil
}

// EncodePolygon returns the EWKB encoding of a closed ring of lon/lat pairs.
// The ring is closed automatically when the last vertex differs from the first.
func EncodePolygon(ring []Point) ([]byte, error) {
	if len(ring) < 3 {
		return nil, eris.New("geo: polygon needs at least 3 vertices")
	}
	flat := make([]float64, 0, 2*(len(ring)+1))
	for _, p := range ring {
		flat = append(flat, p.Longitude, p.Latitude)
	}
	if ring[0] != ring[len(ring)-1] {
		flat = append(flat, ring[0].Longitude, ring[0].Latitude)
	}

	poly := geom.NewPolygon(geom.XY).SetSRID(SRID)
	if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
		return nil, eris.Wrap(err, "geo: build polygon")
	}
	data, err := ewkb.Marshal(poly, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: marshal polygon ewkb")
	}
	return data, nil
}

// RingBounds returns the bounding box of a ring.
func RingBounds(ring []Point) BBox {
	if len(ring) == 0 {
		return BBox{}
	}
	b := BBox{MinLon: ring[0].Longitude, MaxLon: ring[0].Longitude, MinLat: ring[0].Latitude, MaxLat: ring[0].Latitude}
	for _, p := range ring[1:] {
		b.MinLon = min(b.MinLon, p.Longitude)
		b.MaxLon = max(b.MaxLon, p.Longitude)
		b.MinLat = min(b.MinLat, p.Latitude)
		b.MaxLat = max(b.MaxLat, p.Latitude)
	}
	return b
}
