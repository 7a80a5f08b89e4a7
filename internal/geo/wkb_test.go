package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func TestEncodePoint_RoundTrip(t *testing.T) {
	data, err := EncodePoint(43.6532, -79.3832)
	require.NoError(t, err)

	lat, lon, err := DecodePoint(data)
	require.NoError(t, err)
	assert.InDelta(t, 43.6532, lat, 1e-12)
	assert.InDelta(t, -79.3832, lon, 1e-12)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, SRID, g.SRID())
}

func TestDecodePoint_NotAPoint(t *testing.T) {
	data, err := EncodePolygon(BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}.Ring())
	require.NoError(t, err)

	_, _, err = DecodePoint(data)
	assert.Error(t, err)
}

func TestEncodePolygon_ClosesRing(t *testing.T) {
	open := []Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 1},
		{Latitude: 1, Longitude: 1},
	}
	data, err := EncodePolygon(open)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	poly, ok := g.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 4, poly.LinearRing(0).NumCoords())
}

func TestEncodePolygon_TooFewVertices(t *testing.T) {
	_, err := EncodePolygon([]Point{{Latitude: 0, Longitude: 0}})
	assert.Error(t, err)
}
