package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name     string
		lat1     float64
		lon1     float64
		lat2     float64
		lon2     float64
		expected float64
		delta    float64
	}{
		{
			name: "identical points",
			lat1: 43.6532, lon1: -79.3832, lat2: 43.6532, lon2: -79.3832,
			expected: 0, delta: 1e-9,
		},
		{
			name: "toronto neighbours about 13m apart",
			lat1: 43.6532, lon1: -79.3832, lat2: 43.6533, lon2: -79.3831,
			expected: 13.6, delta: 1.0,
		},
		{
			name: "one degree of latitude",
			lat1: 0, lon1: 0, lat2: 1, lon2: 0,
			expected: 111195, delta: 1,
		},
		{
			name: "toronto to ottawa",
			lat1: 43.6532, lon1: -79.3832, lat2: 45.4215, lon2: -75.6972,
			expected: 352000, delta: 2000,
		},
		{
			name: "antipodal",
			lat1: 0, lon1: 0, lat2: 0, lon2: 180,
			expected: 20015087, delta: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.expected, got, tt.delta)
		})
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	pairs := [][4]float64{
		{43.6532, -79.3832, 43.6533, -79.3831},
		{51.5074, -0.1278, 40.7128, -74.0060},
		{-33.8688, 151.2093, 35.6762, 139.6503},
	}
	for _, p := range pairs {
		ab := DistanceMeters(p[0], p[1], p[2], p[3])
		ba := DistanceMeters(p[2], p[3], p[0], p[1])
		assert.InDelta(t, ab, ba, 1e-6)
		assert.GreaterOrEqual(t, ab, 0.0)
	}
}

func TestPoint_DistanceTo(t *testing.T) {
	a := Point{Latitude: 43.6532, Longitude: -79.3832}
	b := Point{Latitude: 43.6533, Longitude: -79.3831}
	assert.InDelta(t, DistanceMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude), a.DistanceTo(b), 1e-9)
}

func TestPoint_Valid(t *testing.T) {
	assert.True(t, Point{Latitude: 43.6, Longitude: -79.4}.Valid())
	assert.True(t, Point{Latitude: -90, Longitude: 180}.Valid())
	assert.False(t, Point{Latitude: 91, Longitude: 0}.Valid())
	assert.False(t, Point{Latitude: 0, Longitude: -181}.Valid())
}
