package geo

import (
	"fmt"
	"math"
	"sort"
)

// metersPerDegreeLat is the length of one degree of latitude on the sphere
// used by DistanceMeters.
const metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180

// maxBucketLat caps the latitude used to widen longitude neighbourhoods so the
// neighbourhood stays bounded near the poles.
const maxBucketLat = 80.0

// Bucket returns the key of the grid cell containing the point. Cells are
// cellMeters tall and cellMeters/metersPerDegreeLat degrees wide in both axes.
func Bucket(lat, lon, cellMeters float64) string {
	row, col := cellIndex(lat, lon, cellMeters)
	return bucketKey(cellMeters, row, col)
}

// NeighbourBuckets returns the sorted keys of every cell that can hold a point
// within cellMeters of (lat, lon): the point's own cell and its neighbours.
// Any two points within cellMeters of each other share at least one key.
func NeighbourBuckets(lat, lon, cellMeters float64) []string {
	row, col := cellIndex(lat, lon, cellMeters)

	// A degree of longitude shrinks with cos(lat), so reach further east/west.
	spanLat := math.Min(math.Abs(lat)+cellDegrees(cellMeters), maxBucketLat)
	lonReach := int(math.Ceil(1 / math.Cos(toRadians(spanLat))))

	keys := make([]string, 0, 3*(2*lonReach+1))
	for dr := int64(-1); dr <= 1; dr++ {
		for dc := -int64(lonReach); dc <= int64(lonReach); dc++ {
			keys = append(keys, bucketKey(cellMeters, row+dr, col+dc))
		}
	}
	sort.Strings(keys)
	return keys
}

func cellDegrees(cellMeters float64) float64 {
	return cellMeters / metersPerDegreeLat
}

func cellIndex(lat, lon, cellMeters float64) (row, col int64) {
	size := cellDegrees(cellMeters)
	return int64(math.Floor(lat / size)), int64(math.Floor(lon / size))
}

func bucketKey(cellMeters float64, row, col int64) string {
	return fmt.Sprintf("cell:%g:%d:%d", cellMeters, row, col)
}
