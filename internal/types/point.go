// README: Coordinate pair and great-circle helpers.
package types

import "math"

const earthRadiusKm = 6371.0

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the point was never set. (0,0) is treated as absent.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// Valid reports whether the point lies within WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceKm returns the haversine distance between two points.
func (p Point) DistanceKm(to Point) float64 {
	dLat := degreesToRadians(to.Lat - p.Lat)
	dLng := degreesToRadians(to.Lng - p.Lng)
	rLat1 := degreesToRadians(p.Lat)
	rLat2 := degreesToRadians(to.Lat)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
