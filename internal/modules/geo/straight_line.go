package geo

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"tripflow/internal/types"
)

// StraightLine is the fallback Router when no Maps key is configured.
// Distance is great-circle; duration assumes a constant average speed.
type StraightLine struct {
	SpeedKmh float64
}

func (s StraightLine) Route(ctx context.Context, from, to types.Point) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	if !from.Valid() || !to.Valid() {
		return Route{}, fmt.Errorf("%w: invalid coordinates", ErrNoRoute)
	}
	speed := s.SpeedKmh
	if speed <= 0 {
		speed = 30
	}
	dist := from.DistanceKm(to)
	return Route{
		Polyline:           []types.Point{from, to},
		Encoded:            maps.Encode([]maps.LatLng{{Lat: from.Lat, Lng: from.Lng}, {Lat: to.Lat, Lng: to.Lng}}),
		SnappedPickup:      from,
		SnappedDestination: to,
		DistanceKm:         dist,
		DurationMins:       dist / speed * 60,
	}, nil
}
