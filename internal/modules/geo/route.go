// README: Route shape and routing collaborators.
package geo

import (
	"context"
	"errors"

	"tripflow/internal/types"
)

var ErrNoRoute = errors.New("no route found")

type Route struct {
	Polyline           []types.Point `json:"polyline"`
	Encoded            string        `json:"encoded,omitempty"`
	SnappedPickup      types.Point   `json:"snapped_pickup"`
	SnappedDestination types.Point   `json:"snapped_destination"`
	DistanceKm         float64       `json:"distance_km"`
	DurationMins       float64       `json:"duration_mins"`
}

// Router computes a driving route between two points.
type Router interface {
	Route(ctx context.Context, from, to types.Point) (Route, error)
}
