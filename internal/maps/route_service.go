package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"tripflow/internal/modules/geo"
	"tripflow/internal/types"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client   *maps.Client
	language string
	region   string
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string, opts ...maps.ClientOption) (*RouteService, error) {
	client, err := newClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &RouteService{client: client, language: "zh-TW", region: "TW"}, nil
}

func newClient(apiKey string, opts ...maps.ClientOption) (*maps.Client, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// Route returns the driving route between two points. The leg's start and end are the
// road-snapped endpoints.
func (s *RouteService) Route(ctx context.Context, from, to types.Point) (geo.Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Language:    s.language,
		Region:      s.region,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return geo.Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return geo.Route{}, geo.ErrNoRoute
	}

	best := routes[0]
	path, err := maps.DecodePolyline(best.OverviewPolyline.Points)
	if err != nil {
		return geo.Route{}, fmt.Errorf("decode polyline: %w", err)
	}
	out := geo.Route{
		Polyline:           make([]types.Point, 0, len(path)),
		Encoded:            best.OverviewPolyline.Points,
		SnappedPickup:      point(best.Legs[0].StartLocation),
		SnappedDestination: point(best.Legs[len(best.Legs)-1].EndLocation),
	}
	for _, p := range path {
		out.Polyline = append(out.Polyline, point(p))
	}
	for _, leg := range best.Legs {
		out.DistanceKm += float64(leg.Distance.Meters) / 1000
		out.DurationMins += leg.Duration.Minutes()
	}
	return out, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

func point(ll maps.LatLng) types.Point {
	return types.Point{Lat: ll.Lat, Lng: ll.Lng}
}
