// README: Address lookup for route input that arrives without coordinates.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"tripflow/internal/modules/trip"
)

var ErrAddressNotFound = errors.New("address not found")

// Geocoder resolves free-text addresses, falling back to a Places text search for
// landmark names the geocoder does not know.
type Geocoder struct {
	client   *maps.Client
	language string
	region   string
}

func NewGeocoder(apiKey string, opts ...maps.ClientOption) (*Geocoder, error) {
	client, err := newClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &Geocoder{client: client, language: "zh-TW", region: "TW"}, nil
}

func (g *Geocoder) Resolve(ctx context.Context, address string) (trip.Place, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return trip.Place{}, ErrAddressNotFound
	}

	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  address,
		Language: g.language,
		Region:   g.region,
	})
	if err != nil && !isZeroResults(err) {
		return trip.Place{}, fmt.Errorf("geocode api error: %w", err)
	}
	if len(results) > 0 {
		return trip.Place{Address: results[0].FormattedAddress, Point: point(results[0].Geometry.Location)}, nil
	}

	resp, err := g.client.TextSearch(ctx, &maps.TextSearchRequest{
		Query:    address,
		Language: g.language,
		Region:   g.region,
	})
	if err != nil && !isZeroResults(err) {
		return trip.Place{}, fmt.Errorf("places api error: %w", err)
	}
	if len(resp.Results) == 0 {
		return trip.Place{}, fmt.Errorf("%w: %s", ErrAddressNotFound, address)
	}
	best := resp.Results[0]
	label := best.FormattedAddress
	if label == "" {
		label = best.Name
	}
	return trip.Place{Address: label, Point: point(best.Geometry.Location)}, nil
}

func isZeroResults(err error) bool {
	return err != nil && strings.Contains(err.Error(), "ZERO_RESULTS")
}
