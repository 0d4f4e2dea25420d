// README: Address geocoding with a Places text-search fallback.
package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"novobot/internal/types"
)

type placeFinder interface {
	FindPlace(ctx context.Context, query string) (types.Place, error)
}

// Geocoder resolves free-text Argentine addresses.
type Geocoder struct {
	client   *maps.Client
	places   placeFinder
	locality string
}

// NewGeocoder creates a Geocoder. locality ("Concordia, Entre Ríos") is appended to
// queries that do not name a city.
func NewGeocoder(apiKey, locality string, places *PlacesService) (*Geocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	g := &Geocoder{client: client, locality: locality}
	if places != nil {
		g.places = places
	}
	return g, nil
}

// Lookup geocodes address, falling back to Places text search for landmarks.
func (g *Geocoder) Lookup(ctx context.Context, address string) (types.Place, error) {
	query := qualify(address, g.locality)
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  query,
		Region:   "ar",
		Language: "es",
	})
	if err == nil && len(results) > 0 && !results[0].PartialMatch {
		r := results[0]
		return types.Place{
			Query:            address,
			FormattedAddress: r.FormattedAddress,
			Location:         types.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		}, nil
	}
	if g.places == nil {
		if err != nil {
			return types.Place{}, fmt.Errorf("geocode %q: %w", address, err)
		}
		return types.Place{}, ErrNotFound
	}
	place, perr := g.places.FindPlace(ctx, query)
	if perr != nil {
		return types.Place{}, perr
	}
	place.Query = address
	return place, nil
}

// qualify appends locality unless the address already carries a ", city" part.
func qualify(address, locality string) string {
	address = strings.TrimSpace(address)
	if locality == "" || strings.Contains(address, ",") {
		return address
	}
	return address + ", " + locality
}
