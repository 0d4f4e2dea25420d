package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"novobot/internal/types"
)

// ErrNotFound is returned when neither geocoding nor text search resolves an address.
var ErrNotFound = errors.New("address not found")

// PlacesService resolves landmarks ("la terminal", "el hospital") through Places text search.
type PlacesService struct {
	client *maps.Client
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client}, nil
}

// FindPlace returns the best text-search match for query.
func (s *PlacesService) FindPlace(ctx context.Context, query string) (types.Place, error) {
	resp, err := s.client.TextSearch(ctx, &maps.TextSearchRequest{
		Query:    query,
		Language: "es",
		Region:   "ar",
	})
	if err != nil {
		return types.Place{}, fmt.Errorf("places api error: %w", err)
	}
	if len(resp.Results) == 0 {
		return types.Place{}, ErrNotFound
	}
	r := resp.Results[0]
	return types.Place{
		Query:            query,
		FormattedAddress: r.FormattedAddress,
		Location:         types.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
	}, nil
}
