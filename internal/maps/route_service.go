package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client   *maps.Client
	locality string
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey, locality string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, locality: locality}, nil
}

// RouteKm returns the driving distance of the first suggested route.
func (s *RouteService) RouteKm(ctx context.Context, origin, destination string) (float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      qualify(origin, s.locality),
		Destination: qualify(destination, s.locality),
		Mode:        maps.TravelModeDriving,
		Language:    "es",
		Region:      "ar",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("no route found")
	}

	meters := 0
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
	}
	return float64(meters) / 1000, nil
}
