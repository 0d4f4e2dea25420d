// README: Trip distance estimation; directions first, straight line as fallback.
package maps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"novobot/internal/types"
)

type router interface {
	RouteKm(ctx context.Context, origin, destination string) (float64, error)
}

type locator interface {
	Lookup(ctx context.Context, address string) (types.Place, error)
}

// DistanceEstimator implements the pricing module's distance source.
type DistanceEstimator struct {
	routes     router
	geo        locator
	roadFactor float64
	log        *zap.Logger
}

// NewDistanceEstimator accepts nil routes; geo is required for the fallback.
func NewDistanceEstimator(routes router, geo locator, roadFactor float64, log *zap.Logger) *DistanceEstimator {
	if roadFactor <= 0 {
		roadFactor = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DistanceEstimator{routes: routes, geo: geo, roadFactor: roadFactor, log: log}
}

func (d *DistanceEstimator) DistanceKm(ctx context.Context, origin, destination string) (float64, error) {
	if d.routes != nil {
		km, err := d.routes.RouteKm(ctx, origin, destination)
		if err == nil {
			return km, nil
		}
		d.log.Debug("directions failed, using straight line", zap.Error(err))
	}
	if d.geo == nil {
		return 0, ErrNotFound
	}
	from, err := d.geo.Lookup(ctx, origin)
	if err != nil {
		return 0, fmt.Errorf("locate origin: %w", err)
	}
	to, err := d.geo.Lookup(ctx, destination)
	if err != nil {
		return 0, fmt.Errorf("locate destination: %w", err)
	}
	return HaversineKm(from.Location, to.Location) * d.roadFactor, nil
}
