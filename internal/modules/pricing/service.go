// README: Tariff calculator; distance buckets, interpolation and additive surcharges.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"novobot/internal/config"
	"novobot/internal/modules/nlu"
	"novobot/internal/types"
)

var ErrMissingAddresses = errors.New("origin and destination are required")

// DistanceEstimator returns the driving distance between two free-text addresses.
type DistanceEstimator interface {
	DistanceKm(ctx context.Context, origin, destination string) (float64, error)
}

type Service struct {
	cfg      config.TariffConfig
	distance DistanceEstimator
	log      *zap.Logger
}

// NewService builds the calculator. distance may be nil; the keyword heuristic is used then.
func NewService(cfg config.TariffConfig, distance DistanceEstimator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, distance: distance, log: log}
}

// Estimate prices a trip. Identical requests always produce identical totals
// when the distance source is deterministic.
func (s *Service) Estimate(ctx context.Context, req PricingRequest) (Estimate, error) {
	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		return Estimate{}, ErrMissingAddresses
	}

	km, exact := s.resolveDistance(ctx, req.Origin, req.Destination)
	est := s.Quote(km)
	est.Exact = exact

	total := est.BasePrice.Amount
	add := func(kind SurchargeKind, amount int64) {
		if amount <= 0 {
			return
		}
		est.Surcharges = append(est.Surcharges, Surcharge{Kind: kind, Amount: types.ARS(amount)})
		total += amount
	}
	if hasSpecial(req.Specials, nlu.SpecialPet) {
		add(SurchargePet, s.cfg.PetSurcharge)
	}
	if hasSpecial(req.Specials, nlu.SpecialPink) {
		add(SurchargePink, s.cfg.PinkSurcharge)
	}
	if !req.PickupAt.IsZero() && s.isNight(req.PickupAt) {
		add(SurchargeNight, s.cfg.NightSurcharge)
	}
	est.Total = types.ARS(total)
	return est, nil
}

// Quote maps a distance to its bucket and interpolated base price.
func (s *Service) Quote(km float64) Estimate {
	lo := 0.0
	for _, b := range s.cfg.Buckets {
		if km <= b.MaxKm {
			frac := 0.0
			if b.MaxKm > lo {
				frac = (math.Max(km, lo) - lo) / (b.MaxKm - lo)
			}
			price := float64(b.MinPrice) + frac*float64(b.MaxPrice-b.MinPrice)
			return Estimate{
				BasePrice:  types.ARS(s.round(price)),
				Bucket:     b.Name,
				RangeLabel: fmt.Sprintf("$%d-$%d", b.MinPrice, b.MaxPrice),
				DistanceKm: km,
			}
		}
		lo = b.MaxKm
	}

	last := s.cfg.Buckets[len(s.cfg.Buckets)-1]
	price := float64(last.MaxPrice) + (km-last.MaxKm)*float64(s.cfg.PerKmBeyond)
	return Estimate{
		BasePrice:  types.ARS(s.round(price)),
		Bucket:     BucketBeyond,
		RangeLabel: fmt.Sprintf("más de $%d", last.MaxPrice),
		DistanceKm: km,
	}
}

// RangeTable renders every bucket for price questions, e.g. "hasta 2 km: $500-$800".
func (s *Service) RangeTable() []string {
	out := make([]string, 0, len(s.cfg.Buckets))
	for _, b := range s.cfg.Buckets {
		out = append(out, fmt.Sprintf("hasta %.0f km: $%d-$%d", b.MaxKm, b.MinPrice, b.MaxPrice))
	}
	return out
}

func (s *Service) resolveDistance(ctx context.Context, origin, destination string) (float64, bool) {
	if s.distance != nil {
		ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.DistanceTimeoutMs)*time.Millisecond)
		defer cancel()
		km, err := s.distance.DistanceKm(ctx, origin, destination)
		if err == nil && km > 0 {
			return km, true
		}
		s.log.Debug("distance lookup failed, using city heuristic", zap.Error(err))
	}
	if s.cityOf(origin) == s.cityOf(destination) {
		return s.cfg.SameCityKm, false
	}
	return s.cfg.CrossCityKm, false
}

// cityOf returns the first configured city named in addr, or the default city.
func (s *Service) cityOf(addr string) string {
	padded := " " + nlu.FoldWords(addr) + " "
	for _, c := range s.cfg.Cities {
		if strings.Contains(padded, " "+nlu.FoldWords(c)+" ") {
			return nlu.FoldWords(c)
		}
	}
	return nlu.FoldWords(s.cfg.DefaultCity)
}

func (s *Service) isNight(t time.Time) bool {
	h := t.Hour()
	start, end := s.cfg.NightStartHour, s.cfg.NightEndHour
	if start > end {
		return h >= start || h < end
	}
	return h >= start && h < end
}

func (s *Service) round(price float64) int64 {
	step := s.cfg.RoundTo
	if step <= 1 {
		return int64(math.Round(price))
	}
	return int64(math.Round(price/float64(step))) * step
}

func hasSpecial(list []nlu.SpecialService, want nlu.SpecialService) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
