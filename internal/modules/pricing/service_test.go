package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novobot/internal/config"
	"novobot/internal/modules/nlu"
)

var afternoon = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type fakeDistance struct {
	km  float64
	err error
}

func (f fakeDistance) DistanceKm(context.Context, string, string) (float64, error) {
	return f.km, f.err
}

func newTestService(d DistanceEstimator) *Service {
	return NewService(config.Defaults().Tariff, d, nil)
}

func TestService_Quote(t *testing.T) {
	s := newTestService(nil)

	tests := []struct {
		name       string
		km         float64
		wantBucket string
		wantBase   int64
	}{
		{name: "zero distance is the short minimum", km: 0, wantBucket: "short", wantBase: 500},
		{name: "middle of short", km: 1, wantBucket: "short", wantBase: 650},
		{name: "short ceiling", km: 2, wantBucket: "short", wantBase: 800},
		{name: "middle of medium", km: 3.5, wantBucket: "medium", wantBase: 1000},
		{name: "middle of long", km: 10, wantBucket: "long", wantBase: 1600},
		{name: "long ceiling", km: 15, wantBucket: "long", wantBase: 2000},
		{name: "beyond adds per km", km: 20, wantBucket: BucketBeyond, wantBase: 2500},
		{name: "rounded to 10", km: 1.03, wantBucket: "short", wantBase: 650},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Quote(tt.km)
			assert.Equal(t, tt.wantBucket, got.Bucket)
			assert.Equal(t, tt.wantBase, got.BasePrice.Amount)
		})
	}
}

func TestService_Estimate_SameCityHeuristic(t *testing.T) {
	s := newTestService(nil)
	est, err := s.Estimate(context.Background(), PricingRequest{
		Origin:      "1 de mayo 449, concordia",
		Destination: "diamante 2500, concordia",
		ServiceType: nlu.ServiceImmediate,
		PickupAt:    afternoon,
	})
	require.NoError(t, err)

	assert.False(t, est.Exact)
	assert.Equal(t, "medium", est.Bucket)
	assert.Equal(t, "$800-$1200", est.RangeLabel)
	assert.Equal(t, int64(1000), est.Total.Amount)
	assert.Empty(t, est.Surcharges)
}

func TestService_Estimate_CrossCityHeuristic(t *testing.T) {
	est, err := newTestService(nil).Estimate(context.Background(), PricingRequest{
		Origin:      "urquiza 300",
		Destination: "la terminal, Salto",
		PickupAt:    afternoon,
	})
	require.NoError(t, err)
	assert.Equal(t, "long", est.Bucket)
	assert.Equal(t, int64(1600), est.Total.Amount)
}

func TestService_Estimate_Surcharges(t *testing.T) {
	s := newTestService(nil)
	night := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

	est, err := s.Estimate(context.Background(), PricingRequest{
		Origin:      "urquiza 300",
		Destination: "diamante 2500",
		Specials:    []nlu.SpecialService{nlu.SpecialPink, nlu.SpecialPet, nlu.SpecialLuggage},
		PickupAt:    night,
	})
	require.NoError(t, err)

	require.Len(t, est.Surcharges, 3)
	assert.Equal(t, SurchargePet, est.Surcharges[0].Kind)
	assert.Equal(t, SurchargePink, est.Surcharges[1].Kind)
	assert.Equal(t, SurchargeNight, est.Surcharges[2].Kind)
	assert.Equal(t, int64(1000+200+100+150), est.Total.Amount)
}

func TestService_NightWindow(t *testing.T) {
	s := newTestService(nil)
	at := func(h, m int) time.Time { return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC) }

	assert.True(t, s.isNight(at(22, 0)))
	assert.True(t, s.isNight(at(0, 30)))
	assert.True(t, s.isNight(at(5, 59)))
	assert.False(t, s.isNight(at(6, 0)))
	assert.False(t, s.isNight(at(21, 59)))
}

func TestService_Estimate_UsesDistanceEstimator(t *testing.T) {
	est, err := newTestService(fakeDistance{km: 4.2}).Estimate(context.Background(), PricingRequest{
		Origin: "urquiza 300", Destination: "diamante 2500", PickupAt: afternoon,
	})
	require.NoError(t, err)
	assert.True(t, est.Exact)
	assert.Equal(t, 4.2, est.DistanceKm)
	assert.Equal(t, int64(1090), est.Total.Amount)
}

func TestService_Estimate_EstimatorFailureFallsBack(t *testing.T) {
	est, err := newTestService(fakeDistance{err: errors.New("deadline")}).Estimate(context.Background(), PricingRequest{
		Origin: "urquiza 300", Destination: "diamante 2500", PickupAt: afternoon,
	})
	require.NoError(t, err)
	assert.False(t, est.Exact)
	assert.Equal(t, int64(1000), est.Total.Amount)
}

func TestService_Estimate_Deterministic(t *testing.T) {
	s := newTestService(nil)
	req := PricingRequest{Origin: "urquiza 300", Destination: "diamante 2500", Specials: []nlu.SpecialService{nlu.SpecialPet}, PickupAt: afternoon}

	a, err := s.Estimate(context.Background(), req)
	require.NoError(t, err)
	b, err := s.Estimate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestService_Estimate_MissingAddresses(t *testing.T) {
	_, err := newTestService(nil).Estimate(context.Background(), PricingRequest{Origin: "urquiza 300"})
	assert.ErrorIs(t, err, ErrMissingAddresses)
}
