package maps

import (
	"math"
	"testing"

	"novobot/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: -31.3927, Lng: -58.0209},
			b:         types.Point{Lat: -31.3927, Lng: -58.0209},
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Concordia to Salto (~5km across the river)",
			a:         types.Point{Lat: -31.3927, Lng: -58.0209},
			b:         types.Point{Lat: -31.3833, Lng: -57.9667},
			wantKm:    5.2,
			tolerance: 1.0,
		},
		{
			name:      "Concordia to Paraná (~215km)",
			a:         types.Point{Lat: -31.3927, Lng: -58.0209},
			b:         types.Point{Lat: -31.7319, Lng: -60.5238},
			wantKm:    240,
			tolerance: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	a := types.Point{Lat: -31.0, Lng: -58.0}
	b := types.Point{Lat: -32.0, Lng: -59.0}
	if math.Abs(HaversineKm(a, b)-HaversineKm(b, a)) > 0.0001 {
		t.Errorf("haversine is not symmetric")
	}
}
