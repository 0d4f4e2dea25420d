// README: Tariff request and estimate types.
package pricing

import (
	"time"

	"novobot/internal/modules/nlu"
	"novobot/internal/types"
)

type SurchargeKind string

const (
	SurchargePet   SurchargeKind = "pet"
	SurchargePink  SurchargeKind = "pink"
	SurchargeNight SurchargeKind = "night"
)

// BucketBeyond names distances past the last configured bucket.
const BucketBeyond = "extended"

type Surcharge struct {
	Kind   SurchargeKind `json:"kind"`
	Amount types.Money   `json:"amount"`
}

type PricingRequest struct {
	Origin      string
	Destination string
	ServiceType nlu.ServiceType
	Specials    []nlu.SpecialService
	// PickupAt decides the night surcharge.
	PickupAt time.Time
}

type Estimate struct {
	BasePrice  types.Money `json:"base_price"`
	Bucket     string      `json:"bucket"`
	Surcharges []Surcharge `json:"surcharges,omitempty"`
	Total      types.Money `json:"total"`
	RangeLabel string      `json:"range_label"`
	DistanceKm float64     `json:"distance_km"`
	// Exact is false when the distance came from the same-city/cross-city heuristic.
	Exact bool `json:"exact"`
}
