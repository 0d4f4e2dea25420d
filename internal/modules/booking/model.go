// README: Booking record written when a trip is confirmed, and its status flow.
package booking

import (
	"errors"
	"time"

	"novobot/internal/types"
)

var (
	ErrNotFound     = errors.New("booking not found")
	ErrInvalidState = errors.New("invalid booking state transition")
	ErrConflict     = errors.New("booking state conflict")
	ErrBadRequest   = errors.New("bad request")
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Booking struct {
	ID              types.ID     `json:"id"`
	Phone           string       `json:"phone"`
	ConversationID  string       `json:"conversation_id"`
	Origin          string       `json:"origin"`
	Destination     string       `json:"destination"`
	Stops           []string     `json:"stops,omitempty"`
	Payment         string       `json:"payment"`
	ServiceType     string       `json:"service_type"`
	PickupAt        *time.Time   `json:"pickup_at,omitempty"`
	SpecialServices []string     `json:"special_services,omitempty"`
	Estimate        *types.Money `json:"estimate,omitempty"`
	EstimateRange   string       `json:"estimate_range,omitempty"`
	Status          Status       `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
}

// AllowedTransitions is the booking status flow. Dispatch moves a booking to
// completed; the passenger or an operator may cancel before that.
var AllowedTransitions = map[Status][]Status{
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
