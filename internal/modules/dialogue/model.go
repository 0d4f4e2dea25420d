// README: Slot set and conversation state definitions.
package dialogue

import (
	"fmt"
	"sort"

	"novobot/internal/modules/nlu"
)

type State string

const (
	StateInitial               State = "initial"
	StateGreeting              State = "greeting"
	StateCollectingOrigin      State = "collecting_origin"
	StateCollectingDestination State = "collecting_destination"
	StateCollectingPayment     State = "collecting_payment"
	StateCollectingServiceType State = "collecting_service_type"
	StateCollectingTime        State = "collecting_time"
	StateReadyToConfirm        State = "ready_to_confirm"
	StateCompleted             State = "completed"
	StateCancelled             State = "cancelled"
	StateHelp                  State = "help"
	StateError                 State = "error"
)

// Settled is the state a session is stored in once the turn is over.
// Completed and Cancelled trips start the next conversation from Initial.
func (s State) Settled() State {
	if s == StateCompleted || s == StateCancelled {
		return StateInitial
	}
	return s
}

// SlotOrder is the fixed order in which slots are asked for.
var SlotOrder = []nlu.Slot{nlu.SlotOrigin, nlu.SlotDestination, nlu.SlotPayment, nlu.SlotServiceType, nlu.SlotTime}

var collecting = map[nlu.Slot]State{
	nlu.SlotOrigin:      StateCollectingOrigin,
	nlu.SlotDestination: StateCollectingDestination,
	nlu.SlotPayment:     StateCollectingPayment,
	nlu.SlotServiceType: StateCollectingServiceType,
	nlu.SlotTime:        StateCollectingTime,
}

// CollectingState maps a slot to the state that asks for it.
func CollectingState(slot nlu.Slot) State {
	return collecting[slot]
}

type TimeSlot struct {
	Hour      int `json:"hour"`
	Minute    int `json:"minute"`
	DayOffset int `json:"day_offset,omitempty"`
}

func (t TimeSlot) String() string {
	s := fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	switch t.DayOffset {
	case 0:
		return s
	case 1:
		return s + " (mañana)"
	default:
		return fmt.Sprintf("%s (en %d días)", s, t.DayOffset)
	}
}

// SlotSet is the trip information collected so far in one session.
type SlotSet struct {
	Origin            string               `json:"origin,omitempty"`
	Destination       string               `json:"destination,omitempty"`
	PaymentMethod     string               `json:"payment_method,omitempty"`
	ServiceType       nlu.ServiceType      `json:"service_type,omitempty"`
	Time              *TimeSlot            `json:"time,omitempty"`
	IntermediateStops []string             `json:"intermediate_stops,omitempty"`
	SpecialServices   []nlu.SpecialService `json:"special_services,omitempty"`
}

func (s SlotSet) IsEmpty() bool {
	return s.Origin == "" && s.Destination == "" && s.PaymentMethod == "" && s.ServiceType == "" &&
		s.Time == nil && len(s.IntermediateStops) == 0 && len(s.SpecialServices) == 0
}

func (s SlotSet) Has(slot nlu.Slot) bool {
	switch slot {
	case nlu.SlotOrigin:
		return s.Origin != ""
	case nlu.SlotDestination:
		return s.Destination != ""
	case nlu.SlotPayment:
		return s.PaymentMethod != ""
	case nlu.SlotServiceType:
		return s.ServiceType != ""
	case nlu.SlotTime:
		return s.Time != nil
	}
	return false
}

// Value renders a slot for replies and logs.
func (s SlotSet) Value(slot nlu.Slot) string {
	switch slot {
	case nlu.SlotOrigin:
		return s.Origin
	case nlu.SlotDestination:
		return s.Destination
	case nlu.SlotPayment:
		return s.PaymentMethod
	case nlu.SlotServiceType:
		return string(s.ServiceType)
	case nlu.SlotTime:
		if s.Time != nil {
			return s.Time.String()
		}
	}
	return ""
}

// NextMissing returns the first unfilled slot in SlotOrder. Time is only
// required for reservations.
func (s SlotSet) NextMissing() (nlu.Slot, bool) {
	for _, slot := range SlotOrder {
		if slot == nlu.SlotTime && s.ServiceType != nlu.ServiceReservation {
			continue
		}
		if !s.Has(slot) {
			return slot, true
		}
	}
	return "", false
}

func (s SlotSet) Complete() bool {
	_, missing := s.NextMissing()
	return !missing
}

func (s SlotSet) HasSpecial(x nlu.SpecialService) bool {
	for _, v := range s.SpecialServices {
		if v == x {
			return true
		}
	}
	return false
}

func (s SlotSet) Clone() SlotSet {
	c := s
	if s.Time != nil {
		t := *s.Time
		c.Time = &t
	}
	c.IntermediateStops = append([]string(nil), s.IntermediateStops...)
	c.SpecialServices = append([]nlu.SpecialService(nil), s.SpecialServices...)
	return c
}

// Restore copies one slot back from prev, undoing this turn's change to it.
func (s SlotSet) Restore(prev SlotSet, slot nlu.Slot) SlotSet {
	c := s.Clone()
	switch slot {
	case nlu.SlotOrigin:
		c.Origin = prev.Origin
	case nlu.SlotDestination:
		c.Destination = prev.Destination
	case nlu.SlotPayment:
		c.PaymentMethod = prev.PaymentMethod
	case nlu.SlotServiceType:
		c.ServiceType = prev.ServiceType
	case nlu.SlotTime:
		c.Time = nil
		if prev.Time != nil {
			t := *prev.Time
			c.Time = &t
		}
	case nlu.SlotStop:
		c.IntermediateStops = append([]string(nil), prev.IntermediateStops...)
	}
	return c
}

func (s *SlotSet) set(slot nlu.Slot, value string) {
	switch slot {
	case nlu.SlotOrigin:
		s.Origin = value
	case nlu.SlotDestination:
		s.Destination = value
	case nlu.SlotPayment:
		s.PaymentMethod = value
	case nlu.SlotServiceType:
		s.ServiceType = nlu.ServiceType(value)
	}
}

func (s *SlotSet) clear(slot nlu.Slot) {
	s.set(slot, "")
	if slot == nlu.SlotTime {
		s.Time = nil
	}
}

func (s *SlotSet) addSpecial(x nlu.SpecialService) bool {
	if s.HasSpecial(x) {
		return false
	}
	s.SpecialServices = append(s.SpecialServices, x)
	sort.Slice(s.SpecialServices, func(i, j int) bool { return s.SpecialServices[i] < s.SpecialServices[j] })
	return true
}

func (s *SlotSet) addStop(stop string) bool {
	for _, v := range s.IntermediateStops {
		if v == stop {
			return false
		}
	}
	s.IntermediateStops = append(s.IntermediateStops, stop)
	return true
}
