// README: Dialogue state machine; pure transition from (slots, entities, intent).
package dialogue

import "novobot/internal/modules/nlu"

// Result is the outcome of one Transition.
type Result struct {
	Slots SlotSet
	State State
	// Changed lists the slots filled or overwritten by this turn, in SlotOrder.
	Changed []nlu.Slot
	// StopsAdded lists intermediate stops appended by this turn.
	StopsAdded []string
	// Finalized holds the slots of the trip that was just completed or
	// cancelled. Slots itself has been reset by then.
	Finalized *SlotSet
	// AmbiguousService is set when the utterance named both an immediate and
	// a reservation keyword; the service type slot is left untouched.
	AmbiguousService bool
}

// Derive computes the slot-driven state from completeness in SlotOrder.
func Derive(s SlotSet) State {
	slot, missing := s.NextMissing()
	if !missing {
		return StateReadyToConfirm
	}
	return CollectingState(slot)
}

// Transition applies one classified utterance to prev. It never mutates prev
// and returns identical results for identical inputs.
func Transition(prev SlotSet, entities []nlu.Entity, intent nlu.Intent) Result {
	switch {
	case intent.Kind == nlu.IntentCancel:
		res := Result{State: StateCancelled}
		if !prev.IsEmpty() {
			f := prev.Clone()
			res.Finalized = &f
		}
		return res
	case intent.Kind == nlu.IntentRequestHelp:
		return Result{Slots: prev.Clone(), State: StateHelp}
	case intent.Kind == nlu.IntentGreeting && prev.IsEmpty():
		return Result{State: StateGreeting}
	}

	next := prev.Clone()
	changed := map[nlu.Slot]bool{}
	pending := append([]nlu.Entity(nil), entities...)

	if intent.Kind == nlu.IntentCorrection {
		target := intent.Target
		if target == "" {
			target = inferCorrectionTarget(prev, pending)
		}
		if target != "" {
			pending = applyCorrection(&next, target, pending, changed)
			changed[target] = true
		}
	}

	res := Result{}
	res.StopsAdded, res.AmbiguousService = merge(&next, prev, pending, changed)

	for _, slot := range SlotOrder {
		if changed[slot] {
			res.Changed = append(res.Changed, slot)
		}
	}

	if intent.Kind == nlu.IntentConfirm && prev.Complete() && next.Complete() {
		f := next
		res.Finalized = &f
		res.State = StateCompleted
		return res
	}

	res.Slots = next
	res.State = Derive(next)
	return res
}

// merge fills empty slots from entities. It never overwrites a filled slot.
func merge(next *SlotSet, prev SlotSet, entities []nlu.Entity, changed map[nlu.Slot]bool) (stops []string, ambiguous bool) {
	var addrs []nlu.AddressEntity
	var timeSeen, serviceSeen bool
	var numbers []nlu.NumberEntity

	for _, e := range entities {
		switch v := e.(type) {
		case nlu.AddressEntity:
			addrs = append(addrs, v)
		case nlu.PaymentEntity:
			if next.PaymentMethod == "" {
				next.PaymentMethod = v.Method
				changed[nlu.SlotPayment] = true
			}
		case nlu.ServiceTypeEntity:
			serviceSeen = true
			if v.Ambiguous {
				ambiguous = true
				continue
			}
			if next.ServiceType == "" {
				next.ServiceType = v.Type
				changed[nlu.SlotServiceType] = true
			}
		case nlu.TimeEntity:
			timeSeen = true
			if next.Time == nil {
				next.Time = &TimeSlot{Hour: v.Hour, Minute: v.Minute, DayOffset: v.DayOffset}
				changed[nlu.SlotTime] = true
			}
		case nlu.SpecialServiceEntity:
			next.addSpecial(v.Service)
		case nlu.NumberEntity:
			numbers = append(numbers, v)
		}
	}

	nlu.SortAddresses(addrs)
	for _, a := range addrs {
		switch a.Role {
		case nlu.RoleOrigin:
			fillAddress(next, nlu.SlotOrigin, a.Value, changed)
		case nlu.RoleDestination:
			fillAddress(next, nlu.SlotDestination, a.Value, changed)
		case nlu.RoleStop:
			if next.addStop(a.Value) {
				stops = append(stops, a.Value)
			}
		default:
			switch {
			case next.Origin == "":
				fillAddress(next, nlu.SlotOrigin, a.Value, changed)
			case next.Destination == "" && a.Value != next.Origin:
				fillAddress(next, nlu.SlotDestination, a.Value, changed)
			}
		}
	}

	// A bare hour answers the time question when nothing else was said.
	if !timeSeen && next.Time == nil && len(addrs) == 0 && len(numbers) == 1 &&
		Derive(prev) == StateCollectingTime && numbers[0].Value >= 0 && numbers[0].Value <= 23 {
		next.Time = &TimeSlot{Hour: numbers[0].Value}
		changed[nlu.SlotTime] = true
		timeSeen = true
	}

	// A clock time with no service type stated means the trip is booked ahead.
	if timeSeen && changed[nlu.SlotTime] && next.ServiceType == "" && !serviceSeen {
		next.ServiceType = nlu.ServiceReservation
		changed[nlu.SlotServiceType] = true
	}
	return stops, ambiguous
}

func fillAddress(next *SlotSet, slot nlu.Slot, value string, changed map[nlu.Slot]bool) {
	if next.Has(slot) {
		return
	}
	next.set(slot, value)
	changed[slot] = true
}

// inferCorrectionTarget picks the slot a correction without an explicit slot
// name refers to, from the kind of value the user supplied.
func inferCorrectionTarget(prev SlotSet, entities []nlu.Entity) nlu.Slot {
	for _, e := range entities {
		if a, ok := e.(nlu.AddressEntity); ok {
			switch a.Role {
			case nlu.RoleOrigin:
				return nlu.SlotOrigin
			case nlu.RoleDestination:
				return nlu.SlotDestination
			}
		}
	}
	for _, e := range entities {
		switch v := e.(type) {
		case nlu.PaymentEntity:
			return nlu.SlotPayment
		case nlu.TimeEntity:
			return nlu.SlotTime
		case nlu.ServiceTypeEntity:
			if !v.Ambiguous {
				return nlu.SlotServiceType
			}
		case nlu.AddressEntity:
			if v.Role == nlu.RoleNone {
				if prev.Destination != "" {
					return nlu.SlotDestination
				}
				return nlu.SlotOrigin
			}
		}
	}
	return ""
}

// applyCorrection overwrites target with the matching entity, or clears it
// when the user named the slot without a new value. The consumed entity is
// removed from the returned list. Slots cleared as a side effect are recorded
// in changed.
func applyCorrection(next *SlotSet, target nlu.Slot, entities []nlu.Entity, changed map[nlu.Slot]bool) []nlu.Entity {
	idx := correctionEntity(target, entities)
	if idx < 0 {
		next.clear(target)
		return entities
	}
	switch v := entities[idx].(type) {
	case nlu.AddressEntity:
		next.set(target, v.Value)
	case nlu.PaymentEntity:
		next.PaymentMethod = v.Method
	case nlu.ServiceTypeEntity:
		next.ServiceType = v.Type
		if v.Type == nlu.ServiceImmediate && next.Time != nil {
			next.Time = nil
			changed[nlu.SlotTime] = true
		}
	case nlu.TimeEntity:
		next.Time = &TimeSlot{Hour: v.Hour, Minute: v.Minute, DayOffset: v.DayOffset}
	}
	return append(entities[:idx:idx], entities[idx+1:]...)
}

func correctionEntity(target nlu.Slot, entities []nlu.Entity) int {
	var want nlu.Role
	switch target {
	case nlu.SlotOrigin:
		want = nlu.RoleOrigin
	case nlu.SlotDestination:
		want = nlu.RoleDestination
	}
	untagged := -1
	for i, e := range entities {
		switch v := e.(type) {
		case nlu.AddressEntity:
			if want == "" {
				continue
			}
			if v.Role == want {
				return i
			}
			if v.Role == nlu.RoleNone && untagged < 0 {
				untagged = i
			}
		case nlu.PaymentEntity:
			if target == nlu.SlotPayment {
				return i
			}
		case nlu.TimeEntity:
			if target == nlu.SlotTime {
				return i
			}
		case nlu.ServiceTypeEntity:
			if target == nlu.SlotServiceType && !v.Ambiguous {
				return i
			}
		}
	}
	return untagged
}
