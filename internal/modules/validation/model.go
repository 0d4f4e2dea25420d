package validation

import (
	"fmt"

	"novobot/internal/modules/nlu"
)

type ErrorKind string

const (
	ErrTimeOutOfRange       ErrorKind = "time_out_of_range"
	ErrTimeFormat           ErrorKind = "time_format"
	ErrOutsideBusinessHours ErrorKind = "outside_business_hours"
	ErrAddressTooShort      ErrorKind = "address_too_short"
	ErrUnsupportedPayment   ErrorKind = "unsupported_payment"
)

// InputError is a hard failure: the slot value must be discarded and asked again.
type InputError struct {
	Kind    ErrorKind `json:"kind"`
	Slot    nlu.Slot  `json:"slot"`
	Value   string    `json:"value"`
	Example string    `json:"example"`
}

func (e InputError) Error() string {
	return fmt.Sprintf("%s: %s (%q)", e.Slot, e.Kind, e.Value)
}

// Note is a soft warning tied to the slot whose value raised it.
type Note struct {
	Slot nlu.Slot `json:"slot"`
	Text string   `json:"text"`
}

// Result collects hard errors and soft warnings for one turn. Notes holds
// the same warnings as Warnings, keyed by slot.
type Result struct {
	IsValid  bool         `json:"is_valid"`
	Errors   []InputError `json:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	Notes    []Note       `json:"-"`
}

func valid() Result { return Result{IsValid: true} }

func (r *Result) fail(e InputError) {
	r.IsValid = false
	r.Errors = append(r.Errors, e)
}

func (r *Result) warn(slot nlu.Slot, msg string) {
	r.Warnings = append(r.Warnings, msg)
	r.Notes = append(r.Notes, Note{Slot: slot, Text: msg})
}

func (r *Result) merge(o Result) {
	if !o.IsValid {
		r.IsValid = false
	}
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
	r.Notes = append(r.Notes, o.Notes...)
}

// FailedSlots lists the slots that carry a hard error, in error order.
func (r Result) FailedSlots() []nlu.Slot {
	var out []nlu.Slot
	seen := map[nlu.Slot]bool{}
	for _, e := range r.Errors {
		if !seen[e.Slot] {
			seen[e.Slot] = true
			out = append(out, e.Slot)
		}
	}
	return out
}

// Format examples shown in clarification replies.
const (
	ExampleTime    = "18:30, 6pm o a las 9"
	ExampleAddress = "1 de mayo 449, concordia"
	ExamplePayment = "efectivo, transferencia, tarjeta, débito o crédito"
)
