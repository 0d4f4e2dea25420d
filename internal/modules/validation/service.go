// README: Validation engine; hard input errors and soft domain warnings per slot.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"novobot/internal/config"
	"novobot/internal/maps"
	"novobot/internal/modules/dialogue"
	"novobot/internal/modules/nlu"
	"novobot/internal/types"
)

// Geocoder resolves an address for the service-area check.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (types.Place, error)
}

type Service struct {
	cfg config.ValidationConfig
	geo Geocoder
	log *zap.Logger
}

// NewService builds the engine. geo may be nil; the service-area check is skipped then.
func NewService(cfg config.ValidationConfig, geo Geocoder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, geo: geo, log: log}
}

// Input is everything one validation pass looks at.
type Input struct {
	Slots    dialogue.SlotSet
	Changed  []nlu.Slot
	Stops    []string
	Rejected []nlu.Rejected
	// Estimate is the current trip total, when known.
	Estimate *types.Money
	Now      time.Time
}

// Validate checks the changed slots plus any values the extractor rejected.
func (s *Service) Validate(ctx context.Context, in Input) Result {
	res := valid()
	res.merge(s.ValidateRejected(in.Rejected))

	changed := map[nlu.Slot]bool{}
	for _, slot := range in.Changed {
		changed[slot] = true
	}
	for _, slot := range in.Changed {
		switch slot {
		case nlu.SlotOrigin:
			res.merge(s.ValidateAddress(ctx, slot, in.Slots.Origin))
		case nlu.SlotDestination:
			res.merge(s.ValidateAddress(ctx, slot, in.Slots.Destination))
		case nlu.SlotPayment:
			res.merge(s.ValidatePayment(in.Slots.PaymentMethod, in.Estimate))
		case nlu.SlotServiceType:
			res.merge(s.ValidateService(in.Slots.ServiceType, in.Now))
			// A reservation picked after the hour was given re-checks the hour.
			if in.Slots.Time != nil && !changed[nlu.SlotTime] {
				res.merge(s.ValidateTime(*in.Slots.Time, in.Slots.ServiceType, in.Now))
			}
		case nlu.SlotTime:
			if in.Slots.Time != nil {
				res.merge(s.ValidateTime(*in.Slots.Time, in.Slots.ServiceType, in.Now))
			}
		}
	}
	for _, stop := range in.Stops {
		res.merge(s.ValidateAddress(ctx, nlu.SlotStop, stop))
	}
	return res
}

// ValidateRejected turns values the extractor could not accept into input errors.
func (s *Service) ValidateRejected(rejected []nlu.Rejected) Result {
	res := valid()
	for _, r := range rejected {
		switch r.Kind {
		case nlu.KindTime:
			kind := ErrTimeFormat
			if errors.Is(r.Err, nlu.ErrHourOutOfRange) || errors.Is(r.Err, nlu.ErrMinuteOutOfRange) {
				kind = ErrTimeOutOfRange
			}
			res.fail(InputError{Kind: kind, Slot: nlu.SlotTime, Value: r.Raw, Example: ExampleTime})
		default:
			s.log.Debug("ignoring rejected entity", zap.String("kind", string(r.Kind)), zap.String("raw", r.Raw))
		}
	}
	return res
}

// ValidateTime checks a clock value against the service type and the current time.
func (s *Service) ValidateTime(t dialogue.TimeSlot, svc nlu.ServiceType, now time.Time) Result {
	res := valid()
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		res.fail(InputError{Kind: ErrTimeOutOfRange, Slot: nlu.SlotTime, Value: t.String(), Example: ExampleTime})
		return res
	}
	if svc != nlu.ServiceReservation {
		return res
	}
	if !s.withinHours(t.Hour) {
		res.warn(nlu.SlotTime, fmt.Sprintf("Nuestro horario habitual es de %d a %d hs; una reserva a las %s queda sujeta a disponibilidad.",
			s.cfg.OpenHour, s.cfg.CloseHour, t.String()))
	}

	lead := PickupAt(t, now).Sub(now)
	switch {
	case lead < time.Duration(s.cfg.MinLeadMinutes)*time.Minute:
		res.warn(nlu.SlotTime, fmt.Sprintf("Faltan menos de %d minutos para esa hora; si querés te lo mando ahora como viaje inmediato.", s.cfg.MinLeadMinutes))
	case lead > time.Duration(s.cfg.MaxLeadHours)*time.Hour:
		res.warn(nlu.SlotTime, fmt.Sprintf("Con más de %d horas de anticipación no podemos garantizar la disponibilidad; te confirmamos el día anterior.", s.cfg.MaxLeadHours))
	}
	return res
}

// ValidateService rejects immediate trips outside business hours.
func (s *Service) ValidateService(svc nlu.ServiceType, now time.Time) Result {
	res := valid()
	if svc == nlu.ServiceImmediate && !s.withinHours(now.Hour()) {
		res.fail(InputError{
			Kind:    ErrOutsideBusinessHours,
			Slot:    nlu.SlotServiceType,
			Value:   now.Format("15:04"),
			Example: fmt.Sprintf("una reserva entre las %d y las %d hs", s.cfg.OpenHour, s.cfg.CloseHour),
		})
	}
	return res
}

// ValidateAddress applies length and number checks plus the service-area radius.
func (s *Service) ValidateAddress(ctx context.Context, slot nlu.Slot, addr string) Result {
	res := valid()
	addr = strings.TrimSpace(addr)
	n := utf8.RuneCountInString(addr)
	if n < s.cfg.MinAddressLen {
		res.fail(InputError{Kind: ErrAddressTooShort, Slot: slot, Value: addr, Example: ExampleAddress})
		return res
	}
	if n > s.cfg.MaxAddressLen {
		res.warn(slot, "La dirección quedó muy larga; revisá que esté bien escrita.")
	}
	if !strings.ContainsFunc(addr, unicode.IsDigit) {
		res.warn(slot, fmt.Sprintf("¿Me pasás la altura de %s? Así el chofer te encuentra más rápido.", addr))
	}

	if s.geo == nil {
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.GeocodeTimeoutMs)*time.Millisecond)
	defer cancel()
	place, err := s.geo.Lookup(ctx, addr)
	if err != nil {
		s.log.Debug("geocode skipped", zap.String("address", addr), zap.Error(err))
		return res
	}
	center := types.Point{Lat: s.cfg.CenterLat, Lng: s.cfg.CenterLng}
	if km := maps.HaversineKm(center, place.Location); km > s.cfg.RadiusKm {
		res.warn(slot, fmt.Sprintf("%s queda a %.1f km del centro, fuera de nuestra zona habitual (%.0f km). Puede tener un costo adicional.",
			addr, km, s.cfg.RadiusKm))
	}
	return res
}

// ValidatePayment enforces the closed payment vocabulary.
func (s *Service) ValidatePayment(method string, estimate *types.Money) Result {
	res := valid()
	if !nlu.IsPaymentMethod(method) {
		res.fail(InputError{Kind: ErrUnsupportedPayment, Slot: nlu.SlotPayment, Value: method, Example: ExamplePayment})
		return res
	}
	switch method {
	case nlu.PaymentCash:
		if estimate != nil && estimate.Amount > s.cfg.CashWarningThreshold {
			res.warn(nlu.SlotPayment, fmt.Sprintf("Para viajes de más de $%d te recomendamos transferencia o tarjeta; el chofer puede no tener cambio.", s.cfg.CashWarningThreshold))
		}
	case nlu.PaymentTransfer:
		res.warn(nlu.SlotPayment, "La transferencia se hace antes del viaje; te pasamos los datos al confirmar.")
	}
	return res
}

func (s *Service) withinHours(hour int) bool {
	return hour >= s.cfg.OpenHour && hour < s.cfg.CloseHour
}

// PickupAt resolves a clock value to an instant. A same-day time that has already
// passed rolls over to the next day.
func PickupAt(t dialogue.TimeSlot, now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day()+t.DayOffset, t.Hour, t.Minute, 0, 0, now.Location())
	if t.DayOffset == 0 && at.Before(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
