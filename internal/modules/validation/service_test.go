package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novobot/internal/config"
	"novobot/internal/modules/dialogue"
	"novobot/internal/modules/nlu"
	"novobot/internal/types"
)

var afternoon = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type fakeGeocoder struct {
	place types.Place
	err   error
	calls int
}

func (f *fakeGeocoder) Lookup(ctx context.Context, address string) (types.Place, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return types.Place{}, errors.New("lookup without deadline")
	}
	return f.place, f.err
}

func newTestService(geo Geocoder) *Service {
	return NewService(config.Defaults().Validation, geo, nil)
}

func TestValidate_RejectedTimeBecomesInputError(t *testing.T) {
	svc := newTestService(nil)
	ex := nlu.NewExtractor().Extract("a las 25:00")

	res := svc.Validate(context.Background(), Input{Rejected: ex.Rejected, Now: afternoon})

	require.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, nlu.SlotTime, res.Errors[0].Slot)
	assert.Equal(t, ErrTimeOutOfRange, res.Errors[0].Kind)
	assert.Equal(t, ExampleTime, res.Errors[0].Example)
}

func TestValidateTime_AcceptsWellFormedReservations(t *testing.T) {
	svc := newTestService(nil)
	for _, utterance := range []string{"a las 18:30", "a las 6pm"} {
		ex := nlu.NewExtractor().Extract(utterance)
		require.Len(t, ex.Entities, 1, utterance)
		te := ex.Entities[0].(nlu.TimeEntity)

		res := svc.ValidateTime(dialogue.TimeSlot{Hour: te.Hour, Minute: te.Minute}, nlu.ServiceReservation, afternoon)
		assert.True(t, res.IsValid, utterance)
		assert.Empty(t, res.Errors, utterance)
		assert.Empty(t, res.Warnings, utterance)
	}
}

func TestValidateTime_Warnings(t *testing.T) {
	svc := newTestService(nil)

	tests := []struct {
		name string
		slot dialogue.TimeSlot
		want string
	}{
		{name: "less than 30 minutes ahead", slot: dialogue.TimeSlot{Hour: 14, Minute: 15}, want: "menos de 30 minutos"},
		{name: "more than a day ahead", slot: dialogue.TimeSlot{Hour: 18, DayOffset: 2}, want: "más de 24 horas"},
		{name: "outside business hours", slot: dialogue.TimeSlot{Hour: 23, Minute: 30}, want: "horario habitual"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.ValidateTime(tt.slot, nlu.ServiceReservation, afternoon)
			assert.True(t, res.IsValid, "warnings never block")
			require.NotEmpty(t, res.Warnings)
			assert.Contains(t, res.Warnings[0], tt.want)
		})
	}
}

func TestValidateTime_PassedHourRollsToTomorrow(t *testing.T) {
	at := PickupAt(dialogue.TimeSlot{Hour: 9}, afternoon)
	assert.Equal(t, 11, at.Day())
	assert.Equal(t, 9, at.Hour())

	res := newTestService(nil).ValidateTime(dialogue.TimeSlot{Hour: 9}, nlu.ServiceReservation, afternoon)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Warnings, "19 hours ahead is inside the window")
}

func TestValidateService_ImmediateOutsideHours(t *testing.T) {
	svc := newTestService(nil)
	night := time.Date(2026, 3, 10, 23, 40, 0, 0, time.UTC)

	res := svc.ValidateService(nlu.ServiceImmediate, night)
	require.False(t, res.IsValid)
	assert.Equal(t, ErrOutsideBusinessHours, res.Errors[0].Kind)
	assert.Equal(t, nlu.SlotServiceType, res.Errors[0].Slot)

	assert.True(t, svc.ValidateService(nlu.ServiceImmediate, afternoon).IsValid)
	assert.True(t, svc.ValidateService(nlu.ServiceReservation, night).IsValid)
}

func TestValidateAddress(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	res := svc.ValidateAddress(ctx, nlu.SlotOrigin, "abc")
	require.False(t, res.IsValid)
	assert.Equal(t, ErrAddressTooShort, res.Errors[0].Kind)
	assert.Equal(t, ExampleAddress, res.Errors[0].Example)

	res = svc.ValidateAddress(ctx, nlu.SlotOrigin, "la terminal")
	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "altura")

	res = svc.ValidateAddress(ctx, nlu.SlotDestination, "1 de mayo 449")
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Warnings)
}

func TestValidateAddress_ServiceArea(t *testing.T) {
	far := &fakeGeocoder{place: types.Place{Location: types.Point{Lat: -31.7319, Lng: -60.5238}}}
	res := newTestService(far).ValidateAddress(context.Background(), nlu.SlotDestination, "urquiza 300, parana")
	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "fuera de nuestra zona")
	assert.Equal(t, 1, far.calls)

	near := &fakeGeocoder{place: types.Place{Location: types.Point{Lat: -31.40, Lng: -58.03}}}
	res = newTestService(near).ValidateAddress(context.Background(), nlu.SlotDestination, "urquiza 300")
	assert.Empty(t, res.Warnings)

	broken := &fakeGeocoder{err: errors.New("timeout")}
	res = newTestService(broken).ValidateAddress(context.Background(), nlu.SlotDestination, "urquiza 300")
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Warnings, "geocoder failures are skipped")
}

func TestValidatePayment(t *testing.T) {
	svc := newTestService(nil)

	ex := nlu.NewExtractor().Extract("pago con bitcoin")
	require.Len(t, ex.Entities, 1)
	pe := ex.Entities[0].(nlu.PaymentEntity)
	res := svc.ValidatePayment(pe.Method, nil)
	require.False(t, res.IsValid)
	assert.Equal(t, ErrUnsupportedPayment, res.Errors[0].Kind)
	assert.Equal(t, nlu.SlotPayment, res.Errors[0].Slot)

	res = svc.ValidatePayment(nlu.PaymentCash, nil)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Warnings)

	big := types.ARS(6200)
	res = svc.ValidatePayment(nlu.PaymentCash, &big)
	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "$5000")

	res = svc.ValidatePayment(nlu.PaymentTransfer, nil)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "antes del viaje")
}

func TestValidate_OnlyChangedSlots(t *testing.T) {
	svc := newTestService(nil)
	slots := dialogue.SlotSet{Origin: "abc", Destination: "diamante 2500", PaymentMethod: "bitcoin"}

	res := svc.Validate(context.Background(), Input{Slots: slots, Changed: []nlu.Slot{nlu.SlotDestination}, Now: afternoon})
	assert.True(t, res.IsValid)

	res = svc.Validate(context.Background(), Input{
		Slots:   slots,
		Changed: []nlu.Slot{nlu.SlotOrigin, nlu.SlotPayment},
		Now:     afternoon,
	})
	assert.False(t, res.IsValid)
	assert.Equal(t, []nlu.Slot{nlu.SlotOrigin, nlu.SlotPayment}, res.FailedSlots())
}

func TestValidate_ReservationAfterTimeRechecksHour(t *testing.T) {
	svc := newTestService(nil)
	slots := dialogue.SlotSet{ServiceType: nlu.ServiceReservation, Time: &dialogue.TimeSlot{Hour: 14, Minute: 10}}

	res := svc.Validate(context.Background(), Input{Slots: slots, Changed: []nlu.Slot{nlu.SlotServiceType}, Now: afternoon})
	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "menos de 30 minutos")
}

func TestValidate_Stops(t *testing.T) {
	res := newTestService(nil).Validate(context.Background(), Input{Stops: []string{"x"}, Now: afternoon})
	require.False(t, res.IsValid)
	assert.Equal(t, nlu.SlotStop, res.Errors[0].Slot)
}
