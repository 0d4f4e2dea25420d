package response

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"novobot/internal/config"
	"novobot/internal/modules/dialogue"
	"novobot/internal/modules/nlu"
	"novobot/internal/modules/preference"
	"novobot/internal/modules/pricing"
	"novobot/internal/modules/validation"
	"novobot/internal/types"
)

func newComposer() *Composer {
	cfg := config.Defaults()
	return NewComposer(cfg.Tariff, cfg.Validation)
}

func fullTrip() dialogue.SlotSet {
	return dialogue.SlotSet{
		Origin:        "urquiza 300",
		Destination:   "terminal de omnibus",
		PaymentMethod: "efectivo",
		ServiceType:   nlu.ServiceImmediate,
	}
}

func TestComposeGreetingIsBare(t *testing.T) {
	got := newComposer().Compose(Input{State: dialogue.StateGreeting})
	assert.Equal(t, "Buenass", got)
}

func TestComposeCancelled(t *testing.T) {
	got := newComposer().Compose(Input{State: dialogue.StateCancelled})
	assert.Equal(t, Cancelled, got)
}

func TestComposeEchoThenAsk(t *testing.T) {
	in := Input{
		State:   dialogue.StateCollectingDestination,
		Slots:   dialogue.SlotSet{Origin: "urquiza 300"},
		Changed: []nlu.Slot{nlu.SlotOrigin},
		Intent:  nlu.Intent{Kind: nlu.IntentProvideAddress},
	}
	got := newComposer().Compose(in)
	assert.Equal(t, "Perfecto, salís desde urquiza 300.\n\n¿A dónde vas?", got)
}

func TestComposeEchoesDroppedReservationTime(t *testing.T) {
	in := Input{
		State:   dialogue.StateReadyToConfirm,
		Slots:   fullTrip(),
		Changed: []nlu.Slot{nlu.SlotServiceType, nlu.SlotTime},
		Intent:  nlu.Intent{Kind: nlu.IntentCorrection},
	}
	got := newComposer().Compose(in)
	assert.Contains(t, got, "lo pedimos para ahora, sin la hora de reserva.")
}

func TestComposeNeverReasksFilledSlots(t *testing.T) {
	slots := dialogue.SlotSet{Origin: "urquiza 300", Destination: "terminal de omnibus"}
	in := Input{
		State:   dialogue.StateCollectingPayment,
		Slots:   slots,
		Changed: []nlu.Slot{nlu.SlotOrigin, nlu.SlotDestination},
	}
	got := newComposer().Compose(in)
	assert.NotContains(t, got, questions[nlu.SlotOrigin])
	assert.NotContains(t, got, questions[nlu.SlotDestination])
	assert.Contains(t, got, "de urquiza 300 a terminal de omnibus")
	assert.True(t, strings.HasSuffix(got, questions[nlu.SlotPayment]))
}

func TestComposeReadyToConfirmSummary(t *testing.T) {
	est := &pricing.Estimate{
		BasePrice:  types.ARS(1000),
		Bucket:     "medium",
		Total:      types.ARS(1000),
		RangeLabel: "$800-$1200",
		DistanceKm: 3.5,
	}
	in := Input{
		State:    dialogue.StateReadyToConfirm,
		Slots:    fullTrip(),
		Changed:  []nlu.Slot{nlu.SlotServiceType},
		Estimate: est,
	}
	got := newComposer().Compose(in)
	assert.Contains(t, got, "Origen: urquiza 300")
	assert.Contains(t, got, "Destino: terminal de omnibus")
	assert.Contains(t, got, "Pago: efectivo")
	assert.Contains(t, got, "Servicio: Inmediato")
	assert.Contains(t, got, "Precio estimado: aprox. $1000 (rango $800-$1200)")
	assert.True(t, strings.HasSuffix(got, Confirm))
}

func TestComposeSummaryReservationAndSurcharges(t *testing.T) {
	slots := fullTrip()
	slots.ServiceType = nlu.ServiceReservation
	slots.Time = &dialogue.TimeSlot{Hour: 18, Minute: 30}
	slots.SpecialServices = []nlu.SpecialService{nlu.SpecialPet}
	est := &pricing.Estimate{
		Total:      types.ARS(1200),
		RangeLabel: "$800-$1200",
		Surcharges: []pricing.Surcharge{{Kind: pricing.SurchargePet, Amount: types.ARS(200)}},
		Exact:      true,
	}
	got := newComposer().Summary(slots, est, []string{"Las transferencias se confirman antes del viaje."})
	assert.Contains(t, got, "Servicio: Reserva para las 18:30")
	assert.Contains(t, got, "Extras: mascota")
	assert.Contains(t, got, "Precio estimado: $1200 (rango $800-$1200)")
	assert.Contains(t, got, "Cargos adicionales: mascota +$200")
	assert.Contains(t, got, "Notas importantes:\n- Las transferencias")
}

func TestComposeClarifications(t *testing.T) {
	tests := []struct {
		name string
		err  validation.InputError
		want []string
		next string
	}{
		{
			name: "time out of range",
			err:  validation.InputError{Kind: validation.ErrTimeOutOfRange, Slot: nlu.SlotTime, Value: "25:00", Example: validation.ExampleTime},
			want: []string{"25:00", validation.ExampleTime},
			next: questions[nlu.SlotTime],
		},
		{
			name: "unsupported payment",
			err:  validation.InputError{Kind: validation.ErrUnsupportedPayment, Slot: nlu.SlotPayment, Value: "bitcoin", Example: validation.ExamplePayment},
			want: []string{"bitcoin", validation.ExamplePayment},
			next: questions[nlu.SlotPayment],
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := dialogue.SlotSet{Origin: "urquiza 300", Destination: "terminal de omnibus"}
			state := dialogue.StateCollectingPayment
			if tt.err.Slot == nlu.SlotTime {
				slots.PaymentMethod = "efectivo"
				slots.ServiceType = nlu.ServiceReservation
				state = dialogue.StateCollectingTime
			}
			in := Input{
				State:      state,
				Slots:      slots,
				Validation: validation.Result{Errors: []validation.InputError{tt.err}},
			}
			got := newComposer().Compose(in)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			assert.True(t, strings.HasSuffix(got, tt.next), got)
		})
	}
}

func TestComposeSuggestionReplacesQuestion(t *testing.T) {
	in := Input{
		State: dialogue.StateCollectingOrigin,
		Suggestions: []preference.Suggestion{
			{Slot: nlu.SlotOrigin, Value: "urquiza 300", Message: "¿Salís desde urquiza 300?", Confidence: 0.8},
		},
	}
	got := newComposer().Compose(in)
	assert.Contains(t, got, "¿Salís desde urquiza 300?")
	assert.NotContains(t, got, questions[nlu.SlotOrigin])
}

func TestComposeAmbiguousService(t *testing.T) {
	in := Input{
		State:            dialogue.StateCollectingServiceType,
		Slots:            dialogue.SlotSet{Origin: "urquiza 300", Destination: "terminal de omnibus", PaymentMethod: "efectivo"},
		AmbiguousService: true,
	}
	got := newComposer().Compose(in)
	assert.Equal(t, Ambiguous, got)
}

func TestComposeWarningsAppended(t *testing.T) {
	in := Input{
		State:      dialogue.StateCollectingDestination,
		Slots:      dialogue.SlotSet{Origin: "la plaza"},
		Changed:    []nlu.Slot{nlu.SlotOrigin},
		Validation: validation.Result{IsValid: true, Warnings: []string{"¿Me pasás la altura de la plaza?"}},
	}
	got := newComposer().Compose(in)
	assert.Contains(t, got, "¿Me pasás la altura de la plaza?")
	assert.True(t, strings.HasSuffix(got, questions[nlu.SlotDestination]))
}

func TestComposeQuestionAnswers(t *testing.T) {
	c := newComposer()

	pricingAnswer := c.Compose(Input{
		State:  dialogue.StateCollectingOrigin,
		Intent: nlu.Intent{Kind: nlu.IntentAskQuestion},
		Topic:  nlu.TopicPricing,
	})
	assert.Contains(t, pricingAnswer, "$500-$800")
	assert.Contains(t, pricingAnswer, "+$100 por km")
	assert.True(t, strings.HasSuffix(pricingAnswer, questions[nlu.SlotOrigin]))

	hours := c.Compose(Input{
		State:  dialogue.StateCollectingOrigin,
		Intent: nlu.Intent{Kind: nlu.IntentAskQuestion},
		Topic:  nlu.TopicHours,
	})
	assert.Contains(t, hours, "de 6 a 23 hs")
}

func TestComposeMoodLeads(t *testing.T) {
	c := newComposer()

	got := c.Compose(Input{
		State:  dialogue.StateCollectingOrigin,
		Intent: nlu.Intent{Kind: nlu.IntentTaxiRequest, Mood: nlu.MoodRushed},
	})
	assert.Equal(t, Rushed+"\n\n"+BothAddresses, got)

	got = c.Compose(Input{
		State:   dialogue.StateCollectingPayment,
		Slots:   dialogue.SlotSet{Origin: "urquiza 300", Destination: "diamante 2500"},
		Changed: []nlu.Slot{nlu.SlotDestination},
		Intent:  nlu.Intent{Kind: nlu.IntentProvideAddress, Mood: nlu.MoodFrustrated},
	})
	assert.True(t, strings.HasPrefix(got, Frustrated), got)
	assert.Contains(t, got, "¿Cómo querés pagarlo?")

	got = c.Compose(Input{
		State:  dialogue.StateHelp,
		Intent: nlu.Intent{Kind: nlu.IntentRequestHelp, Mood: nlu.MoodFrustrated},
	})
	assert.True(t, strings.HasPrefix(got, Frustrated), got)
}

func TestComposeAnswersEmbeddedQuestion(t *testing.T) {
	in := Input{
		State:   dialogue.StateCollectingPayment,
		Slots:   dialogue.SlotSet{Origin: "urquiza 300", Destination: "diamante 2500"},
		Changed: []nlu.Slot{nlu.SlotOrigin, nlu.SlotDestination},
		Intent: nlu.Intent{
			Kind:      nlu.IntentProvideAddress,
			Secondary: []nlu.IntentKind{nlu.IntentAskQuestion},
		},
		Topic: nlu.TopicHours,
	}
	got := newComposer().Compose(in)
	assert.Contains(t, got, "de urquiza 300 a diamante 2500")
	assert.Contains(t, got, "de 6 a 23 hs")
	assert.Contains(t, got, "¿Cómo querés pagarlo?")

	in.Intent.Secondary = nil
	assert.NotContains(t, newComposer().Compose(in), "de 6 a 23 hs")
}

func TestComposeHelpShowsProgress(t *testing.T) {
	got := newComposer().Compose(Input{
		State: dialogue.StateHelp,
		Slots: dialogue.SlotSet{Origin: "urquiza 300"},
	})
	assert.Contains(t, got, "1. ✅ Origen: urquiza 300")
	assert.Contains(t, got, "2. Ahora decime a dónde vas")
}

func TestComposeCompletedUsesFinalizedTrip(t *testing.T) {
	trip := fullTrip()
	got := newComposer().Compose(Input{
		State:     dialogue.StateCompleted,
		Finalized: &trip,
	})
	assert.Contains(t, got, "¡Listo!")
	assert.Contains(t, got, "Pago: efectivo")
}

func TestComposeIsDeterministic(t *testing.T) {
	in := Input{
		State:   dialogue.StateReadyToConfirm,
		Slots:   fullTrip(),
		Changed: []nlu.Slot{nlu.SlotPayment},
	}
	c := newComposer()
	assert.Equal(t, c.Compose(in), c.Compose(in))
}
