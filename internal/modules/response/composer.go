// README: Deterministic Spanish reply templates keyed by state, warnings and suggestions.
package response

import (
	"fmt"
	"strings"

	"novobot/internal/config"
	"novobot/internal/modules/dialogue"
	"novobot/internal/modules/nlu"
	"novobot/internal/modules/preference"
	"novobot/internal/modules/pricing"
	"novobot/internal/modules/validation"
)

// Input is everything a turn produced that the reply may mention.
type Input struct {
	State dialogue.State
	Slots dialogue.SlotSet
	// Finalized is the trip a Completed turn booked.
	Finalized        *dialogue.SlotSet
	Changed          []nlu.Slot
	StopsAdded       []string
	Intent           nlu.Intent
	Topic            nlu.Topic
	Validation       validation.Result
	Estimate         *pricing.Estimate
	Suggestions      []preference.Suggestion
	AmbiguousService bool
	// Carried are warnings from earlier turns that still apply to the trip.
	Carried []string
}

type Composer struct {
	tariff config.TariffConfig
	hours  config.ValidationConfig
}

func NewComposer(tariff config.TariffConfig, hours config.ValidationConfig) *Composer {
	return &Composer{tariff: tariff, hours: hours}
}

// Compose renders the reply. Output depends only on in.
func (c *Composer) Compose(in Input) string {
	switch in.State {
	case dialogue.StateGreeting:
		return Greeting
	case dialogue.StateCancelled:
		return Cancelled
	case dialogue.StateError:
		return TechError
	case dialogue.StateHelp:
		if in.Intent.Mood == nlu.MoodFrustrated {
			return join([]string{Frustrated, c.help(in.Slots)})
		}
		return c.help(in.Slots)
	case dialogue.StateCompleted:
		return c.completed(in)
	}

	var parts []string
	switch in.Intent.Mood {
	case nlu.MoodFrustrated:
		parts = append(parts, Frustrated)
	case nlu.MoodRushed:
		parts = append(parts, Rushed)
	}
	if len(in.Validation.Errors) > 0 {
		parts = append(parts, c.clarify(in.Validation.Errors))
	} else if in.Intent.Kind == nlu.IntentAskQuestion && len(in.Changed) == 0 {
		parts = append(parts, c.answer(in.Topic, in.Estimate))
	} else if e := echo(in); e != "" {
		parts = append(parts, e)
		// "desde X a Y, ¿aceptan mascotas?" gets the answer after the echo.
		if in.Intent.HasMultipleIntents() && in.Intent.Has(nlu.IntentAskQuestion) && in.Topic != "" && in.Topic != nlu.TopicGeneral {
			parts = append(parts, c.answer(in.Topic, in.Estimate))
		}
	} else if in.Intent.Kind == nlu.IntentConfirm && in.State != dialogue.StateReadyToConfirm {
		parts = append(parts, "Todavía me falta un dato.")
	}

	if in.State == dialogue.StateReadyToConfirm {
		parts = append(parts, c.summary(in.Slots, in.Estimate, in.Carried))
		parts = append(parts, joinLines(in.Validation.Warnings))
		parts = append(parts, Confirm)
		return join(parts)
	}

	parts = append(parts, joinLines(in.Validation.Warnings))
	if in.AmbiguousService {
		parts = append(parts, Ambiguous)
	} else if slot, ok := in.Slots.NextMissing(); ok {
		if in.Intent.Mood == nlu.MoodRushed && in.Slots.Origin == "" && in.Slots.Destination == "" && !hasSuggestion(in.Suggestions, slot) {
			parts = append(parts, BothAddresses)
		} else {
			parts = append(parts, ask(slot, in.Suggestions))
		}
	}
	return join(parts)
}

// Summary renders the trip block shown before confirmation.
func (c *Composer) Summary(s dialogue.SlotSet, est *pricing.Estimate, notes []string) string {
	return c.summary(s, est, notes)
}

func (c *Composer) completed(in Input) string {
	trip := in.Slots
	if in.Finalized != nil {
		trip = *in.Finalized
	}
	return join([]string{
		"¡Listo! Tu viaje quedó confirmado.",
		c.summary(trip, in.Estimate, in.Carried),
		"Te avisamos cuando el chofer esté en camino.",
	})
}

func (c *Composer) summary(s dialogue.SlotSet, est *pricing.Estimate, notes []string) string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("Origen", s.Origin)
	line("Destino", s.Destination)
	line("Paradas", strings.Join(s.IntermediateStops, ", "))
	line("Pago", s.PaymentMethod)
	line("Servicio", serviceLabel(s))
	var extras []string
	for _, sp := range s.SpecialServices {
		extras = append(extras, specialNames[sp])
	}
	line("Extras", strings.Join(extras, ", "))

	if est != nil {
		price := est.Total.String()
		if !est.Exact {
			price = "aprox. " + price
		}
		line("Precio estimado", fmt.Sprintf("%s (rango %s)", price, est.RangeLabel))
		var fees []string
		for _, sc := range est.Surcharges {
			fees = append(fees, fmt.Sprintf("%s +%s", surchargeNames[sc.Kind], sc.Amount.String()))
		}
		line("Cargos adicionales", strings.Join(fees, ", "))
	}
	if len(notes) > 0 {
		b.WriteString("Notas importantes:\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Composer) help(s dialogue.SlotSet) string {
	var b strings.Builder
	b.WriteString("Te ayudo con el proceso:\n")
	step := 1
	for _, slot := range dialogue.SlotOrder {
		if slot == nlu.SlotTime && s.ServiceType != nlu.ServiceReservation {
			continue
		}
		if !s.Has(slot) {
			fmt.Fprintf(&b, "%d. Ahora decime %s\n", step, helpHints[slot])
			break
		}
		fmt.Fprintf(&b, "%d. ✅ %s: %s\n", step, strings.ToUpper(slotNames[slot][:1])+slotNames[slot][1:], displayValue(s, slot))
		step++
	}
	if s.Complete() {
		fmt.Fprintf(&b, "%d. Solo confirmá el viaje\n", step)
	}
	b.WriteString("\nEn cualquier momento podés escribir \"cancelar\" para empezar de nuevo.")
	return b.String()
}

var helpHints = map[nlu.Slot]string{
	nlu.SlotOrigin:      "desde dónde salís (calle y número)",
	nlu.SlotDestination: "a dónde vas",
	nlu.SlotPayment:     "cómo pagás: efectivo, transferencia o tarjeta",
	nlu.SlotServiceType: "si lo querés ahora o para más tarde",
	nlu.SlotTime:        "a qué hora lo necesitás",
}

func (c *Composer) clarify(errs []validation.InputError) string {
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		tmpl, ok := clarifications[e.Kind]
		if !ok {
			tmpl = "Revisá el dato de " + slotNames[e.Slot] + " (%q). Por ejemplo: %s."
		}
		lines = append(lines, fmt.Sprintf(tmpl, e.Value, e.Example))
	}
	return strings.Join(lines, "\n")
}

func (c *Composer) answer(topic nlu.Topic, est *pricing.Estimate) string {
	switch topic {
	case nlu.TopicPricing:
		var b strings.Builder
		b.WriteString("Las tarifas dependen de la distancia:\n")
		lo := 0.0
		for _, bk := range c.tariff.Buckets {
			fmt.Fprintf(&b, "- de %.0f a %.0f km: $%d-$%d\n", lo, bk.MaxKm, bk.MinPrice, bk.MaxPrice)
			lo = bk.MaxKm
		}
		fmt.Fprintf(&b, "- más de %.0f km: +$%d por km\n", lo, c.tariff.PerKmBeyond)
		fmt.Fprintf(&b, "Adicionales: nocturno de %d a %d hs +$%d, mascota +$%d, taxi rosa +$%d.",
			c.tariff.NightStartHour, c.tariff.NightEndHour, c.tariff.NightSurcharge, c.tariff.PetSurcharge, c.tariff.PinkSurcharge)
		if est != nil {
			fmt.Fprintf(&b, "\nPara tu viaje calculamos %s.", est.Total.String())
		}
		return b.String()
	case nlu.TopicHours:
		return fmt.Sprintf("Los viajes inmediatos son de %d a %d hs. Fuera de ese horario podés reservar y lo confirmamos según disponibilidad.",
			c.hours.OpenHour, c.hours.CloseHour)
	}
	if a, ok := topicAnswers[topic]; ok {
		return a
	}
	return topicAnswers[nlu.TopicGeneral]
}

// echo repeats what this turn filled, e.g. "Perfecto, salís desde urquiza 300."
func echo(in Input) string {
	changed := map[nlu.Slot]bool{}
	for _, s := range in.Changed {
		changed[s] = true
	}
	var first nlu.Slot
	var frags []string
	add := func(slot nlu.Slot, frag string) {
		if first == "" {
			first = slot
		}
		frags = append(frags, frag)
	}

	s := in.Slots
	switch {
	case changed[nlu.SlotOrigin] && changed[nlu.SlotDestination]:
		add(nlu.SlotOrigin, fmt.Sprintf("de %s a %s", s.Origin, s.Destination))
	case changed[nlu.SlotOrigin]:
		add(nlu.SlotOrigin, "salís desde "+s.Origin)
	case changed[nlu.SlotDestination] && s.Origin != "":
		add(nlu.SlotDestination, fmt.Sprintf("vas de %s a %s", s.Origin, s.Destination))
	case changed[nlu.SlotDestination]:
		add(nlu.SlotDestination, "vas a "+s.Destination)
	}
	if changed[nlu.SlotPayment] {
		add(nlu.SlotPayment, "pagás con "+s.PaymentMethod)
	}
	if changed[nlu.SlotServiceType] {
		if s.ServiceType == nlu.ServiceImmediate {
			add(nlu.SlotServiceType, "lo pedimos para ahora")
		} else {
			add(nlu.SlotServiceType, "queda como reserva")
		}
	}
	switch {
	case changed[nlu.SlotTime] && s.Time != nil:
		add(nlu.SlotTime, "para las "+s.Time.String())
	case changed[nlu.SlotTime]:
		add(nlu.SlotTime, "sin la hora de reserva")
	}
	for _, stop := range in.StopsAdded {
		if first == "" {
			first = nlu.SlotOrigin
		}
		frags = append(frags, "con parada en "+stop)
	}
	if len(frags) == 0 {
		return ""
	}
	return leads[first] + ", " + strings.Join(frags, ", ") + "."
}

// ask returns the question for slot, or the matching suggestion when one exists.
func ask(slot nlu.Slot, suggestions []preference.Suggestion) string {
	for _, sg := range suggestions {
		if sg.Slot == slot {
			return sg.Message + " Respondé \"sí\" o decime otro."
		}
	}
	return questions[slot]
}

func hasSuggestion(suggestions []preference.Suggestion, slot nlu.Slot) bool {
	for _, sg := range suggestions {
		if sg.Slot == slot {
			return true
		}
	}
	return false
}

func serviceLabel(s dialogue.SlotSet) string {
	label := serviceNames[s.ServiceType]
	if s.ServiceType == nlu.ServiceReservation && s.Time != nil {
		label += " para las " + s.Time.String()
	}
	return label
}

func displayValue(s dialogue.SlotSet, slot nlu.Slot) string {
	if slot == nlu.SlotServiceType {
		return serviceNames[s.ServiceType]
	}
	return s.Value(slot)
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

func join(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
