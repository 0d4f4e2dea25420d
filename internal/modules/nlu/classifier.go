// README: IntentClassifier; lexical overlap scoring with greeting short-circuit.
package nlu

import (
	"math"
	"regexp"
	"strings"
)

// MultiIntentThreshold is the confidence an intent needs to count as present.
const MultiIntentThreshold = 0.5

// priority breaks confidence ties; earlier wins.
var priority = []IntentKind{
	IntentCorrection,
	IntentTaxiRequest,
	IntentProvideAddress,
	IntentSpecifyPayment,
	IntentSpecifyTime,
	IntentAskQuestion,
	IntentConfirm,
	IntentCancel,
	IntentRequestHelp,
	IntentGreeting,
}

type structuralRule struct {
	re    *regexp.Regexp
	score float64
	// slotGroup is the submatch naming the corrected slot, 0 when none.
	slotGroup int
	// reject drops a match whose first group is a reserved word.
	reject map[string]bool
}

type intentRule struct {
	phrases    []string
	structural []structuralRule
}

var greetingPhrases = []string{
	"hola", "holis", "holaa", "buenas", "buenass", "buen dia", "buenos dias", "buenas tardes",
	"buenas noches", "que tal", "saludos", "hey",
}

var tripKeywords = []string{
	"taxi", "remis", "viaje", "viajar", "pedir", "necesito", "quiero", "busco", "solicitar", "desde",
	"hasta", "llevar", "llevame", "voy", "destino", "origen", "reserva", "reservar", "pagar", "pago",
	"efectivo", "tarjeta", "ayuda", "cancelar",
}

var intentRules = map[IntentKind]intentRule{
	IntentCorrection: {
		structural: []structuralRule{
			{re: regexp.MustCompile(`\b(?:el|mi|la)\s+(origen|destino|pago|forma de pago|medio de pago|hora|horario)\s+(?:es|era|seria|sera|va a ser)\b`), score: 0.95, slotGroup: 1},
			{re: regexp.MustCompile(`\bcambi(?:ar|a|o|emos|ame)\s+(?:el\s+|la\s+|mi\s+)?(origen|destino|pago|forma de pago|medio de pago|hora|horario|direccion)\b`), score: 0.95, slotGroup: 1},
			{re: regexp.MustCompile(`\b(?:me equivoque|corrijo|correccion|en realidad|perdon es|perdon era)\b`), score: 0.8},
			{re: regexp.MustCompile(`\b(?:mejor|prefiero|en vez de|en lugar de)\b`), score: 0.7},
		},
	},
	IntentTaxiRequest: {
		phrases: []string{
			"necesito un taxi", "quiero un taxi", "pedir un taxi", "pedir taxi", "necesito un remis",
			"quiero un remis", "un taxi", "taxi", "remis", "mandame un taxi", "me mandas un taxi",
			"necesito un viaje", "quiero viajar", "necesito viajar", "reservar un taxi", "reservar taxi",
			"solicitar un taxi", "solicito un taxi", "llevame", "necesito ir", "quiero ir",
		},
	},
	IntentProvideAddress: {
		phrases: []string{
			"desde", "hasta", "voy a", "vamos a", "salgo de", "estoy en", "origen", "destino", "direccion",
			"calle", "avenida", "hacia", "rumbo a", "mi casa", "pasando por",
		},
		structural: []structuralRule{
			{re: regexp.MustCompile(`\b([a-z]{3,})\s+\d{2,5}\b`), score: 0.8, reject: streetStop},
		},
	},
	IntentSpecifyPayment: {
		phrases: append([]string{
			"pago", "pagar", "pagas", "pagaria", "efectivo", "transferencia", "transfiero", "tarjeta",
			"debito", "credito", "mercado pago", "cash", "con tarjeta", "en efectivo",
		}, unsupportedPayments...),
	},
	IntentSpecifyTime: {
		phrases: []string{
			"a las", "para las", "ahora", "ahora mismo", "inmediato", "urgente", "ya", "reserva", "reservar",
			"mas tarde", "manana", "pasado manana", "hs", "horas", "lo antes posible", "cuanto antes", "hoy",
			"programar", "despues",
		},
		structural: []structuralRule{
			{re: regexp.MustCompile(`\b\d{1,2}(?::\d{2})?\s*(?:am|pm|hs|h|horas)\b|\b\d{1,2}:\d{2}\b`), score: 0.85},
		},
	},
	IntentAskQuestion: {
		phrases: []string{
			"precio", "tarifa", "cuanto", "cuanto sale", "cuanto cuesta", "cuanto es", "cuesta", "costo",
			"aceptan", "puedo", "se puede", "llevan", "mascota", "equipaje", "valija", "demora", "tarda",
			"cuanto tarda",
		},
	},
	IntentConfirm: {
		phrases: []string{
			"si", "sip", "confirmo", "confirmar", "confirmado", "ok", "okay", "oka", "dale", "perfecto", "listo",
			"correcto", "de acuerdo", "bueno", "exacto", "afirmativo", "genial", "claro", "va", "joya",
			"buenisimo", "si confirmo", "esta bien",
		},
	},
	IntentCancel: {
		phrases: []string{
			"cancelar", "cancela", "cancelo", "cancelalo", "no gracias", "me arrepenti", "no quiero",
			"olvidalo", "olvidate", "dejalo", "anular", "anula", "no", "nada",
		},
	},
	IntentRequestHelp: {
		phrases: []string{
			"ayuda", "help", "no entiendo", "como funciona", "opciones", "menu", "que puedo hacer", "info",
			"informacion", "no se como",
		},
	},
	IntentGreeting: {
		phrases: greetingPhrases,
	},
}

var correctionTargets = map[string]Slot{
	"origen":        SlotOrigin,
	"destino":       SlotDestination,
	"pago":          SlotPayment,
	"forma de pago": SlotPayment,
	"medio de pago": SlotPayment,
	"hora":          SlotTime,
	"horario":       SlotTime,
}

// Classifier assigns a primary intent and any secondary intents to one utterance.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

type scored struct {
	conf     float64
	patterns []string
	target   Slot
}

// Classify scores every intent rule against text. A greeting with no trip
// vocabulary short-circuits to Greeting at full confidence.
func (c *Classifier) Classify(text string) Intent {
	in := c.classify(text)
	in.Mood = AnalyzeSentiment(text).Mood
	return in
}

func (c *Classifier) classify(text string) Intent {
	w := words(text)
	plain := strings.TrimSpace(w)
	if plain == "" {
		return Intent{Kind: IntentUnknown}
	}

	if g := matchedPhrases(w, greetingPhrases); len(g) > 0 && !hasTripVocabulary(w) {
		return Intent{Kind: IntentGreeting, Confidence: 1, Patterns: g}
	}

	scores := make(map[IntentKind]scored, len(intentRules))
	for kind, rule := range intentRules {
		s := scoreRule(w, plain, rule)
		if s.conf > 0 {
			scores[kind] = s
		}
	}
	if strings.Contains(text, "?") {
		s := scores[IntentAskQuestion]
		if s.conf < 0.6 {
			s.conf = 0.6
		}
		s.patterns = append(s.patterns, "?")
		scores[IntentAskQuestion] = s
	}

	best := Intent{Kind: IntentUnknown}
	for _, kind := range priority {
		s, ok := scores[kind]
		if ok && s.conf > best.Confidence {
			best = Intent{Kind: kind, Confidence: s.conf, Patterns: s.patterns, Target: s.target}
		}
	}
	for _, kind := range priority {
		if kind == best.Kind {
			continue
		}
		if s, ok := scores[kind]; ok && s.conf >= MultiIntentThreshold && best.Confidence >= MultiIntentThreshold {
			best.Secondary = append(best.Secondary, kind)
		}
	}
	return best
}

func scoreRule(w, plain string, rule intentRule) scored {
	var s scored
	total := float64(runeLen(plain))
	for _, p := range rule.phrases {
		if !containsWord(w, p) {
			continue
		}
		s.patterns = append(s.patterns, p)
		if conf := math.Min(1, 2*float64(runeLen(p))/total); conf > s.conf {
			s.conf = conf
		}
	}
	for _, r := range rule.structural {
		m := firstAccepted(r, plain)
		if m == nil {
			continue
		}
		s.patterns = append(s.patterns, m[0])
		if r.score > s.conf {
			s.conf = r.score
			s.target = ""
			if r.slotGroup > 0 {
				s.target = correctionTargets[m[r.slotGroup]]
			}
		}
	}
	return s
}

func firstAccepted(r structuralRule, plain string) []string {
	for _, m := range r.re.FindAllStringSubmatch(plain, -1) {
		if r.reject != nil && len(m) > 1 && r.reject[m[1]] {
			continue
		}
		return m
	}
	return nil
}

func matchedPhrases(w string, phrases []string) []string {
	var out []string
	for _, p := range phrases {
		if containsWord(w, p) {
			out = append(out, p)
		}
	}
	return out
}

func hasTripVocabulary(w string) bool {
	if strings.ContainsAny(w, "0123456789") {
		return true
	}
	return len(matchedPhrases(w, tripKeywords)) > 0
}

var declines = map[string]bool{"no": true, "nop": true, "no gracias": true, "otro": true, "otra": true, "no otro": true, "no otra": true}

// IsDecline reports whether the whole utterance is a bare "no" to an offered
// value, as opposed to cancelling the trip.
func IsDecline(text string) bool {
	return declines[strings.TrimSpace(words(text))]
}
