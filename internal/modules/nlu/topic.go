package nlu

// Topic is what an AskQuestion utterance asks about.
type Topic string

const (
	TopicGeneral Topic = "general"
	TopicPricing Topic = "pricing"
	TopicZones   Topic = "zones"
	TopicDrivers Topic = "drivers"
	TopicLuggage Topic = "luggage"
	TopicHours   Topic = "hours"
	TopicPayment Topic = "payment"
)

// topicWords is checked in order; the first topic with a matching word wins.
var topicWords = []struct {
	topic Topic
	words []string
}{
	{TopicPricing, []string{"precio", "precios", "costo", "cuesta", "sale", "cuanto", "tarifa", "tarifas"}},
	{TopicZones, []string{"zona", "zonas", "cubren", "llegan", "llegar"}},
	{TopicDrivers, []string{"conductor", "conductores", "chofer", "choferes", "seguro", "verificado", "verificados"}},
	{TopicLuggage, []string{"equipaje", "valija", "valijas", "maleta", "maletas", "mascota", "mascotas", "perro", "gato"}},
	{TopicHours, []string{"horario", "horarios", "abierto", "abren", "disponible", "atienden"}},
	{TopicPayment, []string{"pago", "pagar", "efectivo", "tarjeta", "transferencia", "medios"}},
}

// QuestionTopic classifies a service question by keyword.
func QuestionTopic(text string) Topic {
	w := words(text)
	for _, t := range topicWords {
		for _, word := range t.words {
			if containsWord(w, word) {
				return t.topic
			}
		}
	}
	return TopicGeneral
}
