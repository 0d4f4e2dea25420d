package response

import (
	"novobot/internal/modules/nlu"
	"novobot/internal/modules/pricing"
	"novobot/internal/modules/validation"
)

const (
	Greeting  = "Buenass"
	Cancelled = "Ok, cancelado. Si necesitás algo más, avisame."
	TechError = "Disculpá, hubo un problema técnico. ¿Podrías intentar de nuevo?"
	TryAgain  = "Estoy procesando tu mensaje anterior. Mandame de nuevo en un momento."
	Confirm   = "¿Confirmás este viaje?"
	Ambiguous = "No me quedó claro: ¿lo querés ahora o es una reserva para más tarde?"

	Frustrated = "Entiendo que puede ser frustrante. Te ayudo paso a paso."
	Rushed     = "Entiendo que es urgente, vamos rápido."
	// BothAddresses asks for origin and destination at once when the user is in a hurry.
	BothAddresses = "¿Desde dónde y a dónde vas?"
)

var questions = map[nlu.Slot]string{
	nlu.SlotOrigin:      "¿Desde dónde salís?",
	nlu.SlotDestination: "¿A dónde vas?",
	nlu.SlotPayment:     "¿Cómo querés pagarlo? Tenemos efectivo, transferencia o tarjeta.",
	nlu.SlotServiceType: "¿Lo querés ahora o es para más tarde?",
	nlu.SlotTime:        "¿A qué hora lo necesitás?",
}

// leads acknowledge the first slot filled this turn.
var leads = map[nlu.Slot]string{
	nlu.SlotOrigin:      "Perfecto",
	nlu.SlotDestination: "Genial",
	nlu.SlotPayment:     "Perfecto",
	nlu.SlotServiceType: "Dale",
	nlu.SlotTime:        "Listo",
}

var serviceNames = map[nlu.ServiceType]string{
	nlu.ServiceImmediate:   "Inmediato",
	nlu.ServiceReservation: "Reserva",
}

var specialNames = map[nlu.SpecialService]string{
	nlu.SpecialPet:     "mascota",
	nlu.SpecialPink:    "taxi rosa",
	nlu.SpecialLuggage: "equipaje",
}

var surchargeNames = map[pricing.SurchargeKind]string{
	pricing.SurchargePet:   "mascota",
	pricing.SurchargePink:  "taxi rosa",
	pricing.SurchargeNight: "nocturno",
}

var slotNames = map[nlu.Slot]string{
	nlu.SlotOrigin:      "origen",
	nlu.SlotDestination: "destino",
	nlu.SlotPayment:     "pago",
	nlu.SlotServiceType: "servicio",
	nlu.SlotTime:        "hora",
	nlu.SlotStop:        "parada",
}

// clarifications take the offending value and the format example.
var clarifications = map[validation.ErrorKind]string{
	validation.ErrTimeOutOfRange:       "La hora %q no es válida. Probá con un formato como %s.",
	validation.ErrTimeFormat:           "No entendí la hora %q. Probá con un formato como %s.",
	validation.ErrOutsideBusinessHours: "A esta hora (%s) no tenemos viajes inmediatos. Podés dejar %s.",
	validation.ErrAddressTooShort:      "La dirección %q es muy corta. Necesito calle y número, por ejemplo: %s.",
	validation.ErrUnsupportedPayment:   "No aceptamos %q. Podés pagar con %s.",
}

var topicAnswers = map[nlu.Topic]string{
	nlu.TopicZones:   "Cubrimos Concordia y alrededores. Los viajes fuera de la zona habitual pueden tener un costo adicional.",
	nlu.TopicDrivers: "Todos nuestros conductores están verificados: documentación al día, vehículos aprobados y seguros vigentes.",
	nlu.TopicLuggage: "Sí, podés viajar con equipaje o mascota. El viaje con mascota tiene un adicional; avisanos y lo sumamos al pedido.",
	nlu.TopicPayment: "Aceptamos efectivo, transferencia y tarjeta de débito o crédito.",
	nlu.TopicGeneral: "Te puedo ayudar a pedir un taxi ahora o reservarlo para más tarde, y contarte de precios, zonas, horarios o medios de pago.",
}
