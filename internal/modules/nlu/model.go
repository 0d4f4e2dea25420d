// README: NLU value types: tagged entity variants, slots, intents.
package nlu

import "fmt"

// Slot names one piece of trip information the dialogue collects.
type Slot string

const (
	SlotOrigin      Slot = "origin"
	SlotDestination Slot = "destination"
	SlotPayment     Slot = "payment_method"
	SlotServiceType Slot = "service_type"
	SlotTime        Slot = "time"
	// SlotStop names intermediate stops; it is never asked for.
	SlotStop Slot = "intermediate_stop"
)

type Role string

const (
	RoleNone        Role = ""
	RoleOrigin      Role = "origin"
	RoleDestination Role = "destination"
	RoleStop        Role = "stop"
)

type ServiceType string

const (
	ServiceImmediate   ServiceType = "immediate"
	ServiceReservation ServiceType = "reservation"
)

type SpecialService string

const (
	SpecialPet     SpecialService = "pet"
	SpecialPink    SpecialService = "pink"
	SpecialLuggage SpecialService = "luggage"
)

// Payment methods accepted by the service.
const (
	PaymentCash     = "efectivo"
	PaymentTransfer = "transferencia"
	PaymentCard     = "tarjeta"
	PaymentDebit    = "débito"
	PaymentCredit   = "crédito"
)

// PaymentMethods is the closed payment vocabulary, in display order.
var PaymentMethods = []string{PaymentCash, PaymentTransfer, PaymentCard, PaymentDebit, PaymentCredit}

func IsPaymentMethod(m string) bool {
	for _, p := range PaymentMethods {
		if p == m {
			return true
		}
	}
	return false
}

type Kind string

const (
	KindAddress        Kind = "address"
	KindPayment        Kind = "payment"
	KindTime           Kind = "time"
	KindServiceType    Kind = "service_type"
	KindNumber         Kind = "number"
	KindSpecialService Kind = "special_service"
)

// Entity is a typed value pulled out of one utterance. The concrete types
// below are the only implementations.
type Entity interface {
	Kind() Kind
	Confidence() float64
	isEntity()
}

type AddressEntity struct {
	Value string
	Role  Role
	Conf  float64
	// Offset is the byte position in the utterance, used to order untagged addresses.
	Offset int
}

type PaymentEntity struct {
	Method string
	// Known is false for payment mentions outside the accepted vocabulary.
	Known bool
	Conf  float64
}

type TimeEntity struct {
	Hour      int
	Minute    int
	DayOffset int
	Conf      float64
}

type ServiceTypeEntity struct {
	Type      ServiceType
	Ambiguous bool
	Conf      float64
}

type NumberEntity struct {
	Value  int
	Offset int
}

type SpecialServiceEntity struct {
	Service SpecialService
}

func (AddressEntity) Kind() Kind        { return KindAddress }
func (PaymentEntity) Kind() Kind        { return KindPayment }
func (TimeEntity) Kind() Kind           { return KindTime }
func (ServiceTypeEntity) Kind() Kind    { return KindServiceType }
func (NumberEntity) Kind() Kind         { return KindNumber }
func (SpecialServiceEntity) Kind() Kind { return KindSpecialService }

func (e AddressEntity) Confidence() float64      { return e.Conf }
func (e PaymentEntity) Confidence() float64      { return e.Conf }
func (e TimeEntity) Confidence() float64         { return e.Conf }
func (e ServiceTypeEntity) Confidence() float64  { return e.Conf }
func (NumberEntity) Confidence() float64         { return 1 }
func (SpecialServiceEntity) Confidence() float64 { return 0.9 }

func (AddressEntity) isEntity()        {}
func (PaymentEntity) isEntity()        {}
func (TimeEntity) isEntity()           {}
func (ServiceTypeEntity) isEntity()    {}
func (NumberEntity) isEntity()         {}
func (SpecialServiceEntity) isEntity() {}

// Clock renders the time as HH:MM.
func (e TimeEntity) Clock() string {
	return fmt.Sprintf("%02d:%02d", e.Hour, e.Minute)
}

// Rejected is a value the extractor recognised but refused, such as "25:00".
type Rejected struct {
	Kind Kind
	Raw  string
	Err  error
}

// Extraction is the output of one Extract call.
type Extraction struct {
	Entities []Entity
	Rejected []Rejected
}

type IntentKind string

const (
	IntentUnknown        IntentKind = "unknown"
	IntentGreeting       IntentKind = "greeting"
	IntentTaxiRequest    IntentKind = "taxi_request"
	IntentProvideAddress IntentKind = "provide_address"
	IntentSpecifyPayment IntentKind = "specify_payment"
	IntentSpecifyTime    IntentKind = "specify_time"
	IntentAskQuestion    IntentKind = "ask_question"
	IntentConfirm        IntentKind = "confirm"
	IntentCancel         IntentKind = "cancel"
	IntentRequestHelp    IntentKind = "request_help"
	IntentCorrection     IntentKind = "correction"
)

type Intent struct {
	Kind       IntentKind
	Confidence float64
	Patterns   []string
	// Target is the slot a Correction names, empty when it names none.
	Target    Slot
	Secondary []IntentKind
	Mood      Mood
}

func (i Intent) HasMultipleIntents() bool {
	return len(i.Secondary) > 0
}

// Has reports whether kind is the primary or a secondary intent.
func (i Intent) Has(kind IntentKind) bool {
	if i.Kind == kind {
		return true
	}
	for _, k := range i.Secondary {
		if k == kind {
			return true
		}
	}
	return false
}
