// README: EntityExtractor; ordered extraction rules per entity kind.
package nlu

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	confDualAddress   = 0.9
	confRoleAddress   = 0.85
	confBareAddress   = 0.8
	confLandmark      = 0.7
	confPayment       = 0.9
	confUnknownPay    = 0.6
	confServiceType   = 0.9
	confAmbiguousType = 0.5
	confTime          = 0.9
)

type addressRule struct {
	re    *regexp.Regexp
	roles []Role
}

var (
	dualAddressRules = []addressRule{
		{regexp.MustCompile(`(?:^|\s)desde\s+(.+?)\s+(?:hasta|a|al|para|hacia)\s+(.+)$`), []Role{RoleOrigin, RoleDestination}},
		{regexp.MustCompile(`(?:^|\s)(?:el\s+|mi\s+)?origen(?:\s+es|\s*:)?\s+(.+?)\s+y\s+(?:el\s+|mi\s+)?destino(?:\s+es|\s*:)?\s+(.+)$`), []Role{RoleOrigin, RoleDestination}},
	}
	stopAddressRule   = addressRule{regexp.MustCompile(`(?:^|\s)(?:pasando\s+por|con\s+parada\s+en|parada\s+en|paso\s+por|parando\s+en)\s+(.+)$`), []Role{RoleStop}}
	originAddressRule = addressRule{regexp.MustCompile(`(?:^|\s)(?:desde|salgo\s+desde|salgo\s+de|parto\s+desde|parto\s+de|estoy\s+en|me\s+buscan?\s+en|b[uú]scame\s+en|recog[eé]me\s+en|(?:el\s+|mi\s+)?origen(?:\s+es|\s+ser[ií]a|\s+era|\s*:)?)\s+(.+)$`), []Role{RoleOrigin}}
	destAddressRule   = addressRule{regexp.MustCompile(`(?:^|\s)(?:hasta|voy\s+(?:a|al|para)|vamos\s+(?:a|al|para)|(?:quiero\s+|necesito\s+|para\s+)?ir\s+(?:a|al)|ll[eé]vame\s+(?:a|al)|hacia|rumbo\s+a|(?:el\s+|mi\s+)?destino(?:\s+es|\s+ser[ií]a|\s+era|\s*:)?)\s+(.+)$`), []Role{RoleDestination}}

	tokenRe   = regexp.MustCompile(`[\p{L}\p{N}.'º°]+|,`)
	numberRe  = regexp.MustCompile(`\b\d{1,6}\b`)
	payWithRe = regexp.MustCompile(` pag(?:o|ar|as|a|amos|aria|ria) (?:con|en) ([a-z]+) `)

	payWithPrefixRe = regexp.MustCompile(` pag(?:o|ar|as|a|amos|aria|ria) (?:con|en)(?: la| el| una| un)?$`)
	payNegations    = []string{" no tengo", " no acepto", " no uso", " no quiero", " sin", " no"}
)

// clauseBreaks end an address capture: anything after them belongs to another
// slot or is chatter.
var clauseBreaks = []string{
	" y ", " con ", " pago", " pagar", " pagando", " en efectivo", " efectivo", " ahora", " ya ",
	" urgente", " a las ", " para las ", " por favor", " porfa", " gracias", " pasando por ",
	" parada en ", " porque ", " que ", " para ", " hasta ", " hacia ", " desde ", " lo antes",
	" cuanto antes", " mañana", " manana", " más tarde", " mas tarde", " somos ", " con mi ",
}

// streetStop holds folded words that never belong to a street name.
var streetStop = toSet(
	"necesito", "quiero", "queria", "un", "una", "unos", "taxi", "remis", "auto", "movil", "para", "por",
	"favor", "a", "al", "en", "desde", "hasta", "voy", "vamos", "salgo", "mi", "tu", "su", "el", "y", "o",
	"con", "pago", "pagar", "efectivo", "tarjeta", "transferencia", "hola", "buenas", "ahora", "personas",
	"somos", "son", "tengo", "hay", "es", "que", "me", "te", "lo", "le", "se", "soy", "estoy", "esta",
	"ir", "llevar", "llevame", "viaje", "origen", "destino", "direccion", "numero", "nro", "km", "minutos",
	"pesos", "min", "cuadras", "pasajeros", "gracias", "si", "no", "ok", "dale", "las", "los", "la", "de",
	"del", "hs", "horas", "am", "pm", "cerca", "tipo", "como", "unas", "mas", "menos", "valijas", "bolsos",
)

// streetConnectors may sit inside a street name ("25 de mayo", "pasaje de los andes").
var streetConnectors = toSet("de", "del", "la", "las", "los")

// landmarks start a recognisable place without a street number.
var landmarks = toSet(
	"terminal", "hospital", "sanatorio", "clinica", "shopping", "aeropuerto", "plaza", "costanera",
	"puerto", "universidad", "facultad", "hotel", "casino", "club", "escuela", "colegio", "estacion",
	"centro", "municipalidad", "catedral", "parque", "supermercado", "barrio",
)

var paymentPhrases = []struct{ phrase, method string }{
	{"tarjeta de debito", PaymentDebit},
	{"tarjeta de credito", PaymentCredit},
	{"debito", PaymentDebit},
	{"credito", PaymentCredit},
	{"mercado pago", PaymentTransfer},
	{"mercadopago", PaymentTransfer},
	{"transferencia", PaymentTransfer},
	{"transfiero", PaymentTransfer},
	{"transferir", PaymentTransfer},
	{"efectivo", PaymentCash},
	{"cash", PaymentCash},
	{"tarjeta", PaymentCard},
}

var unsupportedPayments = []string{
	"bitcoin", "bitcoins", "btc", "cripto", "criptomoneda", "criptomonedas", "usdt", "paypal",
	"cheque", "dolares", "euros",
}

var payWithIgnore = toSet("la", "el", "un", "una", "lo", "que", "mano", "mi")

var (
	immediateWords   = []string{"lo antes posible", "cuanto antes", "ahora mismo", "ahorita", "ahora", "inmediatamente", "inmediato", "urgente", "ya"}
	reservationWords = []string{"para mas tarde", "mas tarde", "pasado manana", "manana", "reservame", "reservar", "reserva", "reservo", "programado", "programar", "agendar", "despues", "luego"}
)

var specialPhrases = []struct {
	phrase  string
	service SpecialService
}{
	{"mascota", SpecialPet}, {"mascotas", SpecialPet}, {"perro", SpecialPet}, {"perrito", SpecialPet},
	{"gato", SpecialPet}, {"gatito", SpecialPet},
	{"taxi rosa", SpecialPink}, {"auto rosa", SpecialPink}, {"movil rosa", SpecialPink}, {"conductora", SpecialPink},
	{"equipaje", SpecialLuggage}, {"valija", SpecialLuggage}, {"valijas", SpecialLuggage},
	{"maleta", SpecialLuggage}, {"maletas", SpecialLuggage}, {"bolsos", SpecialLuggage},
}

// Extractor pulls typed entities out of one utterance. It holds no state and
// is safe for concurrent use.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract runs every rule over text. Values the rules recognise but cannot
// accept are returned in Rejected instead of Entities.
func (x *Extractor) Extract(text string) Extraction {
	var out Extraction
	t := lower(text)
	w := words(text)

	times, masked := scanTimes(t)
	day := dayOffset(w)
	for _, m := range times {
		if m.err != nil {
			out.Rejected = append(out.Rejected, Rejected{Kind: KindTime, Raw: m.raw, Err: m.err})
			continue
		}
		out.Entities = append(out.Entities, TimeEntity{Hour: m.hour, Minute: m.minute, DayOffset: day, Conf: confTime})
	}

	if p, ok := extractPayment(w); ok {
		out.Entities = append(out.Entities, p)
	}
	if s, ok := extractServiceType(w); ok {
		out.Entities = append(out.Entities, s)
	}
	out.Entities = append(out.Entities, extractSpecialServices(w)...)

	addrs, masked := extractAddresses(masked)
	for _, a := range addrs {
		out.Entities = append(out.Entities, a)
	}
	out.Entities = append(out.Entities, extractNumbers(masked)...)
	return out
}

type payHit struct {
	start, end int
	method     string
}

// extractPayment picks the method the user pays with. Negated mentions ("no
// tengo efectivo", "sin tarjeta") are skipped and an explicit "pago con X"
// wins over an earlier mention.
func extractPayment(w string) (PaymentEntity, bool) {
	var hits []payHit
	for _, p := range paymentPhrases {
		needle := " " + p.phrase + " "
		for from := 0; from < len(w); {
			i := strings.Index(w[from:], needle)
			if i < 0 {
				break
			}
			h := payHit{start: from + i, end: from + i + len(needle) - 1, method: p.method}
			if !overlapsHit(hits, h) {
				hits = append(hits, h)
			}
			from = h.end
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	method := ""
	for _, h := range hits {
		prefix := w[:h.start]
		if negatedPayment(prefix) {
			continue
		}
		if payWithPrefixRe.MatchString(prefix) {
			method = h.method
			break
		}
		if method == "" {
			method = h.method
		}
	}
	if method != "" {
		return PaymentEntity{Method: method, Known: true, Conf: confPayment}, true
	}

	for _, u := range unsupportedPayments {
		if i := indexWord(w, u); i >= 0 && !negatedPayment(w[:i]) {
			return PaymentEntity{Method: u, Known: false, Conf: confUnknownPay}, true
		}
	}
	if m := payWithRe.FindStringSubmatchIndex(w); m != nil {
		if v := w[m[2]:m[3]]; !payWithIgnore[v] && !negatedPayment(w[:m[0]]) && len(hits) == 0 {
			return PaymentEntity{Method: v, Known: false, Conf: confUnknownPay}, true
		}
	}
	return PaymentEntity{}, false
}

func overlapsHit(hits []payHit, h payHit) bool {
	for _, o := range hits {
		if h.start < o.end && o.start < h.end {
			return true
		}
	}
	return false
}

func negatedPayment(prefix string) bool {
	for _, n := range payNegations {
		if strings.HasSuffix(prefix, n) {
			return true
		}
	}
	return false
}

func extractServiceType(w string) (ServiceTypeEntity, bool) {
	w = strings.ReplaceAll(w, " de la manana ", " ")
	imm := earliest(w, immediateWords)
	res := earliest(w, reservationWords)
	switch {
	case imm >= 0 && res >= 0:
		t := ServiceImmediate
		if res < imm {
			t = ServiceReservation
		}
		return ServiceTypeEntity{Type: t, Ambiguous: true, Conf: confAmbiguousType}, true
	case imm >= 0:
		return ServiceTypeEntity{Type: ServiceImmediate, Conf: confServiceType}, true
	case res >= 0:
		return ServiceTypeEntity{Type: ServiceReservation, Conf: confServiceType}, true
	}
	return ServiceTypeEntity{}, false
}

func earliest(w string, phrases []string) int {
	best := -1
	for _, p := range phrases {
		if i := indexWord(w, p); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

func extractSpecialServices(w string) []Entity {
	var out []Entity
	seen := map[SpecialService]bool{}
	for _, p := range specialPhrases {
		if !seen[p.service] && containsWord(w, p.phrase) {
			seen[p.service] = true
			out = append(out, SpecialServiceEntity{Service: p.service})
		}
	}
	return out
}

// extractAddresses applies the address rules in order: dual, stop, role keyword,
// bare street+number, landmark. Every captured span is masked so later rules
// cannot capture it twice.
func extractAddresses(t string) ([]AddressEntity, string) {
	var out []AddressEntity
	// Dual captures are framed by explicit keywords on both sides and are
	// accepted as they come; every other rule rejects single reserved words.
	add := func(value string, role Role, conf float64, offset int) {
		if value == "" || (conf < confDualAddress && streetStop[fold(value)]) {
			return
		}
		key := fold(value)
		for _, a := range out {
			if fold(a.Value) == key {
				return
			}
		}
		out = append(out, AddressEntity{Value: value, Role: role, Conf: conf, Offset: offset})
	}

	dual := false
	for _, rule := range dualAddressRules {
		loc := rule.re.FindStringSubmatchIndex(t)
		if loc == nil {
			continue
		}
		a, _ := trimClause(t[loc[2]:loc[3]])
		b, bLen := trimClause(t[loc[4]:loc[5]])
		if a == "" || b == "" {
			continue
		}
		add(a, RoleOrigin, confDualAddress, loc[2])
		add(b, RoleDestination, confDualAddress, loc[4])
		t = mask(t, loc[0], loc[4]+bLen)
		dual = true
		break
	}

	rules := []addressRule{stopAddressRule}
	if !dual {
		rules = append(rules, originAddressRule, destAddressRule)
	}
	for _, rule := range rules {
		loc := rule.re.FindStringSubmatchIndex(t)
		if loc == nil {
			continue
		}
		v, n := trimClause(t[loc[2]:loc[3]])
		if v == "" {
			continue
		}
		add(v, rule.roles[0], confRoleAddress, loc[2])
		t = mask(t, loc[0], loc[2]+n)
	}

	for _, b := range bareAddresses(t) {
		add(b.value, RoleNone, confBareAddress, b.start)
		t = mask(t, b.start, b.end)
	}
	if len(out) == 0 {
		if v, off := landmarkAddress(t); v != "" {
			add(v, RoleNone, confLandmark, off)
		}
	}
	return out, t
}

// trimClause cuts s at the first clause break and keeps a trailing ", city"
// segment. It returns the value and the number of bytes of s it consumed.
func trimClause(s string) (string, int) {
	padded := " " + s + " "
	cut := len(padded)
	for _, b := range clauseBreaks {
		if i := strings.Index(padded, b); i >= 0 && i < cut {
			cut = i
		}
	}
	if i := strings.IndexAny(padded, ".;!?¿¡"); i >= 0 && i < cut {
		cut = i
	}
	consumed := cut - 1
	if consumed < 0 {
		consumed = 0
	}
	if consumed > len(s) {
		consumed = len(s)
	}
	head, rest, found := strings.Cut(padded[:cut], ",")
	head = strings.TrimSpace(head)
	if found {
		if city := leadingCity(rest); city != "" {
			head += ", " + city
		}
	}
	head = strings.Trim(head, " ,:")
	// "la 9 de julio 1200" names the street "9 de julio".
	if rest, ok := strings.CutPrefix(head, "la "); ok && rest != "" && rest[0] >= '0' && rest[0] <= '9' {
		head = rest
	}
	return head, consumed
}

// leadingCity returns the first comma separated segment of s when it looks
// like a locality: one to three words, no digits, no reserved vocabulary.
func leadingCity(s string) string {
	seg, _, _ := strings.Cut(s, ",")
	seg = strings.TrimSpace(seg)
	fs := strings.Fields(seg)
	if len(fs) == 0 || len(fs) > 3 || len(seg) < 3 {
		return ""
	}
	for _, f := range fs {
		if !hasLetter(f) || strings.ContainsAny(f, "0123456789") {
			return ""
		}
		if k := fold(f); streetStop[k] && !streetConnectors[k] {
			return ""
		}
	}
	return seg
}

type span struct {
	value      string
	start, end int
}

// bareAddresses finds "street words + number" groups such as "diamante 2500"
// or "1 de mayo 449", with an optional ", city" suffix.
func bareAddresses(t string) []span {
	locs := tokenRe.FindAllStringIndex(t, -1)
	toks := make([]string, len(locs))
	for i, l := range locs {
		toks[i] = fold(t[l[0]:l[1]])
	}

	var out []span
	for i, tok := range toks {
		if !isDigits(tok) || len(tok) > 5 || i == 0 {
			continue
		}
		start, street := i, 0
		for j := i - 1; j >= 0 && i-j <= 6; j-- {
			k := toks[j]
			if streetConnectors[k] {
				start = j
				continue
			}
			if isDigits(k) && len(k) <= 2 && j+1 < len(toks) && toks[j+1] == "de" {
				start = j
				break
			}
			if k == "," || isDigits(k) || streetStop[k] || !hasLetter(k) {
				break
			}
			start = j
			street++
		}
		for start < i && streetConnectors[toks[start]] {
			start++
		}
		if street == 0 || start == i {
			continue
		}
		if len(out) > 0 && locs[start][0] < out[len(out)-1].end {
			continue
		}
		s := span{start: locs[start][0], end: locs[i][1]}
		s.value = t[s.start:s.end]
		if i+1 < len(toks) && toks[i+1] == "," {
			rest := t[locs[i+1][1]:]
			if city := leadingCity(cutAtBreak(rest)); city != "" {
				s.value += ", " + city
				s.end = locs[i+1][1] + strings.Index(rest, city) + len(city)
			}
		}
		out = append(out, s)
	}
	return out
}

func cutAtBreak(s string) string {
	padded := " " + s + " "
	cut := len(padded)
	for _, b := range clauseBreaks {
		if i := strings.Index(padded, b); i >= 0 && i < cut {
			cut = i
		}
	}
	return padded[:cut]
}

// landmarkAddress accepts "la terminal", "el hospital italiano" and similar
// when the utterance names no street address.
func landmarkAddress(t string) (string, int) {
	locs := tokenRe.FindAllStringIndex(t, -1)
	for i, l := range locs {
		if !landmarks[fold(t[l[0]:l[1]])] {
			continue
		}
		start := l[0]
		if i > 0 {
			if prev := fold(t[locs[i-1][0]:locs[i-1][1]]); prev == "la" || prev == "el" || prev == "los" {
				start = locs[i-1][0]
			}
		}
		v, _ := trimClause(t[start:])
		return v, start
	}
	return "", 0
}

func extractNumbers(t string) []Entity {
	var out []Entity
	for _, l := range numberRe.FindAllStringIndex(t, -1) {
		n, err := strconv.Atoi(t[l[0]:l[1]])
		if err != nil {
			continue
		}
		out = append(out, NumberEntity{Value: n, Offset: l[0]})
	}
	return out
}

// SortAddresses orders address entities by their position in the utterance.
func SortAddresses(as []AddressEntity) {
	sort.SliceStable(as, func(i, j int) bool { return as[i].Offset < as[j].Offset })
}

func toSet(ws ...string) map[string]bool {
	m := make(map[string]bool, len(ws))
	for _, w := range ws {
		m[w] = true
	}
	return m
}
