// README: Shared prompt and output checks for the rephrase providers.
package ai

import (
	"fmt"
	"regexp"
	"strings"
)

const systemPrompt = `Sos el asistente de una central de taxis de Concordia, Entre Ríos.
Reescribí el mensaje del asistente con un tono cálido y rioplatense (voseo), breve y claro.
Reglas:
- No agregues ni quites información. No inventes precios, direcciones, horarios ni promociones.
- Copiá textualmente las direcciones, montos y horarios.
- Mantené las preguntas del mensaje original y su orden.
- Respondé solo con el mensaje final, sin comillas ni explicaciones.`

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Estado de la conversación: %s\n", req.State)
	if req.Utterance != "" {
		fmt.Fprintf(&b, "Último mensaje del usuario: %s\n", req.Utterance)
	}
	if len(req.Facts) > 0 {
		fmt.Fprintf(&b, "Datos que deben aparecer igual: %s\n", strings.Join(req.Facts, " | "))
	}
	fmt.Fprintf(&b, "\nMensaje a reescribir:\n%s", req.Reply)
	return b.String()
}

var amountPattern = regexp.MustCompile(`\$\d+`)

// FactsOf collects the amounts in reply plus the given values.
func FactsOf(reply string, values ...string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(f string) {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			return
		}
		seen[f] = true
		out = append(out, f)
	}
	for _, v := range values {
		if strings.Contains(reply, v) {
			add(v)
		}
	}
	for _, m := range amountPattern.FindAllString(reply, -1) {
		add(m)
	}
	return out
}

// KeepsFacts reports whether rephrased still contains every fact and does not
// quote amounts the original never had.
func KeepsFacts(original, rephrased string, facts []string) bool {
	lower := strings.ToLower(rephrased)
	for _, f := range facts {
		if !strings.Contains(lower, strings.ToLower(f)) {
			return false
		}
	}
	known := map[string]bool{}
	for _, m := range amountPattern.FindAllString(original, -1) {
		known[m] = true
	}
	for _, m := range amountPattern.FindAllString(rephrased, -1) {
		if !known[m] {
			return false
		}
	}
	return true
}

func cleanReply(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```text")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	input = strings.TrimSpace(input)
	if len(input) >= 2 && strings.HasPrefix(input, `"`) && strings.HasSuffix(input, `"`) {
		input = input[1 : len(input)-1]
	}
	return strings.TrimSpace(input)
}
