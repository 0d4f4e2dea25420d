package nlu

import (
	"math"
	"strings"
)

// Mood is the user's state of mind as far as the reply wording is concerned.
type Mood string

const (
	MoodCalm       Mood = "calm"
	MoodFrustrated Mood = "frustrated"
	MoodRushed     Mood = "rushed"
)

// Sentiment scores one utterance: Score is (positive-negative)/words in [-1,1].
type Sentiment struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
	Mood  Mood    `json:"mood"`
}

var (
	positiveWords = toSet("gracias", "perfecto", "excelente", "genial", "bueno", "bien", "ok", "okay", "dale", "listo", "confirmo", "joya", "barbaro")
	negativeWords = toSet("no", "mal", "pesimo", "terrible", "horrible", "problema", "error", "falla", "molesta", "enojado", "lento", "harto", "cansado")

	frustrationPhrases = []string{
		"no entiendo", "no me entendes", "no me entiende", "no funciona", "ya te dije", "te dije que",
		"otra vez", "de nuevo te", "que lento", "es un desastre", "me tenes cansado", "estoy harto", "estoy harta",
	}
	urgencyPhrases = []string{
		"urgente", "urgencia", "emergencia", "apuro", "apurado", "apurada", "rapido", "rapidito",
		"cuanto antes", "lo antes posible", "ya mismo",
	}
)

// AnalyzeSentiment scores text and derives the mood. Frustration needs an
// explicit phrase or at least two negative words, so a bare "no" declining a
// suggestion stays calm.
func AnalyzeSentiment(text string) Sentiment {
	w := words(text)
	fields := strings.Fields(w)
	pos, neg := 0, 0
	for _, f := range fields {
		switch {
		case positiveWords[f]:
			pos++
		case negativeWords[f]:
			neg++
		}
	}
	s := Sentiment{Label: "neutral", Mood: MoodCalm}
	if len(fields) > 0 {
		s.Score = math.Max(-1, math.Min(1, float64(pos-neg)/float64(len(fields))))
	}
	switch {
	case s.Score > 0.1:
		s.Label = "positive"
	case s.Score < -0.1:
		s.Label = "negative"
	}

	switch {
	case len(matchedPhrases(w, frustrationPhrases)) > 0 || (neg >= 2 && s.Score < -0.3):
		s.Mood = MoodFrustrated
	case len(matchedPhrases(w, urgencyPhrases)) > 0:
		s.Mood = MoodRushed
	}
	return s
}
