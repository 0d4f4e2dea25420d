package nlu

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lowercases s and strips diacritics so "Débito" and "debito" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// lower lowercases s and normalises whitespace and dotted am/pm markers while
// keeping byte offsets meaningful for value capture.
func lower(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("a.m.", "am", "p.m.", "pm", "a. m.", "am", "p. m.", "pm").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// words folds s and reduces it to space separated word tokens, padded with a
// leading and trailing space so " token " matches respect word boundaries.
func words(s string) string {
	f := fold(s)
	var b strings.Builder
	b.Grow(len(f) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range f {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ':' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// FoldWords folds s and joins its word tokens with single spaces, for
// accent-insensitive keyword matching outside this package.
func FoldWords(s string) string {
	return strings.TrimSpace(words(s))
}

func containsWord(padded, phrase string) bool {
	return strings.Contains(padded, " "+phrase+" ")
}

func indexWord(padded, phrase string) int {
	return strings.Index(padded, " "+phrase+" ")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// mask blanks out s[start:end] with spaces, keeping offsets stable.
func mask(s string, start, end int) string {
	return s[:start] + strings.Repeat(" ", end-start) + s[end:]
}
