package nlu

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrHourOutOfRange   = errors.New("hour out of range")
	ErrMinuteOutOfRange = errors.New("minute out of range")
	ErrTimeFormat       = errors.New("unrecognised time format")
)

type meridiem int

const (
	meridiemNone meridiem = iota
	meridiemAM
	meridiemPM
	// meridiemAfternoon is "de la tarde": 1-11 shift to pm, 12-23 are kept.
	meridiemAfternoon
	// meridiemNight is "de la noche": pm, except that 12 means midnight.
	meridiemNight
)

type timeRule struct {
	re *regexp.Regexp
	// hour and minute are submatch indexes; meridiem is -1 when the rule has none.
	hour, minute, meridiem int
}

// Ordered: the first rule that covers a span wins.
var timeRules = []timeRule{
	{regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(?:hs|hrs|horas)?\s+de\s+la\s+(mañana|manana|madrugada|tarde|noche)\b`), 1, 2, 3},
	{regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`), 1, 2, 3},
	{regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(?:hs|hrs|h|horas)\b`), 1, 2, -1},
	{regexp.MustCompile(`\b(?:a|para|tipo|como|desde)\s+las\s+(\d{1,2})(?::(\d{2}))?\b`), 1, 2, -1},
	// Singular "la" only names one o'clock; "a la 9 de julio" is a street.
	{regexp.MustCompile(`\b(?:a|para|tipo|como|desde)\s+la\s+(1|una)(?::(\d{2}))?\b`), 1, 2, -1},
	{regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`), 1, 2, -1},
}

// monthAfterRe spots dates used as street names: "9 de julio", "25 de mayo".
var monthAfterRe = regexp.MustCompile(`^\s+de\s+(?:enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre)\b`)

type timeMatch struct {
	start, end   int
	hour, minute int
	raw          string
	err          error
}

// ParseClock parses a single time expression ("18:30", "6am", "18hs") into
// 24-hour clock values.
func ParseClock(s string) (hour, minute int, err error) {
	matches, _ := scanTimes(lower(s))
	if len(matches) == 0 {
		return 0, 0, ErrTimeFormat
	}
	m := matches[0]
	return m.hour, m.minute, m.err
}

// scanTimes finds every time expression in t and returns t with the matched
// spans masked out.
func scanTimes(t string) ([]timeMatch, string) {
	var out []timeMatch
	for _, rule := range timeRules {
		for _, loc := range rule.re.FindAllStringSubmatchIndex(t, -1) {
			start, end := loc[0], loc[1]
			if monthAfterRe.MatchString(t[end:]) {
				continue
			}
			m := timeMatch{start: start, end: end, raw: strings.TrimSpace(t[start:end])}
			m.hour, m.minute, m.err = normaliseClock(
				group(t, loc, rule.hour), group(t, loc, rule.minute), group(t, loc, rule.meridiem),
			)
			out = append(out, m)
			t = mask(t, start, end)
		}
	}
	return out, t
}

func group(t string, loc []int, i int) string {
	if i < 0 || 2*i+1 >= len(loc) || loc[2*i] < 0 {
		return ""
	}
	return t[loc[2*i]:loc[2*i+1]]
}

func normaliseClock(hs, ms, mer string) (int, int, error) {
	if hs == "una" {
		hs = "1"
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, ErrTimeFormat
	}
	m := 0
	if ms != "" {
		if m, err = strconv.Atoi(ms); err != nil {
			return 0, 0, ErrTimeFormat
		}
	}
	if m < 0 || m > 59 {
		return h, m, fmt.Errorf("%w: %d", ErrMinuteOutOfRange, m)
	}

	switch parseMeridiem(mer) {
	case meridiemAM:
		if h < 1 || h > 12 {
			return h, m, fmt.Errorf("%w: %d", ErrHourOutOfRange, h)
		}
		if h == 12 {
			h = 0
		}
	case meridiemPM:
		if h < 1 || h > 12 {
			return h, m, fmt.Errorf("%w: %d", ErrHourOutOfRange, h)
		}
		if h != 12 {
			h += 12
		}
	case meridiemAfternoon:
		if h < 12 {
			h += 12
		}
	case meridiemNight:
		if h < 1 || h > 12 {
			return h, m, fmt.Errorf("%w: %d", ErrHourOutOfRange, h)
		}
		// "2 de la noche" stays in the small hours.
		if h == 12 {
			h = 0
		} else if h >= 6 {
			h += 12
		}
	}
	if h < 0 || h > 23 {
		return h, m, fmt.Errorf("%w: %d", ErrHourOutOfRange, h)
	}
	return h, m, nil
}

func parseMeridiem(s string) meridiem {
	switch s {
	case "am":
		return meridiemAM
	case "pm":
		return meridiemPM
	case "tarde":
		return meridiemAfternoon
	case "noche":
		return meridiemNight
	}
	return meridiemNone
}

// dayOffset reads relative day words ("mañana", "pasado mañana") from folded,
// padded text.
func dayOffset(w string) int {
	w = strings.ReplaceAll(w, " de la manana ", " ")
	switch {
	case containsWord(w, "pasado manana"):
		return 2
	case containsWord(w, "manana"):
		return 1
	}
	return 0
}
