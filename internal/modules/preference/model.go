package preference

import (
	"errors"
	"sort"
	"time"

	"novobot/internal/modules/nlu"
)

var ErrNotFound = errors.New("preference profile not found")

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
)

type RankedItem struct {
	Item     string    `json:"item"`
	Count    int       `json:"count"`
	LastUsed time.Time `json:"last_used"`
}

// Profile is what the learner remembers about one phone number.
type Profile struct {
	Phone        string       `json:"phone"`
	Origins      []RankedItem `json:"origins"`
	Destinations []RankedItem `json:"destinations"`
	Payments     []RankedItem `json:"payments"`
	Times        []RankedItem `json:"times"`
	UseCount     int          `json:"use_count"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Top returns the most used item of list, skipping any value in exclude.
func Top(list []RankedItem, exclude ...string) (string, bool) {
	for _, it := range list {
		skip := false
		for _, ex := range exclude {
			if it.Item == ex {
				skip = true
				break
			}
		}
		if !skip {
			return it.Item, true
		}
	}
	return "", false
}

type Suggestion struct {
	Slot       nlu.Slot `json:"slot"`
	Value      string   `json:"value"`
	Message    string   `json:"message"`
	Confidence float64  `json:"confidence"`
}

// bump counts one use of item, re-ranks by count then recency and keeps the top n.
func bump(list []RankedItem, item string, at time.Time, n int) []RankedItem {
	if item == "" {
		return list
	}
	out := append([]RankedItem(nil), list...)
	found := false
	for i := range out {
		if out[i].Item == item {
			out[i].Count++
			out[i].LastUsed = at
			found = true
			break
		}
	}
	if !found {
		out = append(out, RankedItem{Item: item, Count: 1, LastUsed: at})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (p Profile) clone() Profile {
	c := p
	c.Origins = append([]RankedItem(nil), p.Origins...)
	c.Destinations = append([]RankedItem(nil), p.Destinations...)
	c.Payments = append([]RankedItem(nil), p.Payments...)
	c.Times = append([]RankedItem(nil), p.Times...)
	return c
}
