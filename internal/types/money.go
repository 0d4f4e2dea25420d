// README: Common money and geo value objects used across modules.
package types

import "fmt"

// CurrencyARS is the only currency quoted by the tariff calculator.
const CurrencyARS = "ARS"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func ARS(amount int64) Money {
	return Money{Amount: amount, Currency: CurrencyARS}
}

// String renders the amount the way replies show it, e.g. "$1200".
func (m Money) String() string {
	return fmt.Sprintf("$%d", m.Amount)
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type ID string
