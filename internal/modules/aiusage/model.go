package aiusage

import "errors"

// ErrInsufficientTokens is returned when a user has no rephrase tokens left for the current month.
var ErrInsufficientTokens = errors.New("insufficient tokens")

// DefaultTokens is the number of rephrased replies granted per phone per month.
const DefaultTokens = 100
