package ai

import (
	"context"
	"errors"
)

// ErrEmptyReply is returned when a provider answers with no usable text.
var ErrEmptyReply = errors.New("empty rephrase reply")

// Rephraser rewords a composed reply. Implementations must not add or drop
// facts; callers check the result with KeepsFacts before using it.
type Rephraser interface {
	Rephrase(ctx context.Context, req Request) (string, error)
}

// Request is what a provider sees of one turn.
type Request struct {
	// Reply is the deterministic text the composer produced.
	Reply string
	// Utterance is the user's last message, for tone only.
	Utterance string
	State     string
	// Facts are substrings that must survive rephrasing verbatim
	// (addresses, prices, times).
	Facts []string
}
