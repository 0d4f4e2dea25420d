// README: Conversation transcript; one row per handled turn, written after the session is saved.
package transcript

import (
	"errors"
	"time"
)

var ErrBadRequest = errors.New("bad request")

// DefaultListLimit bounds List when the caller passes no limit.
const DefaultListLimit = 50

// Turn is one user message and the reply it got. Seq orders turns within a
// conversation and, with ConversationID, identifies the row.
type Turn struct {
	ConversationID string    `json:"conversation_id"`
	Seq            int       `json:"seq"`
	Phone          string    `json:"phone"`
	UserText       string    `json:"user_text"`
	Reply          string    `json:"reply"`
	Intent         string    `json:"intent"`
	Mood           string    `json:"mood"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
}

func (t Turn) validate() error {
	if t.ConversationID == "" || t.Phone == "" || t.Seq <= 0 {
		return ErrBadRequest
	}
	return nil
}
