package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"novobot/internal/modules/dialogue"
	"novobot/internal/modules/nlu"
	"novobot/internal/modules/validation"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned by Put when the stored version moved since Get.
	ErrConflict = errors.New("session version conflict")
)

// Pending is a suggestion offered last turn; a Confirm accepts it.
type Pending struct {
	Slot  nlu.Slot `json:"slot"`
	Value string   `json:"value"`
}

type Session struct {
	Phone          string            `json:"phone"`
	SessionID      string            `json:"session_id,omitempty"`
	ConversationID string            `json:"conversation_id"`
	Slots          dialogue.SlotSet  `json:"slots"`
	State          dialogue.State    `json:"state"`
	Pending        *Pending          `json:"pending,omitempty"`
	Warnings       []validation.Note `json:"warnings,omitempty"`
	Version        int64             `json:"version"`
	LastActive     time.Time         `json:"last_active"`
	Turns          int               `json:"turns"`
}

// Key identifies a session in the store. SessionID defaults to the phone.
func Key(phone, sessionID string) string {
	if sessionID == "" {
		return phone
	}
	return phone + ":" + sessionID
}

func (s Session) Key() string {
	return Key(s.Phone, s.SessionID)
}

// New returns a fresh, unsaved session in the Initial state.
func New(phone, sessionID string, now time.Time) Session {
	return Session{
		Phone:          phone,
		SessionID:      sessionID,
		ConversationID: uuid.NewString(),
		State:          dialogue.StateInitial,
		LastActive:     now,
	}
}

// Restart clears the trip and opens a new conversation on the same session.
func (s Session) Restart() Session {
	s.ConversationID = uuid.NewString()
	s.Slots = dialogue.SlotSet{}
	s.State = dialogue.StateInitial
	s.Pending = nil
	s.Warnings = nil
	return s
}
