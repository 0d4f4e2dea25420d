// README: Operator endpoints: preference profiles, booking lookups and conversation transcripts.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"novobot/internal/http/middleware"
	"novobot/internal/modules/booking"
	"novobot/internal/modules/preference"
	"novobot/internal/modules/transcript"
	"novobot/internal/types"
)

type ProfileReader interface {
	Profile(ctx context.Context, phone string) (preference.Profile, error)
}

type TranscriptReader interface {
	List(ctx context.Context, conversationID string, limit int) ([]transcript.Turn, error)
}

type AdminHandler struct {
	prefs    ProfileReader
	bookings *booking.Service
	turns    TranscriptReader
}

func NewAdminHandler(prefs ProfileReader, bookings *booking.Service, turns TranscriptReader) *AdminHandler {
	return &AdminHandler{prefs: prefs, bookings: bookings, turns: turns}
}

// Preferences handles GET /api/users/:phone/preferences.
func (h *AdminHandler) Preferences(c *gin.Context) {
	phone := NormalizePhone(c.Param("phone"))
	if !isValidPhone(phone) {
		writeError(c, http.StatusBadRequest, "invalid phone")
		return
	}
	p, err := h.prefs.Profile(c.Request.Context(), phone)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// Booking handles GET /api/bookings/:id.
func (h *AdminHandler) Booking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

// UserBookings handles GET /api/users/:phone/bookings?limit=N.
func (h *AdminHandler) UserBookings(c *gin.Context) {
	phone := NormalizePhone(c.Param("phone"))
	if !isValidPhone(phone) {
		writeError(c, http.StatusBadRequest, "invalid phone")
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	list, err := h.bookings.ListByPhone(c.Request.Context(), phone, limit)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	if list == nil {
		list = []booking.Booking{}
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": list})
}

// Turns handles GET /api/conversations/:id/turns?limit=N.
func (h *AdminHandler) Turns(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, http.StatusBadRequest, "invalid conversation id")
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	list := []transcript.Turn{}
	if h.turns != nil {
		got, err := h.turns.List(c.Request.Context(), id, limit)
		if err != nil {
			writeError(c, http.StatusInternalServerError, "internal error")
			return
		}
		if got != nil {
			list = got
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"conversation_id": id, "turns": list})
}

// Complete handles POST /api/bookings/:id/complete.
func (h *AdminHandler) Complete(c *gin.Context) {
	h.transition(c, booking.StatusCompleted)
}

// Cancel handles POST /api/bookings/:id/cancel.
func (h *AdminHandler) Cancel(c *gin.Context) {
	h.transition(c, booking.StatusCancelled)
}

func (h *AdminHandler) transition(c *gin.Context, to booking.Status) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.bookings.Transition(c.Request.Context(), id, to)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"booking_id": b.ID, "status": b.Status, "changed_by": middleware.CallerUID(c)})
}

func bookingID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return "", false
	}
	return types.ID(id), true
}

func queryLimit(c *gin.Context) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 100 {
		writeError(c, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return n, true
}
