// README: Handler tests for the webhook, chat and operator endpoints.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"novobot/internal/http/handlers"
	"novobot/internal/modules/booking"
	"novobot/internal/modules/dialogue"
	"novobot/internal/modules/nlu"
	"novobot/internal/modules/preference"
	"novobot/internal/modules/transcript"
	"novobot/internal/service"
)

type stubTurner struct {
	got service.TurnInput
	out service.TurnOutput
	err error
}

func (s *stubTurner) HandleTurn(_ context.Context, in service.TurnInput) (service.TurnOutput, error) {
	s.got = in
	return s.out, s.err
}

func chatRouter(turns handlers.Turner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewChatHandler(turns, zap.NewNop())
	r := gin.New()
	r.POST("/webhook/whatsapp", h.Webhook)
	r.POST("/api/chat", h.Chat)
	return r
}

func TestWebhook_FormPost(t *testing.T) {
	turns := &stubTurner{out: service.TurnOutput{Reply: "Buenass", State: dialogue.StateGreeting}}
	r := chatRouter(turns)

	form := url.Values{"From": {"whatsapp:+5493456123456"}, "Body": {"  hola "}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "5493456123456", turns.got.Phone)
	assert.Equal(t, "hola", turns.got.Text)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Buenass", body["reply"])
	assert.Equal(t, "greeting", body["state"])
}

func TestWebhook_JSONWithSession(t *testing.T) {
	turns := &stubTurner{out: service.TurnOutput{Reply: "¿Desde dónde salís?", State: dialogue.StateCollectingOrigin}}
	r := chatRouter(turns)

	payload, _ := json.Marshal(map[string]string{"From": "5493456123456", "Body": "necesito un taxi", "SessionId": "web-1"})
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "web-1", turns.got.SessionID)
}

func TestWebhook_RejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name string
		form url.Values
	}{
		{"missing body", url.Values{"From": {"5493456123456"}}},
		{"blank body", url.Values{"From": {"5493456123456"}, "Body": {"   "}}},
		{"missing from", url.Values{"Body": {"hola"}}},
		{"short phone", url.Values{"From": {"123"}, "Body": {"hola"}}},
		{"session with colon", url.Values{"From": {"5493456123456"}, "Body": {"hola"}, "SessionId": {"a:b"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			turns := &stubTurner{}
			r := chatRouter(turns)
			req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(tc.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, turns.got.Phone, "turn must not run")
		})
	}
}

func TestChat_ReturnsWholeTurn(t *testing.T) {
	turns := &stubTurner{out: service.TurnOutput{
		Reply: "Perfecto, salís desde guemes 800.",
		State: dialogue.StateCollectingDestination,
		Slots: dialogue.SlotSet{Origin: "guemes 800"},
	}}
	r := chatRouter(turns)

	payload, _ := json.Marshal(map[string]string{"phone": "+54 9 3456 123456", "message": "estoy en guemes 800"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out service.TurnOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "guemes 800", out.Slots.Origin)
	assert.Equal(t, dialogue.StateCollectingDestination, out.State)
	assert.Equal(t, "5493456123456", turns.got.Phone)
}

func TestChat_TurnErrorIs500(t *testing.T) {
	r := chatRouter(&stubTurner{err: errors.New("boom")})
	payload, _ := json.Marshal(map[string]string{"phone": "5493456123456", "message": "hola"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5493456123456", handlers.NormalizePhone("whatsapp:+54 9 3456 12-3456"))
	assert.Equal(t, "5493456123456", handlers.NormalizePhone("5493456123456"))
	assert.Equal(t, "", handlers.NormalizePhone("whatsapp:"))
}

type stubProfiles struct{ p preference.Profile }

func (s stubProfiles) Profile(_ context.Context, phone string) (preference.Profile, error) {
	p := s.p
	p.Phone = phone
	return p, nil
}

func adminRouter(t *testing.T) (*gin.Engine, *booking.Service) {
	r, bookings, _ := adminRouterWithTurns(t)
	return r, bookings
}

func adminRouterWithTurns(t *testing.T) (*gin.Engine, *booking.Service, *transcript.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bookings := booking.NewService(booking.NewMemoryStore(), zap.NewNop())
	turns := transcript.NewMemoryStore()
	h := handlers.NewAdminHandler(stubProfiles{p: preference.Profile{UseCount: 4}}, bookings, turns)
	r := gin.New()
	r.GET("/api/conversations/:id/turns", h.Turns)
	r.GET("/api/users/:phone/preferences", h.Preferences)
	r.GET("/api/users/:phone/bookings", h.UserBookings)
	r.GET("/api/bookings/:id", h.Booking)
	r.POST("/api/bookings/:id/cancel", h.Cancel)
	return r, bookings, turns
}

func get(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestAdmin_Preferences(t *testing.T) {
	r, _ := adminRouter(t)
	w := get(r, http.MethodGet, "/api/users/5493456123456/preferences")
	require.Equal(t, http.StatusOK, w.Code)
	var p preference.Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 4, p.UseCount)
	assert.Equal(t, "5493456123456", p.Phone)

	assert.Equal(t, http.StatusBadRequest, get(r, http.MethodGet, "/api/users/abc/preferences").Code)
}

func TestAdmin_Bookings(t *testing.T) {
	r, bookings := adminRouter(t)
	b, err := bookings.Record(context.Background(), booking.RecordCommand{
		Phone: "5493456123456",
		Slots: dialogue.SlotSet{
			Origin:        "guemes 800",
			Destination:   "diamante 2500",
			PaymentMethod: "efectivo",
			ServiceType:   nlu.ServiceImmediate,
		},
	})
	require.NoError(t, err)

	w := get(r, http.MethodGet, "/api/bookings/"+string(b.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "guemes 800")

	w = get(r, http.MethodGet, "/api/users/5493456123456/bookings?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Bookings []booking.Booking `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Bookings, 1)

	assert.Equal(t, http.StatusOK, get(r, http.MethodPost, "/api/bookings/"+string(b.ID)+"/cancel").Code)
	assert.Equal(t, http.StatusConflict, get(r, http.MethodPost, "/api/bookings/"+string(b.ID)+"/cancel").Code)

	assert.Equal(t, http.StatusBadRequest, get(r, http.MethodGet, "/api/bookings/not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, get(r, http.MethodGet, "/api/bookings/00000000-0000-0000-0000-000000000000").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, http.MethodGet, "/api/users/5493456123456/bookings?limit=0").Code)
}

func TestAdmin_Turns(t *testing.T) {
	r, _, turns := adminRouterWithTurns(t)
	conv := "7f0c1d2e-3a4b-4c5d-8e9f-0a1b2c3d4e5f"
	for seq, text := range []string{"necesito un taxi", "desde guemes 800"} {
		require.NoError(t, turns.Append(context.Background(), transcript.Turn{
			ConversationID: conv,
			Seq:            seq + 1,
			Phone:          "5493456123456",
			UserText:       text,
			Reply:          "ok",
		}))
	}

	w := get(r, http.MethodGet, "/api/conversations/"+conv+"/turns")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ConversationID string            `json:"conversation_id"`
		Turns          []transcript.Turn `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, conv, body.ConversationID)
	require.Len(t, body.Turns, 2)
	assert.Equal(t, "desde guemes 800", body.Turns[1].UserText)

	w = get(r, http.MethodGet, "/api/conversations/"+conv+"/turns?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Turns, 1)

	w = get(r, http.MethodGet, "/api/conversations/00000000-0000-0000-0000-000000000000/turns")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"turns":[]`)

	assert.Equal(t, http.StatusBadRequest, get(r, http.MethodGet, "/api/conversations/nope/turns").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, http.MethodGet, "/api/conversations/"+conv+"/turns?limit=500").Code)
}
