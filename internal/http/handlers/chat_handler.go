// README: Conversation handlers: messaging webhook and the JSON chat endpoint.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"novobot/internal/service"
)

// Turner runs one conversational turn.
type Turner interface {
	HandleTurn(ctx context.Context, in service.TurnInput) (service.TurnOutput, error)
}

type ChatHandler struct {
	turns    Turner
	validate *validator.Validate
	log      *zap.Logger
}

func NewChatHandler(turns Turner, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{turns: turns, validate: validator.New(), log: log}
}

// webhookReq matches the form fields messaging providers post (Twilio style),
// and the same names as JSON.
type webhookReq struct {
	From      string `form:"From" json:"From" validate:"required,max=64"`
	Body      string `form:"Body" json:"Body" validate:"required,max=2000"`
	SessionID string `form:"SessionId" json:"SessionId" validate:"omitempty,max=64,printascii,excludes=:"`
}

type chatReq struct {
	Phone     string `json:"phone" validate:"required,max=32"`
	Message   string `json:"message" validate:"required,max=2000"`
	SessionID string `json:"session_id" validate:"omitempty,max=64,printascii,excludes=:"`
}

// Webhook handles POST /webhook/whatsapp and answers {reply, state}.
func (h *ChatHandler) Webhook(c *gin.Context) {
	var req webhookReq
	if err := c.ShouldBind(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload")
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if err := h.validate.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	out, ok := h.turn(c, req.From, req.SessionID, req.Body)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"reply": out.Reply, "state": out.State})
}

// Chat handles POST /api/chat and answers with the whole turn.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := h.validate.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	out, ok := h.turn(c, req.Phone, req.SessionID, req.Message)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *ChatHandler) turn(c *gin.Context, from, sessionID, text string) (service.TurnOutput, bool) {
	phone := NormalizePhone(from)
	if !isValidPhone(phone) {
		writeError(c, http.StatusBadRequest, "invalid phone")
		return service.TurnOutput{}, false
	}
	out, err := h.turns.HandleTurn(c.Request.Context(), service.TurnInput{Phone: phone, SessionID: sessionID, Text: text})
	if err != nil {
		if errors.Is(err, service.ErrBadRequest) {
			writeError(c, http.StatusBadRequest, err.Error())
		} else {
			h.log.Error("turn failed", zap.String("phone", phone), zap.Error(err))
			writeError(c, http.StatusInternalServerError, "internal error")
		}
		return service.TurnOutput{}, false
	}
	return out, true
}

// PhoneKey charges webhook rate limits to the normalised sender, or the
// client address for JSON posts.
func PhoneKey(c *gin.Context) string {
	from := c.PostForm("From")
	if from == "" {
		from = c.Query("From")
	}
	if phone := NormalizePhone(from); phone != "" {
		return phone
	}
	return c.ClientIP()
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return "invalid field " + f.Field() + ": " + f.Tag()
	}
	return "invalid payload"
}
